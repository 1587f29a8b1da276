package config

import (
	"reflect"

	"github.com/tulikaff659/zolo/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// fields for logging. Tokens and secrets are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.AdminID != nt.AdminID || ot.PollTimeout != nt.PollTimeout ||
		ot.Webhook.Listen != nt.Webhook.Listen || ot.Webhook.PublicURL != nt.Webhook.PublicURL {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.admin_changed", ot.AdminID != nt.AdminID),
			logx.Bool("telegram.webhook", nt.Webhook.PublicURL != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		changed = append(changed, "broadcast")
		fields = append(fields, logx.String("broadcast.delay", newCfg.Broadcast.Delay))
	}
	if !reflect.DeepEqual(oldCfg.Conversation, newCfg.Conversation) {
		changed = append(changed, "conversation")
		fields = append(fields, logx.Int64("conversation.max_upload_bytes", newCfg.Conversation.MaxUploadBytes))
	}
	for _, s := range []struct {
		name   string
		eq     bool
		static bool
	}{
		{"assets", oldCfg.Assets == newCfg.Assets, true},
		{"storage", oldCfg.Storage == newCfg.Storage, true},
		{"housekeeping", oldCfg.Housekeeping == newCfg.Housekeeping, false},
		{"ops", oldCfg.Ops == newCfg.Ops, true},
	} {
		if s.eq {
			continue
		}
		changed = append(changed, s.name)
		if s.static {
			fields = append(fields, logx.Bool(s.name+".restart_required", true))
		}
	}
	return changed, fields
}

// RestartRequired reports whether the change touches sections that are only
// read at startup.
func RestartRequired(sections []string) bool {
	for _, s := range sections {
		switch s {
		case "telegram", "assets", "storage", "ops":
			return true
		}
	}
	return false
}
