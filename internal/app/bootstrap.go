package app

import (
	"github.com/tulikaff659/zolo/internal/config"
	"github.com/tulikaff659/zolo/internal/conversation"
	"github.com/tulikaff659/zolo/internal/ops"
	"github.com/tulikaff659/zolo/internal/services/broadcast"
	"github.com/tulikaff659/zolo/internal/storage"
	telegram "github.com/tulikaff659/zolo/internal/transport/telegram/adapter"
	"github.com/tulikaff659/zolo/pkg/logx"
)

func mapAdapterConfig(r *config.Resolved) telegram.Config {
	return telegram.Config{
		Token:         r.Token,
		PollTimeout:   r.PollTimeout,
		WebhookListen: r.Webhook.Listen,
		WebhookURL:    r.Webhook.PublicURL,
		WebhookSecret: r.Webhook.Secret,
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// mapStorageConfig returns false when auditing is disabled.
func mapStorageConfig(r *config.Resolved) (storage.Config, bool) {
	if r.StorageDriver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{Driver: r.StorageDriver, Path: r.StoragePath, BusyTimeout: r.BusyTimeout}, true
}

func mapBroadcastConfig(r *config.Resolved) broadcast.Config {
	return broadcast.Config{
		Delay:       r.Delay,
		QueueSize:   r.QueueSize,
		HistorySize: r.HistorySize,
		HistoryTTL:  r.HistoryTTL,
	}
}

func mapConversationConfig(r *config.Resolved) conversation.Config {
	return conversation.Config{
		MaxUploadBytes: r.MaxUploadBytes,
		FetchAttempts:  r.FetchAttempts,
	}
}

func mapOpsConfig(r *config.Resolved) ops.Config {
	return ops.Config{Addr: r.Ops.Addr, Pprof: r.Ops.Pprof}
}
