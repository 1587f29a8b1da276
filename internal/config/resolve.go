package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultDelay          = 50 * time.Millisecond
	DefaultSessionTTL     = time.Hour
	DefaultMaxUploadBytes = 20 << 20
	DefaultAssetsDir      = "apk_files"
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultOpsAddr        = "127.0.0.1:8081"
	DefaultSessionSweep   = "@every 5m"
	DefaultAuditPrune     = "@daily"
)

// Resolved is Config with defaults applied and durations parsed.
type Resolved struct {
	Raw *Config

	Token       string
	AdminID     int64
	PollTimeout time.Duration
	Webhook     WebhookConfig

	Delay       time.Duration
	QueueSize   int
	HistorySize int
	HistoryTTL  time.Duration

	SessionTTL     time.Duration // 0 keeps sessions until closed
	MaxUploadBytes int64
	FetchAttempts  int
	CommandTimeout time.Duration
	UploadTimeout  time.Duration

	AssetsDir string

	StorageDriver string
	StoragePath   string
	BusyTimeout   time.Duration
	Retention     time.Duration

	Location     *time.Location
	SessionSweep string // empty when disabled
	AuditPrune   string // empty when disabled

	Ops OpsConfig
}

var (
	ErrMissingToken = errors.New(EnvToken + " environment variable is not set")
	ErrMissingAdmin = errors.New(EnvAdminID + " environment variable is not set")
)

// Resolve validates cfg and fills in defaults. Every problem is reported in
// one joined error.
func Resolve(cfg *Config) (*Resolved, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := parseDuration(path, raw)
		add(err)
		if d == 0 {
			return def
		}
		return d
	}

	r := &Resolved{Raw: cfg}
	r.Token = strings.TrimSpace(cfg.Telegram.Token)
	if r.Token == "" {
		add(ErrMissingToken)
	}
	r.AdminID = cfg.Telegram.AdminID
	if r.AdminID <= 0 {
		add(ErrMissingAdmin)
	}
	r.PollTimeout = dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	r.Webhook = cfg.Telegram.Webhook
	if (r.Webhook.Listen == "") != (r.Webhook.PublicURL == "") {
		add(errors.New("telegram.webhook: listen and public_url must be set together"))
	}
	if u := r.Webhook.PublicURL; u != "" && !strings.HasPrefix(strings.ToLower(u), "https://") {
		add(fmt.Errorf("telegram.webhook.public_url: must be https: %q", u))
	}

	r.Delay = dur("broadcast.delay", cfg.Broadcast.Delay, DefaultDelay)
	r.QueueSize = cfg.Broadcast.QueueSize
	r.HistorySize = cfg.Broadcast.HistorySize
	r.HistoryTTL = dur("broadcast.history_ttl", cfg.Broadcast.HistoryTTL, 24*time.Hour)
	if r.QueueSize < 0 || r.HistorySize < 0 {
		add(errors.New("broadcast: queue_size and history_size must be >= 0"))
	}

	r.SessionTTL = DefaultSessionTTL
	if cfg.Conversation.SessionTTL != nil {
		d, err := parseDuration("conversation.session_ttl", *cfg.Conversation.SessionTTL)
		add(err)
		r.SessionTTL = d
	}
	r.MaxUploadBytes = cfg.Conversation.MaxUploadBytes
	if r.MaxUploadBytes == 0 {
		r.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if r.MaxUploadBytes < 0 {
		add(errors.New("conversation.max_upload_bytes: must be >= 0"))
	}
	r.FetchAttempts = cfg.Conversation.FetchAttempts
	if r.FetchAttempts <= 0 {
		r.FetchAttempts = 3
	}
	r.CommandTimeout = dur("conversation.command_timeout", cfg.Conversation.CommandTimeout, 20*time.Second)
	r.UploadTimeout = dur("conversation.upload_timeout", cfg.Conversation.UploadTimeout, 3*time.Minute)

	r.AssetsDir = strings.TrimSpace(cfg.Assets.Dir)
	if r.AssetsDir == "" {
		r.AssetsDir = DefaultAssetsDir
	}

	r.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	r.StoragePath = strings.TrimSpace(cfg.Storage.Path)
	switch r.StorageDriver {
	case "", "none":
		r.StorageDriver = "none"
	case "file", "sqlite", "sqlite3":
		if r.StoragePath == "" {
			add(fmt.Errorf("storage.path: required for driver %q", r.StorageDriver))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown %q (use none, file or sqlite)", cfg.Storage.Driver))
	}
	r.BusyTimeout = dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	r.Retention = dur("storage.retention", cfg.Storage.Retention, DefaultRetention)

	r.Location = time.Local
	if tz := strings.TrimSpace(cfg.Housekeeping.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			add(fmt.Errorf("housekeeping.timezone: %w", err))
		} else {
			r.Location = loc
		}
	}
	r.SessionSweep = cronSpec("housekeeping.session_sweep", cfg.Housekeeping.SessionSweep, DefaultSessionSweep, add)
	r.AuditPrune = cronSpec("housekeeping.audit_prune", cfg.Housekeeping.AuditPrune, DefaultAuditPrune, add)

	r.Ops = cfg.Ops
	if r.Ops.Addr == "" {
		r.Ops.Addr = DefaultOpsAddr
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func cronSpec(path, raw, def string, add func(error)) string {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "":
		return def
	case "off", "disabled":
		return ""
	}
	if _, err := specParser.Parse(s); err != nil {
		add(fmt.Errorf("%s: invalid cron spec %q: %w", path, s, err))
		return ""
	}
	return s
}

// Validate is Resolve for callers that only need the error, e.g. the reload
// validator.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

// parseDuration reads a non-negative duration at path. Blank reads as 0.
func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 500ms, 2m, 1h)", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", path, raw)
	}
	return d, nil
}
