package config

// Config is the optional file config (JSON or YAML). Secrets and deployment
// settings usually come from the environment, see ApplyEnv.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	Conversation ConversationConfig `json:"conversation"`
	Assets       AssetsConfig       `json:"assets"`
	Storage      StorageConfig      `json:"storage"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
	Ops          OpsConfig          `json:"ops"`
}

type TelegramConfig struct {
	Token   string `json:"token,omitempty"`
	AdminID int64  `json:"admin_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string        `json:"poll_timeout,omitempty"`
	Webhook     WebhookConfig `json:"webhook"`
}

// WebhookConfig enables webhook mode when both Listen and PublicURL are set.
type WebhookConfig struct {
	Listen    string `json:"listen,omitempty"`     // e.g. "0.0.0.0:8080"
	PublicURL string `json:"public_url,omitempty"` // full URL Telegram posts to
	Secret    string `json:"secret,omitempty"`     // do not log
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to the admin chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// BroadcastConfig durations are Go duration strings.
//
// Defaults: delay "50ms", queue_size 16, history_size 50, history_ttl "24h".
type BroadcastConfig struct {
	Delay       string `json:"delay,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
	HistoryTTL  string `json:"history_ttl,omitempty"`
}

// ConversationConfig controls admin dialogs.
//
// Defaults: session_ttl "1h" ("0s" keeps sessions forever),
// max_upload_bytes 20 MiB (the Bot API download limit), fetch_attempts 3.
type ConversationConfig struct {
	SessionTTL     *string `json:"session_ttl,omitempty"`
	MaxUploadBytes int64   `json:"max_upload_bytes,omitempty"`
	FetchAttempts  int     `json:"fetch_attempts,omitempty"`
	CommandTimeout string  `json:"command_timeout,omitempty"`
	UploadTimeout  string  `json:"upload_timeout,omitempty"`
}

type AssetsConfig struct {
	Dir string `json:"dir,omitempty"` // default "apk_files"
}

// StorageConfig controls the audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/zolo.db", "retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`    // default "720h"
}

// HousekeepingConfig holds cron specs for the periodic jobs. An empty spec
// uses the default; "off" disables the job.
type HousekeepingConfig struct {
	Timezone     string `json:"timezone,omitempty"`
	SessionSweep string `json:"session_sweep,omitempty"` // default "@every 5m"
	AuditPrune   string `json:"audit_prune,omitempty"`   // default "@daily"
}

// OpsConfig controls the optional HTTP server for health, stats and pprof.
//
// Prefer binding to localhost.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8081"
	Pprof   bool   `json:"pprof,omitempty"`
}
