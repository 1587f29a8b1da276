package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfigPath   = "ZOLO_CONFIG"
	EnvToken        = "BOT_TOKEN"
	EnvAdminID      = "ADMIN_ID"
	EnvLogLevel     = "LOG_LEVEL"
	EnvPort         = "PORT"
	EnvRailway      = "RAILWAY_ENVIRONMENT"
	EnvRailwayURL   = "RAILWAY_PUBLIC_URL"
	EnvWebhookToken = "WEBHOOK_SECRET"
)

const defaultPort = "8080"

type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment values on cfg. Variables that are set win
// over the file.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		return strings.TrimSpace(v), ok
	}

	if v, ok := get(EnvToken); ok && v != "" {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvAdminID); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: not an integer user id: %q", EnvAdminID, v)
		}
		cfg.Telegram.AdminID = id
	}
	if v, ok := get(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvWebhookToken); ok && v != "" {
		cfg.Telegram.Webhook.Secret = v
	}

	// Railway deployments receive updates over a webhook on $PORT.
	if _, ok := lookup(EnvRailway); ok {
		if u, _ := get(EnvRailwayURL); u != "" {
			port, _ := get(EnvPort)
			if port == "" {
				port = defaultPort
			}
			if !strings.Contains(u, "://") {
				u = "https://" + u
			}
			cfg.Telegram.Webhook.Listen = "0.0.0.0:" + port
			cfg.Telegram.Webhook.PublicURL = strings.TrimRight(u, "/") + "/webhook"
		}
	}
	return nil
}
