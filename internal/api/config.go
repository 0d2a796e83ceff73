package api

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config holds the push backend configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBDSN           string // sqlite path, "sqlite:<path>" or a postgres URL
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	VAPIDSubject     string
	NotificationIcon string

	CORSAllowedOrigins []string // "*" allows any origin; empty disables CORS

	TracingExporter string // "none" (default), "stdout" or "otlp"
	TracingEndpoint string
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:         ":8080",
		DBDSN:              "./data/push.db",
		ShutdownTimeout:    30 * time.Second,
		LogFormat:          "json",
		LogLevel:           "info",
		VAPIDSubject:       "mailto:admin@localhost",
		CORSAllowedOrigins: []string{"*"},
		TracingExporter:    "none",
	}

	if v := os.Getenv("PUSH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PUSH_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("PUSH_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("PUSH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("PUSH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.VAPIDPublicKey = strings.TrimSpace(os.Getenv("PUSH_VAPID_PUBLIC_KEY"))
	cfg.VAPIDPrivateKey = strings.TrimSpace(os.Getenv("PUSH_VAPID_PRIVATE_KEY"))
	if v := os.Getenv("PUSH_VAPID_SUBJECT"); v != "" {
		cfg.VAPIDSubject = v
	}
	if v := os.Getenv("PUSH_NOTIFICATION_ICON"); v != "" {
		cfg.NotificationIcon = v
	}

	if v := os.Getenv("PUSH_TRACING_EXPORTER"); v != "" {
		cfg.TracingExporter = v
	}
	cfg.TracingEndpoint = os.Getenv("PUSH_TRACING_ENDPOINT")

	if v, ok := os.LookupEnv("PUSH_CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSAllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "" {
		return errors.New("PUSH_VAPID_PUBLIC_KEY and PUSH_VAPID_PRIVATE_KEY must be set")
	}
	if c.DBDSN == "" {
		return errors.New("PUSH_DB_DSN must not be empty")
	}
	return nil
}
