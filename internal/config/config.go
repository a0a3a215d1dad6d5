// Package config loads runtime configuration from the environment.
// A local .env file is honoured when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the integration runtime configuration. It is assembled once
// at startup and passed explicitly to constructors; nothing reads the
// environment after Load returns.
type Config struct {
	// HealthPort is the port of the HTTP endpoint serving control
	// routes and webhooks.
	HealthPort int

	// LedgerURL locates the ledger the hosting process connects to.
	LedgerURL string

	// LedgerID scopes token claims; tokens for other ledgers are
	// rejected.
	LedgerID string

	// LedgerToken is the bearer token the runtime presents to the
	// ledger endpoint.
	LedgerToken string

	// IntegrationID prefixes all webhook routes.
	IntegrationID string

	// TypeID selects the integration entry point to run.
	TypeID string

	// RunAsParty is the ledger identity the integration acts as. When
	// empty it falls back to the runtime spec metadata.
	RunAsParty string

	// MetadataPath locates the runtime spec YAML file.
	MetadataPath string

	// PackageMetadataPath locates the package manifest listing the
	// integration types shipped with this binary.
	PackageMetadataPath string

	// QueueSize bounds the deferral queue.
	QueueSize int

	// LogLevel is the numeric verbosity (0..50, higher logs more).
	LogLevel int

	// LogFormat selects "json" or "text" log output.
	LogFormat string

	// JWKSURLs lists remote key-set endpoints for token verification.
	// Empty disables authorization support entirely.
	JWKSURLs []string

	// JWKSPollInterval is the background key refresh interval.
	JWKSPollInterval time.Duration
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	healthPort, err := envInt("INTEGRATION_HEALTH_PORT", 8089)
	if err != nil {
		return nil, err
	}
	queueSize, err := envInt("INTEGRATION_QUEUE_SIZE", 512)
	if err != nil {
		return nil, err
	}
	logLevel, err := envInt("INTEGRATION_LOG_LEVEL", 0)
	if err != nil {
		return nil, err
	}
	pollSeconds, err := envInt("INTEGRATION_JWKS_POLL_SECONDS", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HealthPort:          healthPort,
		LedgerURL:           env("LEDGER_URL", "http://localhost:6865"),
		LedgerID:            env("LEDGER_ID", "sandbox"),
		LedgerToken:         os.Getenv("LEDGER_TOKEN"),
		IntegrationID:       env("INTEGRATION_ID", "default"),
		TypeID:              os.Getenv("INTEGRATION_TYPE_ID"),
		RunAsParty:          os.Getenv("LEDGER_PARTY"),
		MetadataPath:        env("INTEGRATION_METADATA_PATH", "int_args.yaml"),
		PackageMetadataPath: env("INTEGRATION_PACKAGE_METADATA_PATH", "pkg_meta.yaml"),
		QueueSize:           queueSize,
		LogLevel:            logLevel,
		LogFormat:           env("INTEGRATION_LOG_FORMAT", "text"),
		JWKSURLs:            envList("INTEGRATION_JWKS_URLS"),
		JWKSPollInterval:    time.Duration(pollSeconds) * time.Second,
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q in environment variable %s", v, key)
	}
	return n, nil
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
