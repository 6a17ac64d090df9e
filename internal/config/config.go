package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for herdsync.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Path of the offline mutation queue database. Defaults to
	// ~/.herdsync/queue.db.
	QueuePath string `env:"QUEUE_PATH"`

	// Local storage budget the quota monitor measures against. Zero
	// disables the gate entirely (the monitor fails open).
	StorageQuotaBytes int64 `env:"STORAGE_QUOTA_BYTES" envDefault:"536870912"`

	// How often the storage monitor re-polls usage.
	StoragePollInterval time.Duration `env:"STORAGE_POLL_INTERVAL" envDefault:"30s"`

	// How often a deduplicated sync pass runs over the queue.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"1m"`

	// Device name this client identifies as. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "herdsync"
		}

		cfg.DeviceName = hostname
	}

	if cfg.QueuePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for queue path: %w", err)
		}

		cfg.QueuePath = filepath.Join(home, ".herdsync", "queue.db")
	}

	// Resolve QueuePath to an absolute path at startup so the storage
	// estimator and bbolt agree on the file regardless of later chdir.
	absPath, err := filepath.Abs(cfg.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("resolving queue path to absolute path: %w", err)
	}

	cfg.QueuePath = absPath

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.StorageQuotaBytes < 0 {
		return fmt.Errorf("STORAGE_QUOTA_BYTES must not be negative")
	}

	if c.StoragePollInterval <= 0 {
		return fmt.Errorf("STORAGE_POLL_INTERVAL must be positive")
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}

	return nil
}
