package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBDSN    string
	RedisDSN string
	HTTPAddr string
	LogLevel string

	CORSOrigins []string

	// punishment engine tunables; defaults match the original product
	// behavior (6h proxy window, one stacked ban/mute per sync)
	LinkProxyWindow   time.Duration
	MaxPendingPerKind int
	LinkWorkerCount   int
	LinkQueueSize     int
	SyncRatePerSecond float64

	// audit archive export (S3-compatible); the simulator is used when unset
	ArchiveEndpoint    string
	ArchiveBucket      string
	ArchiveKeysRaw     string // raw secrets kept in-memory only; never log
	AuditRetentionDays int
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:              os.Getenv("DB_DSN"),
		RedisDSN:           getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		LinkProxyWindow:    getenvDuration("LINK_PROXY_WINDOW", 6*time.Hour),
		MaxPendingPerKind:  getenvInt("MAX_PENDING_PER_KIND", 1),
		LinkWorkerCount:    getenvInt("LINK_WORKER_COUNT", 4),
		LinkQueueSize:      getenvInt("LINK_QUEUE_SIZE", 10000),
		SyncRatePerSecond:  getenvFloat("SYNC_RATE_PER_SECOND", 5),
		ArchiveEndpoint:    getenvDefault("ARCHIVE_ENDPOINT", ""),
		ArchiveBucket:      getenvDefault("ARCHIVE_BUCKET", ""),
		ArchiveKeysRaw:     os.Getenv("ARCHIVE_KEYS"),
		AuditRetentionDays: getenvInt("AUDIT_RETENTION_DAYS", 30),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}
	if cfg.MaxPendingPerKind < 1 {
		return Config{}, errors.New("MAX_PENDING_PER_KIND must be >= 1")
	}
	if cfg.LinkProxyWindow <= 0 {
		return Config{}, errors.New("LINK_PROXY_WINDOW must be positive")
	}

	// light validation: ensure secrets are valid json if set
	if cfg.ArchiveKeysRaw != "" {
		var tmp any
		if err := json.Unmarshal([]byte(cfg.ArchiveKeysRaw), &tmp); err != nil {
			return Config{}, errors.New("ARCHIVE_KEYS must be valid json")
		}
	}

	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
