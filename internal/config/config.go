package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds database, source, and server settings.
// Load from env; call LoadEnvFile(".env") first to source a .env file.
type Config struct {
	// DBPath is the directory containing the "database" file (see internal/catalogdb).
	DBPath string

	// SourceURL is the XZ-compressed catalog stream fetched on update.
	SourceURL string

	// MetricsAddr, when non-empty, serves Prometheus metrics at /metrics.
	MetricsAddr string

	// FetchTimeout is read from FILMINDEX_FETCH_TIMEOUT. No code path applies
	// it: catalog downloads run without an overall deadline (the streaming
	// client sets only a response-header timeout).
	FetchTimeout time.Duration

	// PartialUpdateRPS caps how many dedup-scan lookups per second the partial
	// updater issues against the database (see internal/update).
	PartialUpdateRPS int

	// HTTP2 enables explicit HTTP/2 transport negotiation for catalog downloads.
	HTTP2 bool

	// AcceptBrotli advertises Accept-Encoding: br and transparently decodes it.
	AcceptBrotli bool
}

// Load reads Config from the environment, applying defaults for anything unset.
func Load() *Config {
	c := &Config{
		DBPath:           getEnv("FILMINDEX_DB_PATH", "./data"),
		SourceURL:        os.Getenv("FILMINDEX_SOURCE_URL"),
		MetricsAddr:      os.Getenv("FILMINDEX_METRICS_ADDR"),
		FetchTimeout:     getEnvDuration("FILMINDEX_FETCH_TIMEOUT", 10*time.Minute),
		PartialUpdateRPS: getEnvInt("FILMINDEX_PARTIAL_UPDATE_RPS", 2000),
		HTTP2:            getEnvBool("FILMINDEX_HTTP2", true),
		AcceptBrotli:     getEnvBool("FILMINDEX_ACCEPT_BROTLI", true),
	}
	if c.PartialUpdateRPS <= 0 {
		c.PartialUpdateRPS = 2000
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Minute
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
