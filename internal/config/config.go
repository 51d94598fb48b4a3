package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only PUSH_URL is required.
type Config struct {
	// Upstream push channel
	PushURL           string
	PushToken         string
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration

	// Reconnection backoff: delay = min(cap, base * 2^retries)
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Local HTTP server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Notification store: 0 means unbounded
	StoreCapacity int

	// Inbound flood guard: data messages per second, 0 disables
	RateLimitPerSecond int
	RateLimitBurst     int
}

// Load reads the configuration from the process environment. Loading an
// optional .env file beforehand is the caller's business.
func Load() (*Config, error) {
	pushURL := os.Getenv("PUSH_URL")
	if pushURL == "" {
		return nil, fmt.Errorf("PUSH_URL is required")
	}

	return &Config{
		PushURL:           pushURL,
		PushToken:         getEnv("PUSH_TOKEN", ""),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 25*time.Second),
		DialTimeout:       getDuration("DIAL_TIMEOUT", 10*time.Second),

		BackoffBase: getDuration("BACKOFF_BASE", 1*time.Second),
		BackoffCap:  getDuration("BACKOFF_CAP", 30*time.Second),

		HTTPPort:        getEnv("HTTP_PORT", "8093"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		StoreCapacity: getInt("STORE_CAPACITY", 0),

		RateLimitPerSecond: getInt("RATE_LIMIT_PER_SECOND", 50),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 100),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
