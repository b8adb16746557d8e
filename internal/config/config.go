package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Queue
	QueueTick      time.Duration
	MaxConcurrency int
	MaxAttempts    int
	CleanupAge     time.Duration

	// Processor
	TickInterval  time.Duration
	SweepInterval time.Duration
	RetryCap      int

	// Outbound email
	SendRatePerSec int
	EmailProvider  string // "ses" or "mock"
	SESRegion      string
	FromAddress    string
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		QueueTick:      getDuration("QUEUE_TICK", 5*time.Second),
		MaxConcurrency: getInt("MAX_CONCURRENCY", 3),
		MaxAttempts:    getInt("MAX_ATTEMPTS", 5),
		CleanupAge:     getDuration("CLEANUP_AGE", 24*time.Hour),

		TickInterval:  getDuration("TICK_INTERVAL", 30*time.Second),
		SweepInterval: getDuration("SWEEP_INTERVAL", 5*time.Minute),
		RetryCap:      getInt("RETRY_CAP", 5),

		SendRatePerSec: getInt("SEND_RATE_PER_SEC", 10),
		EmailProvider:  getEnv("EMAIL_PROVIDER", "mock"),
		SESRegion:      getEnv("SES_REGION", "eu-west-1"),
		FromAddress:    getEnv("FROM_ADDRESS", "notifications@talentdesk.example"),
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
