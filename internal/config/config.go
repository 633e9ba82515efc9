package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay's server-level configuration.
type Config struct {
	Port           string
	Domain         string
	Environment    string
	RequestTimeout time.Duration
	PingInterval   time.Duration
	MaxFrameBytes  int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Load loads configuration from environment variables. It automatically
// loads a .env file if present.
func Load() *Config {
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Domain:         getEnv("DOMAIN", "localhost"),
		Environment:    getEnv("NODE_ENV", "development"),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		PingInterval:   getEnvAsDuration("PING_INTERVAL", 30*time.Second),
		MaxFrameBytes:  getEnvAsInt64("MAX_FRAME_BYTES", 50*1024*1024),
		ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
