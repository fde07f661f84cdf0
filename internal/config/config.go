package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration values.
type Config struct {
	Secret         string
	DatabaseDSN    string
	HTTPPort       string
	AMQPURL        string
	ReservationTTL time.Duration
	SweepInterval  time.Duration
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "pharmapos.db"
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		Secret:         secret,
		DatabaseDSN:    dsn,
		HTTPPort:       port,
		AMQPURL:        os.Getenv("AMQP_URL"),
		ReservationTTL: durationMinutes("RESERVATION_TTL_MINUTES", 30),
		SweepInterval:  durationMinutes("SWEEP_INTERVAL_MINUTES", 5),
	}
}

func durationMinutes(key string, fallback int) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(fallback) * time.Minute
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s value %q, defaulting to %d", key, raw, fallback)
		return time.Duration(fallback) * time.Minute
	}
	return time.Duration(n) * time.Minute
}
