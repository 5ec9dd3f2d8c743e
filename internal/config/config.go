package config

import (
	"fmt"
	"log"
	"os"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	PublicPort      string
	DBPath          string
	RedisAddr       string
	RateLimitPerMin int
	RateBackend     string
	BackupEnabled   bool
	BackupDir       string
	BackupSchedule  string
	BackupKeep      int
	FrontendDir     string
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	cfg := App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "3000"),
		DBPath:          getEnv("DB_PATH", "data/meetsign.db"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		RateBackend:     getEnv("RATE_LIMIT_BACKEND", "memory"),
		BackupEnabled:   boolEnv("BACKUP_ENABLED", false),
		BackupDir:       getEnv("BACKUP_DIR", "backups"),
		BackupSchedule:  getEnv("BACKUP_SCHEDULE", "0 2 * * *"),
		BackupKeep:      intEnv("BACKUP_KEEP", 30),
		FrontendDir:     getEnv("FRONTEND_DIR", "web"),
	}
	// Sign-in token URLs embed the port clients reach us on, which can differ
	// from the listen port behind a proxy.
	cfg.PublicPort = getEnv("PUBLIC_PORT", cfg.HTTPPort)
	return cfg
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
