package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Firebase HTTP v1 settings
	FirebaseProjectID   string
	FirebaseCredentials string // path to the service account JSON file

	// Shared secret required on the subscribe/unsubscribe/send endpoints.
	// Generated at startup when empty.
	RestAPIKey string

	// HS256 secret for the session tokens used by the in-site feed endpoints.
	SessionSecret string

	DispatchWorkers int
	HTTPTimeout     time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	httpTimeout := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			httpTimeout = parsed
		}
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseHost:        getEnv("DB_HOST", "localhost"),
		DatabasePort:        getEnv("DB_PORT", "5432"),
		DatabaseUser:        getEnv("DB_USER", "postgres"),
		DatabasePassword:    getEnv("DB_PASSWORD", ""),
		DatabaseName:        getEnv("DB_NAME", "anoapp"),
		DatabaseSSLMode:     getEnv("DB_SSLMODE", "disable"),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		RestAPIKey:          getEnv("REST_API_KEY", ""),
		SessionSecret:       getEnv("SESSION_SECRET", "change-me-in-production"),
		DispatchWorkers:     getEnvAsInt("DISPATCH_WORKERS", 8),
		HTTPTimeout:         httpTimeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}
