package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries process-level settings. Values come from the environment
// with sensible defaults; cobra flags may override them.
type Config struct {
	HTTPPort int
	DBPath   string
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort: getEnvInt("HTTP_PORT", 8080),
		DBPath:   getEnv("DB_PATH", "workshop.db"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
