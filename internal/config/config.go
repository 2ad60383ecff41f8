package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Addr          string
	SessionSecret string

	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Addr:          os.Getenv("PARLEY_ADDR"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		DBUrl:         os.Getenv("SURREAL_URL"),
		DBUser:        os.Getenv("SURREAL_USER"),
		DBPass:        os.Getenv("SURREAL_PASS"),
		DBNs:          os.Getenv("SURREAL_NS"),
		DBDb:          os.Getenv("SURREAL_DB"),
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	if cfg.DBUrl == "" || cfg.DBNs == "" || cfg.DBDb == "" {
		log.Fatal("Required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set.")
	}
	if cfg.SessionSecret == "" {
		log.Fatal("Required environment variable SESSION_SECRET is not set.")
	}

	return cfg
}
