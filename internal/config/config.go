// Package config loads service configuration from the environment. A .env
// file is honored in development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisAddr string // optional: webhook dedup fast path disabled when empty
	NatsURL   string // optional: notifications fall back to logging when empty
	APIPort   string
	JWTSecret string

	CORSOrigins []string
}

// New loads and validates configuration. Redis and NATS are optional
// collaborators; the database and JWT secret are not.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:    os.Getenv("CHATPESA_POSTGRES_USER"),
		DBPass:    os.Getenv("CHATPESA_POSTGRES_PASSWORD"),
		DBHost:    getEnv("CHATPESA_POSTGRES_HOST", "localhost"),
		DBPort:    getEnv("CHATPESA_POSTGRES_PORT", "5432"),
		DBName:    os.Getenv("CHATPESA_POSTGRES_DB"),
		SSLMode:   getEnv("CHATPESA_POSTGRES_SSLMODE", "disable"),
		RedisAddr: os.Getenv("CHATPESA_REDIS_ADDR"),
		NatsURL:   os.Getenv("CHATPESA_NATS_URL"),
		APIPort:   getEnv("CHATPESA_API_PORT", "8080"),
		JWTSecret: os.Getenv("CHATPESA_JWT_SECRET"),
	}

	if cfg.DBUser == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("missing required env: CHATPESA_POSTGRES_USER/DB")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env: CHATPESA_JWT_SECRET")
	}

	if origins := os.Getenv("CHATPESA_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = []string{origins}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) APIAddr() string {
	return "0.0.0.0:" + c.APIPort
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
