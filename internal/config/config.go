package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Logger   LoggerConfig
	Otel     OtelConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port          string
	AllowedOrigin string
	Environment   string
}

type DatabaseConfig struct {
	Driver       string
	URL          string
	MaxOpenConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AuthConfig struct {
	Secret string
}

type LoggerConfig struct {
	Level       string
	Encoding    string
	Development bool
}

type OtelConfig struct {
	Endpoint    string
	AuthHeader  string
	ServiceName string
}

type EngineConfig struct {
	ConflictRetries int
	SeedDemoData    bool
}

func Load() Config {
	env := strings.ToLower(getEnv("APP_ENV", "development"))

	cacheTTL := getEnvInt("BARCODE_CACHE_TTL_SECONDS", 300)
	if cacheTTL < 1 {
		cacheTTL = 300
	}
	retries := getEnvInt("CONFLICT_RETRIES", 5)
	if retries < 0 {
		retries = 5
	}

	cfg := Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
			Environment:   env,
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getEnvInt("DATABASE_MAX_OPEN_CONNS", 30),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(cacheTTL) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "pharmapos.sales"),
		},
		Auth: AuthConfig{
			Secret: strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		},
		Logger: LoggerConfig{
			Level:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Encoding:    strings.ToLower(getEnv("LOG_ENCODING", "json")),
			Development: env == "development" || env == "dev" || env == "local",
		},
		Otel: OtelConfig{
			Endpoint:    strings.TrimSpace(os.Getenv("OTEL_ENDPOINT")),
			AuthHeader:  os.Getenv("OTEL_AUTH_HEADER"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "pharmapos-backend"),
		},
		Engine: EngineConfig{
			ConflictRetries: retries,
			SeedDemoData:    getEnvBool("SEED_DEMO_DATA", true),
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Server.Port)
}

func (c Config) IsProduction() bool {
	return c.Server.Environment == "production" || c.Server.Environment == "prod"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}

func getEnvSlice(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
