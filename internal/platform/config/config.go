package config

import (
	"os"
	"strconv"
	"time"

	pstrings "tracekeeper/pkg/platform/strings"
)

// Server captures process-level configuration read from the environment.
type Server struct {
	Addr                string
	LogLevel            string
	DiagnosticLogPath   string
	PipelineConfigPath  string
	AdminToken          string
	DiagnosticsBuffer   int
	// MigrationMaxWorkers overrides the pipeline's migration.max_workers when positive.
	MigrationMaxWorkers int
	Store               StoreConfig
	Redis               RedisConfig
	Kafka               KafkaConfig
}

// StoreConfig selects and addresses the trace store backend.
type StoreConfig struct {
	Driver        string // memory, postgres or mongo
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
}

// RedisConfig addresses the Redis instance holding migration job leases.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig addresses the brokers receiving diagnostic entries.
type KafkaConfig struct {
	Brokers          []string
	ClientID         string
	DiagnosticsTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:                getEnv("TRACEKEEPER_ADDR", ":8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DiagnosticLogPath:   getEnv("DIAGNOSTIC_LOG_PATH", "tracekeeper-diagnostics.log"),
		PipelineConfigPath:  os.Getenv("PIPELINE_CONFIG"),
		AdminToken:          os.Getenv("ADMIN_TOKEN"),
		DiagnosticsBuffer:   getEnvInt("DIAGNOSTICS_BUFFER", 1000),
		MigrationMaxWorkers: getEnvInt("MIGRATION_MAX_WORKERS", 0),
		Store: StoreConfig{
			Driver:        getEnv("STORE_DRIVER", "memory"),
			PostgresDSN:   os.Getenv("POSTGRES_DSN"),
			MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("MONGO_DATABASE", "zero0x_db"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:          pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			ClientID:         getEnv("KAFKA_CLIENT_ID", "tracekeeper"),
			DiagnosticsTopic: getEnv("KAFKA_DIAGNOSTICS_TOPIC", "tracekeeper.diagnostics"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
