package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	ObjectStore ObjectStoreConfig
	Batch       BatchConfig
	Log         LogConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	TempDir     string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxRetries  int
	MaxOpenConn int
}

type JWTConfig struct {
	SecretKey string
}

type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type BatchConfig struct {
	Region               string
	JobQueue             string
	RecordDefinition     string
	InferenceDefinition  string
	TrainingDefinition   string
	ContrastDefinition   string
	MaxConcurrentSubmits int
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads the process configuration. The worker does not serve HTTP, so
// the JWT secret is only required when requireServer is set.
func Load(requireServer bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "mimic"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "development"),
			TempDir:     getEnv("APP_TEMP_DIR", os.TempDir()),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Name:        getEnv("DB_NAME", "mimic"),
			SSLMode:     getEnv("DB_SSL_MODE", "disable"),
			MaxRetries:  getEnvInt("DB_MAX_RETRIES", 5),
			MaxOpenConn: getEnvInt("DB_MAX_OPEN_CONN", 10),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  getEnv("OBJECT_STORE_ENDPOINT", "s3.amazonaws.com"),
			Region:    getEnv("AWS_REGION", "us-east-1"),
			AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			UseSSL:    getEnvBool("OBJECT_STORE_USE_SSL", true),
		},
		Batch: BatchConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			JobQueue:             getEnv("BATCH_JOB_QUEUE", "mimic-log-odds-job-queue"),
			RecordDefinition:     getEnv("BATCH_RECORD_DEFINITION", "mimic-log-odds-build-records"),
			InferenceDefinition:  getEnv("BATCH_INFERENCE_DEFINITION", "mimic-log-odds-batch-infer-partition"),
			TrainingDefinition:   getEnv("BATCH_TRAINING_DEFINITION", "mimic-log-odds-run-train-model"),
			ContrastDefinition:   getEnv("BATCH_CONTRAST_DEFINITION", "mimic-log-odds-build-contrast"),
			MaxConcurrentSubmits: getEnvInt("BATCH_MAX_CONCURRENT_SUBMITS", 8),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", ""),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE", 7),
		},
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	if requireServer && cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Batch.MaxConcurrentSubmits <= 0 {
		return nil, errors.New("BATCH_MAX_CONCURRENT_SUBMITS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}

	return defaultVal
}
