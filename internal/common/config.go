package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	Batch    BatchConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr        string
	UploadDir   string
	MaxUploadMB int
}

// DatabaseConfig holds the sqlite history store configuration
type DatabaseConfig struct {
	Path string // file path, or ":memory:"
}

// LLMConfig holds extraction provider configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// BatchConfig holds fan-out configuration
type BatchConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory is applied first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:        getEnv("HTTP_ADDR", ":8080"),
			UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
			MaxUploadMB: getEnvAsInt("MAX_UPLOAD_MB", 25),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./statements.db"),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
		},
		Batch: BatchConfig{
			Workers:    getEnvAsInt("BATCH_WORKERS", 4),
			QueueSize:  getEnvAsInt("BATCH_QUEUE_SIZE", 64),
			JobTimeout: getEnvAsDuration("BATCH_JOB_TIMEOUT", 3*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Batch.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "BATCH_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
