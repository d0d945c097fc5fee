package common

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Debug    bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string // when set, the store runs on local SQLite instead of Postgres
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// OCRConfig selects and parameterizes the OCR provider.
type OCRConfig struct {
	Provider string // "docling" | "marker"

	DoclingBaseURL         string
	DoclingAPIKey          string
	DoclingStripImageLinks bool
	DoclingRequestOptions  map[string]any // merged over the fixed options payload
	DoclingTimeout         time.Duration

	MarkerBaseURL string
	MarkerAPIKey  string
	MarkerTimeout time.Duration
}

// LLMConfig holds extraction-model configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("DB_SQLITE_PATH", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		OCR: OCRConfig{
			Provider:               getEnv("OCR_PROVIDER", "docling"),
			DoclingBaseURL:         getEnv("DOCLING_BASE_URL", ""),
			DoclingAPIKey:          getEnv("DOCLING_API_KEY", ""),
			DoclingStripImageLinks: getEnvAsBool("DOCLING_STRIP_IMAGE_LINKS", false),
			DoclingRequestOptions:  getEnvAsJSONMap("DOCLING_REQUEST_OPTIONS"),
			DoclingTimeout:         getEnvAsDuration("DOCLING_TIMEOUT", 2*time.Minute),
			MarkerBaseURL:          getEnv("MARKER_BASE_URL", ""),
			MarkerAPIKey:           getEnv("MARKER_API_KEY", ""),
			MarkerTimeout:          getEnvAsDuration("MARKER_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Debug: getEnvAsBool("LOG_DEBUG", false),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvAsJSONMap(key string) map[string]any {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil
	}
	return m
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" && c.Database.SQLitePath == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL or DB_SQLITE_PATH is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	switch c.OCR.Provider {
	case "docling":
		if c.OCR.DoclingBaseURL == "" {
			return NewAppError("CONFIG_ERROR", "DOCLING_BASE_URL is required", ErrInvalidInput)
		}
	case "marker":
		if c.OCR.MarkerBaseURL == "" {
			return NewAppError("CONFIG_ERROR", "MARKER_BASE_URL is required", ErrInvalidInput)
		}
	}
	return nil
}
