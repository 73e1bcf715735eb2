/**
 * Configuration for the ZakPOS OCR Worker
 *
 * Loads configuration from environment variables matching .env
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (job queue + result cache)
	RedisURL string

	// PostgreSQL configuration (job status tracking; optional)
	DatabaseURL string

	// Recognition backends
	TrOCRURL      string
	PrimaryModel  string
	FallbackModel string

	// Image limits
	MaxImageSizeMB int
	MaxDimensionPx int

	// OCR behavior
	ConfidenceThreshold    float64
	EnableBarcodeDetection bool
	EnableModelCaching     bool

	// Cache TTLs in seconds
	CacheTTLSeconds        int
	FeatureCacheTTLSeconds int

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	QueueName         string

	// HTTP surface (health + metrics)
	Port int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:            getEnvOrDefault("DATABASE_URL", ""),
		TrOCRURL:               getEnvOrDefault("TROCR_URL", "http://localhost:8501"),
		PrimaryModel:           getEnvOrDefault("OCR_MODEL_PRIMARY", "microsoft/trocr-small-printed"),
		FallbackModel:          getEnvOrDefault("OCR_MODEL_FALLBACK", "tesseract"),
		MaxImageSizeMB:         getEnvAsIntOrDefault("MAX_IMAGE_SIZE_MB", 10),
		MaxDimensionPx:         getEnvAsIntOrDefault("MAX_IMAGE_DIMENSION_PX", 2048),
		ConfidenceThreshold:    getEnvAsFloatOrDefault("OCR_CONFIDENCE_THRESHOLD", 0.8),
		EnableBarcodeDetection: getEnvAsBoolOrDefault("ENABLE_BARCODE_DETECTION", true),
		EnableModelCaching:     getEnvAsBoolOrDefault("ENABLE_MODEL_CACHING", true),
		CacheTTLSeconds:        getEnvAsIntOrDefault("OCR_CACHE_TTL_SECONDS", 3600),
		FeatureCacheTTLSeconds: getEnvAsIntOrDefault("FEATURE_CACHE_TTL_SECONDS", 86400),
		WorkerConcurrency:      getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:      getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 30000), // 30 seconds
		QueueName:              getEnvOrDefault("OCR_QUEUE_NAME", "ocr:jobs"),
		Port:                   getEnvAsIntOrDefault("PORT", 8000),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.TrOCRURL == "" {
		return fmt.Errorf("TROCR_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxImageSizeMB < 1 || c.MaxImageSizeMB > 100 {
		return fmt.Errorf("MAX_IMAGE_SIZE_MB must be between 1 and 100, got %d", c.MaxImageSizeMB)
	}

	if c.MaxDimensionPx < 64 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION_PX must be at least 64, got %d", c.MaxDimensionPx)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("OCR_CONFIDENCE_THRESHOLD must be between 0 and 1, got %f", c.ConfidenceThreshold)
	}

	return nil
}

// MaxImageSizeBytes returns the upload size limit in bytes.
func (c *Config) MaxImageSizeBytes() int64 {
	return int64(c.MaxImageSizeMB) * 1024 * 1024
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
