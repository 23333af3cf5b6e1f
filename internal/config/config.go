// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"shopcore/internal/logger"
)

// Thresholds consolidates the numeric knobs used by matching, alerting and
// review gating. Defaults mirror the values the business has been running
// with; they are env-tunable for testing.
type Thresholds struct {
	// HighConfidence is the score at or above which a match is trusted
	// without highlighting.
	HighConfidence float64

	// Review is the overall-confidence floor below which an invoice is
	// flagged needs_review.
	Review float64

	// PriceChangePercent is the absolute percent cost change that raises a
	// price alert.
	PriceChangePercent float64

	// SevereChangePercent is the percent increase that escalates a price
	// increase to high severity.
	SevereChangePercent float64

	// MarginFloorPercent is the margin below which a MARGIN_COMPRESSION
	// alert is raised.
	MarginFloorPercent float64

	// CriticalMarginPercent is the margin below which the compression alert
	// becomes high severity.
	CriticalMarginPercent float64

	// TotalTolerance is the absolute currency-unit tolerance for invoice
	// total consistency checks.
	TotalTolerance float64
}

// DefaultThresholds returns the standard tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighConfidence:        0.85,
		Review:                0.9,
		PriceChangePercent:    10,
		SevereChangePercent:   25,
		MarginFloorPercent:    15,
		CriticalMarginPercent: 5,
		TotalTolerance:        1,
	}
}

type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float32

	// Google Cloud / Document AI Configuration
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Extractor selects the structured extraction backend: "openai" or
	// "documentai".
	Extractor string

	// Storage Configuration
	DatabaseURL string // empty selects the in-memory store
	RedisAddr   string // empty disables the catalog cache

	// DefaultStoreID scopes CLI operations when no store flag is given.
	DefaultStoreID string

	// Pipeline tuning
	Thresholds Thresholds

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", ""),
		OpenAITemperature:     float32(getEnvFloat("OPENAI_TEMPERATURE", 0.1)),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		Extractor:             getEnv("STRUCTURED_EXTRACTOR", "openai"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		DefaultStoreID:        getEnv("DEFAULT_STORE_ID", "main-store"),
		Thresholds:            loadThresholds(),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func loadThresholds() Thresholds {
	t := DefaultThresholds()
	t.HighConfidence = getEnvFloat("MATCH_HIGH_CONFIDENCE", t.HighConfidence)
	t.Review = getEnvFloat("REVIEW_THRESHOLD", t.Review)
	t.PriceChangePercent = getEnvFloat("PRICE_CHANGE_PERCENT", t.PriceChangePercent)
	t.SevereChangePercent = getEnvFloat("SEVERE_CHANGE_PERCENT", t.SevereChangePercent)
	t.MarginFloorPercent = getEnvFloat("MARGIN_FLOOR_PERCENT", t.MarginFloorPercent)
	t.CriticalMarginPercent = getEnvFloat("CRITICAL_MARGIN_PERCENT", t.CriticalMarginPercent)
	t.TotalTolerance = getEnvFloat("TOTAL_TOLERANCE", t.TotalTolerance)
	return t
}

func (c *Config) validate() error {
	switch c.Extractor {
	case "openai", "documentai":
	default:
		return fmt.Errorf("unknown STRUCTURED_EXTRACTOR %q (want openai or documentai)", c.Extractor)
	}

	if c.Thresholds.Review < 0 || c.Thresholds.Review > 1 {
		return fmt.Errorf("REVIEW_THRESHOLD must be within [0,1]")
	}
	if c.Thresholds.HighConfidence < 0 || c.Thresholds.HighConfidence > 1 {
		return fmt.Errorf("MATCH_HIGH_CONFIDENCE must be within [0,1]")
	}

	return nil
}

// ValidateExtraction checks the credentials the configured structured
// extractor needs. Only the commands that actually run extraction call this;
// sales ingestion and confirmation work without any extraction backend.
func (c *Config) ValidateExtraction() error {
	switch c.Extractor {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when STRUCTURED_EXTRACTOR=openai")
		}
	case "documentai":
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when STRUCTURED_EXTRACTOR=documentai")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required when STRUCTURED_EXTRACTOR=documentai")
		}
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
