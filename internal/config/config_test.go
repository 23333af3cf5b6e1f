package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Extractor)
	assert.Equal(t, "main-store", cfg.DefaultStoreID)
	assert.Equal(t, DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadWithoutExtractionCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	// Load succeeds: sales ingestion and confirmation don't need an
	// extraction backend.
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ValidateExtraction()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadRejectsUnknownExtractor(t *testing.T) {
	t.Setenv("STRUCTURED_EXTRACTOR", "tesseract")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRUCTURED_EXTRACTOR")
}

func TestValidateExtractionDocumentAI(t *testing.T) {
	t.Setenv("STRUCTURED_EXTRACTOR", "documentai")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "proj-1")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "proc-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "documentai", cfg.Extractor)
	require.NoError(t, cfg.ValidateExtraction())

	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateExtraction())
}

func TestThresholdOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REVIEW_THRESHOLD", "0.8")
	t.Setenv("MARGIN_FLOOR_PERCENT", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Thresholds.Review)
	assert.Equal(t, 20.0, cfg.Thresholds.MarginFloorPercent)
	assert.Equal(t, 10.0, cfg.Thresholds.PriceChangePercent)
}

func TestInvalidReviewThresholdRejected(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REVIEW_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REVIEW_THRESHOLD")
}
