package ocr

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"fraction passes through", 0.87, 0.87},
		{"percentage scaled down", 87, 0.87},
		{"negative clamped", -0.2, 0},
		{"over one hundred clamped", 250, 1},
		{"zero", 0, 0},
		{"exactly one", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeConfidence(tt.score), 0.0001)
		})
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.7 ..."), "application/pdf"},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00, 0x01}, "image/tiff"},
		{"tiff big endian", []byte{0x4D, 0x4D, 0x00, 0x2A, 0x01}, "image/tiff"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png"},
		{"plain text", []byte("hello"), ""},
		{"too short", []byte{0xFF}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectMimeType(tt.data))
		})
	}
}

func TestExtractTextRejectsUnknownFormat(t *testing.T) {
	extractor := NewGoogleVisionExtractorWithClient(nil)

	_, err := extractor.ExtractText(context.Background(), bytes.NewReader([]byte("just some text")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}

func TestExtractTextRejectsOversizedDocument(t *testing.T) {
	extractor := NewGoogleVisionExtractorWithClient(nil)

	big := make([]byte, MaxFileSizeBytes+1)
	copy(big, "%PDF")

	_, err := extractor.ExtractText(context.Background(), bytes.NewReader(big))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentTooLarge)
}
