package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of PDF pages for synchronous processing
	MaxPagesSync = 5
)

// GoogleVisionExtractor implements TextExtractor using the Google Cloud
// Vision API.
type GoogleVisionExtractor struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionExtractor creates a new extractor with credentials from the
// environment. It expects either GOOGLE_APPLICATION_CREDENTIALS path or
// GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionExtractor(ctx context.Context) (*GoogleVisionExtractor, error) {
	const op = "NewGoogleVisionExtractor"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapExtractionError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapExtractionError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapExtractionError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &GoogleVisionExtractor{client: client}, nil
}

// NewGoogleVisionExtractorWithClient creates an extractor with an explicit
// client (for testing).
func NewGoogleVisionExtractorWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionExtractor {
	return &GoogleVisionExtractor{client: client}
}

// ExtractText extracts text from a scanned PDF or a photographed invoice.
func (g *GoogleVisionExtractor) ExtractText(ctx context.Context, doc io.Reader) (*Result, error) {
	const op = "ExtractText"
	startTime := time.Now()

	data, err := io.ReadAll(doc)
	if err != nil {
		return nil, WrapExtractionError(op, err, "failed to read document data")
	}

	if len(data) > MaxFileSizeBytes {
		return nil, WrapExtractionError(op, ErrDocumentTooLarge, fmt.Sprintf("file size: %d bytes", len(data)))
	}

	mimeType := detectMimeType(data)
	if mimeType == "" {
		return nil, WrapExtractionError(op, ErrUnreadableDocument, "unrecognized document format")
	}

	var result *Result
	switch mimeType {
	case "application/pdf", "image/tiff":
		result, err = g.annotateFile(ctx, data, mimeType)
	default:
		result, err = g.annotateImage(ctx, data)
	}
	if err != nil {
		return nil, WrapExtractionError(op, err, "")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	return result, nil
}

// annotateFile runs document text detection over an inline PDF or TIFF.
func (g *GoogleVisionExtractor) annotateFile(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: mimeType,
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapExtractionError("annotateFile", ErrExtractionFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.Responses) == 0 {
		return nil, WrapExtractionError("annotateFile", ErrExtractionFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapExtractionError("annotateFile", ErrExtractionFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	return g.collectFileResponse(fileResp)
}

// annotateImage runs document text detection over a single photograph.
func (g *GoogleVisionExtractor) annotateImage(ctx context.Context, data []byte) (*Result, error) {
	resp, err := g.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	})
	if err != nil {
		return nil, WrapExtractionError("annotateImage", ErrExtractionFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.Responses) == 0 {
		return nil, WrapExtractionError("annotateImage", ErrExtractionFailed, "no response from Vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return nil, WrapExtractionError("annotateImage", ErrExtractionFailed, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	annotation := imgResp.FullTextAnnotation
	if annotation == nil || strings.TrimSpace(annotation.Text) == "" {
		return nil, ErrEmptyDocument
	}

	var confidenceSum float64
	var confidenceCount int
	languageSet := make(map[string]bool)
	for _, page := range annotation.Pages {
		for _, block := range page.Blocks {
			if block.Confidence > 0 {
				confidenceSum += float64(block.Confidence)
				confidenceCount++
			}
		}
		if page.Property != nil {
			for _, lang := range page.Property.DetectedLanguages {
				if lang.LanguageCode != "" {
					languageSet[lang.LanguageCode] = true
				}
			}
		}
	}

	return &Result{
		Text:          annotation.Text,
		PageCount:     1,
		Confidence:    NormalizeConfidence(averageConfidence(confidenceSum, confidenceCount)),
		LanguageCodes: setToSlice(languageSet),
	}, nil
}

// collectFileResponse aggregates per-page annotations into a single Result.
func (g *GoogleVisionExtractor) collectFileResponse(fileResp *visionpb.AnnotateFileResponse) (*Result, error) {
	if len(fileResp.Responses) == 0 {
		return nil, ErrEmptyDocument
	}

	pageCount := len(fileResp.Responses)
	if pageCount > MaxPagesSync {
		return nil, WrapExtractionError("collectFileResponse", ErrTooManyPages, fmt.Sprintf("document has %d pages", pageCount))
	}

	var allText strings.Builder
	var confidenceSum float64
	var confidenceCount int
	languageSet := make(map[string]bool)

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return nil, fmt.Errorf("error processing page %d: %s", pageIdx+1, page.Error.Message)
		}

		if page.FullTextAnnotation == nil {
			continue
		}

		if pageIdx > 0 {
			allText.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", pageIdx+1))
		}
		allText.WriteString(page.FullTextAnnotation.Text)

		for _, textAnnotation := range page.TextAnnotations {
			if textAnnotation.Confidence > 0 {
				confidenceSum += float64(textAnnotation.Confidence)
				confidenceCount++
			}
		}

		for _, pageInfo := range page.FullTextAnnotation.Pages {
			if pageInfo.Property != nil {
				for _, lang := range pageInfo.Property.DetectedLanguages {
					if lang.LanguageCode != "" {
						languageSet[lang.LanguageCode] = true
					}
				}
			}
		}
	}

	extractedText := allText.String()
	if strings.TrimSpace(extractedText) == "" {
		return nil, ErrEmptyDocument
	}

	return &Result{
		Text:          extractedText,
		PageCount:     pageCount,
		Confidence:    NormalizeConfidence(averageConfidence(confidenceSum, confidenceCount)),
		LanguageCodes: setToSlice(languageSet),
	}, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionExtractor) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// NormalizeConfidence maps an engine-native score onto 0.0-1.0. Engines that
// report percentages (0-100) are scaled down; everything is clamped.
func NormalizeConfidence(score float64) float64 {
	if score > 1 {
		score = score / 100
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func averageConfidence(sum float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func setToSlice(set map[string]bool) []string {
	var out []string
	for k := range set {
		out = append(out, k)
	}
	return out
}

// detectMimeType sniffs the handful of formats the extractor accepts.
func detectMimeType(data []byte) string {
	switch {
	case len(data) >= 4 && string(data[:4]) == "%PDF":
		return "application/pdf"
	case len(data) >= 4 && (bytes.Equal(data[:4], []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.Equal(data[:4], []byte{0x4D, 0x4D, 0x00, 0x2A})):
		return "image/tiff"
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	default:
		return ""
	}
}
