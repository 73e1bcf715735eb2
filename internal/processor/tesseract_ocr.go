/**
 * Tesseract OCR - fallback text-recognition backend
 *
 * Conventional offline OCR used only when the primary backend fails.
 * A fresh gosseract client per call keeps the backend safe for
 * concurrent use; the engine assigns the fallback slot's fixed nominal
 * confidence.
 */

package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR is the fallback recognition backend.
type TesseractOCR struct {
	model string
}

// NewTesseractOCR creates the Tesseract backend. The model identifier
// is what results report, conventionally "tesseract".
func NewTesseractOCR(model string) *TesseractOCR {
	if model == "" {
		model = "tesseract"
	}
	return &TesseractOCR{model: model}
}

// ModelID returns the model identifier reported in results.
func (t *TesseractOCR) ModelID() string {
	return t.model
}

// Load is a no-op: Tesseract links in-process and needs no warm-up.
func (t *TesseractOCR) Load(ctx context.Context) error {
	return nil
}

// Recognize runs Tesseract over a PNG-encoded image.
func (t *TesseractOCR) Recognize(ctx context.Context, imagePNG []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(imagePNG); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	if lang := tesseractLanguage(language); lang != "" {
		if err := client.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("failed to set language %q: %w", lang, err)
		}
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// tesseractLanguage maps a request language tag to a Tesseract
// traineddata name. Unknown tags fall back to English.
func tesseractLanguage(tag string) string {
	switch strings.ToLower(tag) {
	case "", "en", "eng":
		return "eng"
	case "de", "deu":
		return "deu"
	case "fr", "fra":
		return "fra"
	case "es", "spa":
		return "spa"
	case "it", "ita":
		return "ita"
	default:
		return "eng"
	}
}
