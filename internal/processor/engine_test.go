/**
 * Recognition Engine Tests
 *
 * Verifies routing behavior over fake backends: primary-first order,
 * fallback retry with the fixed fallback confidence, barcode-type
 * fallback suppression, and error classification.
 */

package processor

import (
	"context"
	"errors"
	"image"
	"testing"

	ocrerrors "github.com/zakpos/ocr-worker/internal/errors"
)

// fakeBackend is a scriptable Backend for engine tests.
type fakeBackend struct {
	id        string
	loadErr   error
	text      string
	recognize error
	calls     int
	lastLang  string
}

func (f *fakeBackend) ModelID() string                { return f.id }
func (f *fakeBackend) Load(ctx context.Context) error { return f.loadErr }

func (f *fakeBackend) Recognize(ctx context.Context, imagePNG []byte, language string) (string, error) {
	f.calls++
	f.lastLang = language
	if f.recognize != nil {
		return "", f.recognize
	}
	return f.text, nil
}

func testImage() *NormalizedImage {
	return &NormalizedImage{
		Image:  image.NewGray(image.Rect(0, 0, 8, 8)),
		Width:  8,
		Height: 8,
		Mode:   ColorModeGrayscale,
	}
}

func loadedEngine(t *testing.T, primary, fallback Backend) *Engine {
	t.Helper()
	engine := NewEngine(primary, fallback, nil)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("engine load failed: %v", err)
	}
	return engine
}

func TestRecognizePrimarySuccess(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", text: "Choco Bar $2.50"}
	fallback := &fakeBackend{id: "tesseract", text: "unused"}
	engine := loadedEngine(t, primary, fallback)

	outcome, err := engine.Recognize(context.Background(), testImage(), &ProcessRequest{
		JobID:    "job-1",
		OCRType:  DocumentTypeProduct,
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if outcome.Text != "Choco Bar $2.50" {
		t.Errorf("Text = %q", outcome.Text)
	}
	if outcome.Model != "trocr-base" || outcome.Backend != BackendPrimary {
		t.Errorf("routed to %s/%s, want primary trocr-base", outcome.Model, outcome.Backend)
	}
	if outcome.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", outcome.Confidence)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback invoked %d times on primary success", fallback.calls)
	}
	if primary.lastLang != "en" {
		t.Errorf("language %q not forwarded to backend", primary.lastLang)
	}
}

func TestRecognizeFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", recognize: errors.New("inference timeout")}
	fallback := &fakeBackend{id: "tesseract", text: "Total: $15.00"}
	engine := loadedEngine(t, primary, fallback)

	outcome, err := engine.Recognize(context.Background(), testImage(), &ProcessRequest{
		JobID:   "job-2",
		OCRType: DocumentTypeReceipt,
	})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if outcome.Model != "tesseract" || outcome.Backend != BackendFallback {
		t.Errorf("routed to %s/%s, want fallback tesseract", outcome.Model, outcome.Backend)
	}
	if outcome.Confidence != 0.80 {
		t.Errorf("Confidence = %v, want 0.80", outcome.Confidence)
	}
	if primary.calls != 1 {
		t.Errorf("primary invoked %d times, want 1", primary.calls)
	}
}

func TestRecognizeBarcodeTypeSkipsFallback(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", recognize: errors.New("inference error")}
	fallback := &fakeBackend{id: "tesseract", text: "should not run"}
	engine := loadedEngine(t, primary, fallback)

	_, err := engine.Recognize(context.Background(), testImage(), &ProcessRequest{
		JobID:   "job-3",
		OCRType: DocumentTypeBarcode,
	})
	if err == nil {
		t.Fatal("expected error for barcode request with failed primary")
	}
	if code := ocrerrors.CodeOf(err); code != ocrerrors.ErrorRecognitionFailed {
		t.Errorf("error code = %q, want %q", code, ocrerrors.ErrorRecognitionFailed)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback invoked %d times for barcode request", fallback.calls)
	}
}

func TestRecognizeWithoutFallback(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", recognize: errors.New("inference error")}
	engine := loadedEngine(t, primary, nil)

	_, err := engine.Recognize(context.Background(), testImage(), &ProcessRequest{
		JobID:   "job-4",
		OCRType: DocumentTypeProduct,
	})
	if err == nil {
		t.Fatal("expected error with no fallback configured")
	}
	if code := ocrerrors.CodeOf(err); code != ocrerrors.ErrorRecognitionFailed {
		t.Errorf("error code = %q, want %q", code, ocrerrors.ErrorRecognitionFailed)
	}
}

func TestRecognizeUnloadedFallback(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", recognize: errors.New("inference error")}
	fallback := &fakeBackend{id: "tesseract", loadErr: errors.New("binary missing")}
	engine := loadedEngine(t, primary, fallback)

	_, err := engine.Recognize(context.Background(), testImage(), &ProcessRequest{
		JobID:   "job-5",
		OCRType: DocumentTypeProduct,
	})
	if err == nil {
		t.Fatal("expected error when fallback never loaded")
	}
	if code := ocrerrors.CodeOf(err); code != ocrerrors.ErrorNoFallback {
		t.Errorf("error code = %q, want %q", code, ocrerrors.ErrorNoFallback)
	}
	if fallback.calls != 0 {
		t.Errorf("unloaded fallback invoked %d times", fallback.calls)
	}
}

func TestRecognizeBothBackendsFail(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", recognize: errors.New("primary boom")}
	fallback := &fakeBackend{id: "tesseract", recognize: errors.New("fallback boom")}
	engine := loadedEngine(t, primary, fallback)

	_, err := engine.Recognize(context.Background(), testImage(), &ProcessRequest{
		JobID:   "job-6",
		OCRType: DocumentTypeReceipt,
	})
	if err == nil {
		t.Fatal("expected error when both backends fail")
	}
	if code := ocrerrors.CodeOf(err); code != ocrerrors.ErrorRecognitionFailed {
		t.Errorf("error code = %q, want %q", code, ocrerrors.ErrorRecognitionFailed)
	}
}

func TestEngineReadiness(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base"}
	fallback := &fakeBackend{id: "tesseract"}
	engine := NewEngine(primary, fallback, nil)

	if engine.IsReady() {
		t.Error("engine ready before Load")
	}
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !engine.IsReady() {
		t.Error("engine not ready after Load")
	}
	if !engine.IsBackendLoaded("trocr-base") || !engine.IsBackendLoaded("tesseract") {
		t.Error("backends not reported loaded")
	}
	if engine.IsBackendLoaded("unknown-model") {
		t.Error("unknown model reported loaded")
	}
}

func TestEngineLoadPrimaryFailure(t *testing.T) {
	primary := &fakeBackend{id: "trocr-base", loadErr: errors.New("endpoint down")}
	fallback := &fakeBackend{id: "tesseract"}
	engine := NewEngine(primary, fallback, nil)

	if err := engine.Load(context.Background()); err == nil {
		t.Fatal("expected primary load failure to surface")
	}
	if engine.IsReady() {
		t.Error("engine ready despite primary load failure")
	}
	// The fallback loads independently of the primary.
	if !engine.IsBackendLoaded("tesseract") {
		t.Error("fallback not loaded after independent load")
	}
}
