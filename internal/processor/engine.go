/**
 * Recognition Engine - primary backend with automatic fallback
 *
 * Wraps both text-recognition backends behind one interface. The
 * primary backend is attempted first; on failure the engine retries
 * once against the fallback unless the document type is barcode-only.
 * Readiness is explicit, owned state: the engine is constructed and
 * injected rather than reached through a process-wide singleton.
 */

package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ocrerrors "github.com/zakpos/ocr-worker/internal/errors"
	"github.com/zakpos/ocr-worker/internal/logging"
	"github.com/zakpos/ocr-worker/internal/metrics"
)

// Fixed nominal confidence values. Neither backend emits a usable
// per-inference confidence, so the pipeline reports its trust ranking
// between them instead of a computed probability.
const (
	primaryConfidence  = 0.95
	fallbackConfidence = 0.80
)

// Backend is one loaded text-recognition model.
type Backend interface {
	ModelID() string
	Load(ctx context.Context) error
	Recognize(ctx context.Context, imagePNG []byte, language string) (string, error)
}

// Engine routes recognition through the primary backend with a single
// fallback retry.
type Engine struct {
	primary  Backend
	fallback Backend // nil when no fallback is configured

	// The primary model instance is not assumed reentrant-safe for
	// concurrent inference against the same weights.
	primaryMu sync.Mutex

	primaryLoaded  atomic.Bool
	fallbackLoaded atomic.Bool

	logger *logging.Logger
}

// NewEngine creates a recognition engine over the given backends. The
// fallback may be nil.
func NewEngine(primary Backend, fallback Backend, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewLogger("engine")
	}
	return &Engine{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Load brings up both backends. A primary load failure leaves the
// engine not ready but is returned to the caller to decide on; the
// fallback loads independently.
func (e *Engine) Load(ctx context.Context) error {
	if e.fallback != nil {
		if err := e.fallback.Load(ctx); err != nil {
			e.logger.Warn("Fallback backend failed to load",
				"model", e.fallback.ModelID(), "error", err)
		} else {
			e.fallbackLoaded.Store(true)
			e.logger.Info("Fallback backend available", "model", e.fallback.ModelID())
		}
	}

	if err := e.primary.Load(ctx); err != nil {
		return fmt.Errorf("primary backend load failed: %w", err)
	}
	e.primaryLoaded.Store(true)
	e.logger.Info("Primary backend loaded", "model", e.primary.ModelID())
	return nil
}

// IsReady reports whether the engine can serve requests: true only once
// the primary backend has successfully loaded.
func (e *Engine) IsReady() bool {
	return e.primaryLoaded.Load()
}

// IsBackendLoaded reports load state for a backend by model identifier.
func (e *Engine) IsBackendLoaded(name string) bool {
	if name == e.primary.ModelID() {
		return e.primaryLoaded.Load()
	}
	if e.fallback != nil && name == e.fallback.ModelID() {
		return e.fallbackLoaded.Load()
	}
	return false
}

// Recognize runs text recognition for one normalized image. Every
// attempt records its duration and error counters regardless of
// outcome.
func (e *Engine) Recognize(ctx context.Context, img *NormalizedImage, req *ProcessRequest) (*RecognitionOutcome, error) {
	imagePNG, err := img.EncodePNG()
	if err != nil {
		return nil, ocrerrors.NewRecognitionFailedError(req.JobID, fmt.Errorf("image encode failed: %w", err))
	}

	primaryErr := e.tryPrimary(ctx, imagePNG, req)
	if primaryErr.err == nil {
		return primaryErr.outcome, nil
	}

	e.logger.Warn("Primary recognition failed",
		"jobId", req.JobID, "model", e.primary.ModelID(), "error", primaryErr.err)

	// Barcode-only requests never retry against the fallback: the text
	// content is not what the caller is after.
	if req.OCRType == DocumentTypeBarcode {
		return nil, ocrerrors.NewRecognitionFailedError(req.JobID, primaryErr.err)
	}

	if e.fallback == nil {
		return nil, ocrerrors.NewRecognitionFailedError(req.JobID, primaryErr.err)
	}
	if !e.fallbackLoaded.Load() {
		return nil, ocrerrors.NewNoFallbackError(req.JobID, primaryErr.err)
	}

	e.logger.Info("Attempting fallback OCR", "jobId", req.JobID, "model", e.fallback.ModelID())

	start := time.Now()
	text, err := e.fallback.Recognize(ctx, imagePNG, req.Language)
	elapsed := time.Since(start)
	metrics.RecordProcessingTime(e.fallback.ModelID(), string(req.OCRType), elapsed.Seconds())
	if err != nil {
		metrics.RecordError("model_inference_error", e.fallback.ModelID())
		return nil, ocrerrors.NewRecognitionFailedError(req.JobID,
			fmt.Errorf("primary: %v; fallback: %w", primaryErr.err, err))
	}

	return &RecognitionOutcome{
		Text:       text,
		Model:      e.fallback.ModelID(),
		Confidence: fallbackConfidence,
		Backend:    BackendFallback,
		Duration:   elapsed,
	}, nil
}

type primaryAttempt struct {
	outcome *RecognitionOutcome
	err     error
}

func (e *Engine) tryPrimary(ctx context.Context, imagePNG []byte, req *ProcessRequest) primaryAttempt {
	if !e.primaryLoaded.Load() {
		metrics.RecordError("model_not_loaded", e.primary.ModelID())
		return primaryAttempt{err: ocrerrors.NewModelNotLoadedError(req.JobID, e.primary.ModelID())}
	}

	start := time.Now()
	e.primaryMu.Lock()
	text, err := e.primary.Recognize(ctx, imagePNG, req.Language)
	e.primaryMu.Unlock()
	elapsed := time.Since(start)

	metrics.RecordProcessingTime(e.primary.ModelID(), string(req.OCRType), elapsed.Seconds())
	if err != nil {
		metrics.RecordError("model_inference_error", e.primary.ModelID())
		return primaryAttempt{err: err}
	}

	return primaryAttempt{outcome: &RecognitionOutcome{
		Text:       text,
		Model:      e.primary.ModelID(),
		Confidence: primaryConfidence,
		Backend:    BackendPrimary,
		Duration:   elapsed,
	}}
}
