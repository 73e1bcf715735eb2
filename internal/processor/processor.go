/**
 * OCR Pipeline Orchestrator
 *
 * Composes the pipeline for one request: cache lookup, normalization,
 * recognition with fallback, optional barcode detection, structured
 * field extraction, cache write, metrics. Failures never escape as raw
 * errors; callers always receive a ProcessResult-shaped value with the
 * error field populated.
 */

package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	ocrerrors "github.com/zakpos/ocr-worker/internal/errors"
	"github.com/zakpos/ocr-worker/internal/logging"
	"github.com/zakpos/ocr-worker/internal/metrics"
)

// Recognizer is the recognition engine contract the pipeline depends
// on; *Engine satisfies it, tests substitute fakes.
type Recognizer interface {
	Recognize(ctx context.Context, img *NormalizedImage, req *ProcessRequest) (*RecognitionOutcome, error)
	IsReady() bool
	IsBackendLoaded(name string) bool
}

// Detector finds barcode payloads in a normalized image.
type Detector interface {
	Detect(img *NormalizedImage) []Barcode
}

// ResultCache is the keyed store the pipeline reads through. Both
// families degrade to a no-op without a backing store.
type ResultCache interface {
	GetResult(ctx context.Context, jobID string) ([]byte, bool)
	PutResult(ctx context.Context, jobID string, payload []byte)
	GetFeatures(ctx context.Context, imageHash string) ([]byte, bool)
	PutFeatures(ctx context.Context, imageHash string, payload []byte)
}

// PipelineConfig holds orchestrator configuration.
type PipelineConfig struct {
	MaxImageBytes  int64
	MaxDimensionPx int
	EnableBarcodes bool
	EnableCaching  bool
	Logger         *logging.Logger
}

// Pipeline is the OCR pipeline orchestrator.
type Pipeline struct {
	normalizer *Normalizer
	engine     Recognizer
	detector   Detector
	cache      ResultCache
	cfg        PipelineConfig
	logger     *logging.Logger
}

// imageFeatures is the reusable recognition output cached by image
// content hash, so identical image bytes across different jobs skip
// inference entirely.
type imageFeatures struct {
	Text       string  `json:"text"`
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
	Backend    string  `json:"backend"`
}

// NewPipeline creates the orchestrator. The engine is required; the
// detector and cache may be nil (barcode enrichment off, caching off).
func NewPipeline(engine Recognizer, detector Detector, cache ResultCache, cfg PipelineConfig) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("recognition engine is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("pipeline")
	}

	if cfg.MaxDimensionPx <= 0 {
		cfg.MaxDimensionPx = 2048
	}

	return &Pipeline{
		normalizer: NewNormalizer(cfg.MaxImageBytes, cfg.MaxDimensionPx, logger),
		engine:     engine,
		detector:   detector,
		cache:      cache,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// IsReady reports pipeline readiness, true only once the primary
// recognition backend has loaded.
func (p *Pipeline) IsReady() bool {
	return p.engine.IsReady()
}

// IsBackendLoaded reports load state for a recognition backend by model
// identifier.
func (p *Pipeline) IsBackendLoaded(name string) bool {
	return p.engine.IsBackendLoaded(name)
}

// ProcessImage runs the full pipeline for one request. It always
// returns a result: processing failures populate the result's error
// fields instead of surfacing as an error value.
func (p *Pipeline) ProcessImage(ctx context.Context, req *ProcessRequest) (result *ProcessResult) {
	start := time.Now()

	if req == nil {
		return &ProcessResult{
			ID:        uuid.NewString(),
			Barcodes:  []Barcode{},
			ModelUsed: "error",
			Error:     "nil request",
		}
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	log := p.logger.With("jobId", jobID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline panicked", "panic", r)
			result = p.failResult(req, start, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	log.Info("OCR processing started", "ocrType", string(req.OCRType), "shopId", req.ShopID)

	// Cache lookup: identical job ids return the stored result without
	// touching the backends.
	if p.cachingEnabled() {
		if payload, ok := p.cache.GetResult(ctx, jobID); ok {
			var cached ProcessResult
			if err := json.Unmarshal(payload, &cached); err == nil {
				log.Debug("Returning cached result")
				metrics.RecordRequest(string(req.OCRType), "cached")
				return &cached
			}
			log.Warn("Discarding undecodable cache entry")
		}
	}

	img, err := p.normalizer.Normalize(req)
	if err != nil {
		log.Error("Image normalization failed", "error", err)
		return p.failResult(req, start, err)
	}

	outcome, err := p.recognize(ctx, img, req, log)
	if err != nil {
		log.Error("Recognition failed", "error", err)
		return p.failResult(req, start, err)
	}

	var barcodes []Barcode
	if p.cfg.EnableBarcodes && req.ExtractBarcodes && p.detector != nil {
		barcodes = p.detector.Detect(img)
	}
	if barcodes == nil {
		barcodes = []Barcode{}
	}

	fields := ExtractFields(outcome.Text, req.OCRType)
	if fields.Degraded() && req.OCRType != DocumentTypeBarcode {
		// Warning state, not a failure: the pipeline returns all-null
		// fields rather than aborting.
		log.Warn("Structured parsing degraded to all-null fields", "model", outcome.Model)
		metrics.RecordError("structured_parse_degraded", outcome.Model)
	}

	elapsed := time.Since(start)
	result = &ProcessResult{
		ID:               uuid.NewString(),
		Text:             outcome.Text,
		Confidence:       outcome.Confidence,
		Structured:       fields,
		Barcodes:         barcodes,
		ProcessingTimeMs: elapsed.Milliseconds(),
		ModelUsed:        outcome.Model,
	}

	if p.cachingEnabled() {
		if payload, err := json.Marshal(result); err == nil {
			p.cache.PutResult(ctx, jobID, payload)
		}
	}

	p.recordMetrics(req, result, elapsed)

	log.Info("OCR processing completed",
		"confidence", result.Confidence,
		"model", result.ModelUsed,
		"backend", outcome.Backend,
		"barcodes", len(result.Barcodes),
		"processingTimeMs", result.ProcessingTimeMs)

	return result
}

// ProcessBatch fans out all unit pipelines concurrently and waits for
// all of them. The returned slice always matches the input in length
// and order; a failed unit yields a placeholder result with a populated
// error field. Only malformed batch input aborts the whole batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, reqs []*ProcessRequest) ([]*ProcessResult, error) {
	for i, req := range reqs {
		if req == nil {
			return nil, fmt.Errorf("batch request at index %d is nil", i)
		}
	}

	results := make([]*ProcessResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *ProcessRequest) {
			defer wg.Done()
			results[i] = p.ProcessImage(ctx, req)
		}(i, req)
	}
	wg.Wait()

	return results, nil
}

// recognize consults the feature cache by image content hash before
// invoking the engine, and refreshes it afterwards.
func (p *Pipeline) recognize(ctx context.Context, img *NormalizedImage, req *ProcessRequest, log *logging.Logger) (*RecognitionOutcome, error) {
	var imageHash string
	if p.cachingEnabled() {
		imageHash = imageContentHash(req.ImageData)
		if payload, ok := p.cache.GetFeatures(ctx, imageHash); ok {
			var feats imageFeatures
			if err := json.Unmarshal(payload, &feats); err == nil && feats.Text != "" {
				log.Debug("Reusing cached image features", "model", feats.Model)
				return &RecognitionOutcome{
					Text:       feats.Text,
					Model:      feats.Model,
					Confidence: feats.Confidence,
					Backend:    feats.Backend,
				}, nil
			}
		}
	}

	outcome, err := p.engine.Recognize(ctx, img, req)
	if err != nil {
		return nil, err
	}

	if p.cachingEnabled() && imageHash != "" {
		if payload, err := json.Marshal(imageFeatures{
			Text:       outcome.Text,
			Model:      outcome.Model,
			Confidence: outcome.Confidence,
			Backend:    outcome.Backend,
		}); err == nil {
			p.cache.PutFeatures(ctx, imageHash, payload)
		}
	}

	return outcome, nil
}

func (p *Pipeline) cachingEnabled() bool {
	return p.cfg.EnableCaching && p.cache != nil
}

// imageContentHash keys the feature cache by raw image bytes.
func imageContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// failResult converts a terminal pipeline error into the placeholder
// result shape: zero confidence, empty text, populated error fields.
func (p *Pipeline) failResult(req *ProcessRequest, start time.Time, err error) *ProcessResult {
	metrics.RecordRequest(string(req.OCRType), "failed")
	metrics.RecordError("processing_error", "")

	return &ProcessResult{
		ID:               uuid.NewString(),
		Text:             "",
		Confidence:       0,
		Structured:       StructuredFields{Type: req.OCRType},
		Barcodes:         []Barcode{},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		ModelUsed:        "error",
		ErrorCode:        string(ocrerrors.CodeOf(err)),
		Error:            err.Error(),
	}
}

func (p *Pipeline) recordMetrics(req *ProcessRequest, result *ProcessResult, elapsed time.Duration) {
	metrics.RecordRequest(string(req.OCRType), "completed")
	metrics.RecordProcessingTime(result.ModelUsed, string(req.OCRType), elapsed.Seconds())

	// Coarse accuracy banding, carried over from the service contract.
	switch {
	case result.Confidence > 0.9:
		metrics.RecordModelAccuracy(result.ModelUsed, "overall", result.Confidence)
	case result.Confidence > 0.7:
		metrics.RecordModelAccuracy(result.ModelUsed, "overall", 0.7)
	default:
		metrics.RecordModelAccuracy(result.ModelUsed, "overall", 0.5)
	}
}
