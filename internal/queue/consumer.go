/**
 * Queue Consumer for the ZakPOS OCR Worker
 *
 * Consumes OCR jobs from the Redis-backed queue and drives the
 * processing pipeline, tracking job status around each run. Uses Asynq
 * for queue management.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	ocrerrors "github.com/zakpos/ocr-worker/internal/errors"
	"github.com/zakpos/ocr-worker/internal/logging"
	"github.com/zakpos/ocr-worker/internal/processor"
	"github.com/zakpos/ocr-worker/internal/storage"
)

// TaskTypeProcessImage is the asynq task type for OCR jobs.
const TaskTypeProcessImage = "ocr:process"

// JobData is the queue payload for one OCR job. ImageData travels
// base64-encoded in JSON.
type JobData struct {
	JobID               string  `json:"jobId"`
	ShopID              string  `json:"shopId"`
	UserID              string  `json:"userId"`
	OCRType             string  `json:"ocrType"`
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
	ExtractBarcodes     bool    `json:"extractBarcodes,omitempty"`
	Language            string  `json:"language,omitempty"`
	Filename            string  `json:"filename,omitempty"`
	FileSize            int64   `json:"fileSize,omitempty"`
	ImageData           []byte  `json:"imageData"`
}

// Pipeline is the processing contract the consumer drives.
type Pipeline interface {
	ProcessImage(ctx context.Context, req *processor.ProcessRequest) *processor.ProcessResult
}

// JobStore persists job lifecycle state. Nil disables tracking.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	RecordError(ctx context.Context, jobID, errorCode, message string) error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	ProcessingTimeout int // per-job timeout in milliseconds
	Pipeline          Pipeline
	Store             JobStore // optional
	Logger            *logging.Logger
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	pipeline Pipeline
	store    JobStore
	config   *ConsumerConfig
	logger   *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("Pipeline is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at 60s
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:   client,
		server:   server,
		mux:      mux,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		config:   cfg,
		logger:   logger,
	}

	mux.HandleFunc(TaskTypeProcessImage, consumer.handleProcessImage)

	return consumer, nil
}

// Enqueue submits an OCR job to the queue.
func (c *Consumer) Enqueue(ctx context.Context, job *JobData) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	task := asynq.NewTask(TaskTypeProcessImage, payload)
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName)); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}

	c.markStatus(ctx, job.JobID, job, &storage.JobUpdate{
		JobID:  job.JobID,
		ShopID: job.ShopID,
		UserID: job.UserID,
		Status: storage.JobStatusQueued,
	})
	return nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.logger.Error("Queue consumer error", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleProcessImage processes one OCR job
func (c *Consumer) handleProcessImage(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job JobData
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	c.logger.Info("Processing OCR job",
		"jobId", job.JobID, "ocrType", job.OCRType,
		"filename", job.Filename, "size", job.FileSize, "shopId", job.ShopID)

	c.markStatus(ctx, job.JobID, &job, &storage.JobUpdate{
		JobID:  job.JobID,
		ShopID: job.ShopID,
		UserID: job.UserID,
		Status: storage.JobStatusProcessing,
	})

	// Per-job timeout so a hung backend can never wedge a worker slot.
	timeout := 30 * time.Second
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := c.pipeline.ProcessImage(processCtx, &processor.ProcessRequest{
		JobID:               job.JobID,
		ShopID:              job.ShopID,
		UserID:              job.UserID,
		OCRType:             processor.DocumentType(job.OCRType),
		ConfidenceThreshold: job.ConfidenceThreshold,
		ExtractBarcodes:     job.ExtractBarcodes,
		Language:            job.Language,
		ImageData:           job.ImageData,
		FileSize:            job.FileSize,
		Filename:            job.Filename,
	})

	duration := time.Since(startTime)

	if result.Failed() {
		if processCtx.Err() == context.DeadlineExceeded {
			timeoutErr := ocrerrors.NewProcessingTimeoutError(job.JobID, timeout, nil)
			c.logger.Error("Job timed out", "jobId", job.JobID, "timeout", timeout)
			c.failJob(ctx, &job, result, string(ocrerrors.ErrorProcessingTimeout), timeoutErr.Message, duration)
			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		c.logger.Error("Job failed",
			"jobId", job.JobID, "errorCode", result.ErrorCode, "error", result.Error)
		c.failJob(ctx, &job, result, result.ErrorCode, result.Error, duration)

		// Deterministic input errors will not succeed on retry.
		switch ocrerrors.ErrorCode(result.ErrorCode) {
		case ocrerrors.ErrorInvalidImage, ocrerrors.ErrorImageTooLarge:
			return fmt.Errorf("%s: %s: %w", result.ErrorCode, result.Error, asynq.SkipRetry)
		}
		return fmt.Errorf("%s: %s", result.ErrorCode, result.Error)
	}

	c.logger.Info("Job completed",
		"jobId", job.JobID, "confidence", result.Confidence,
		"model", result.ModelUsed, "durationMs", duration.Milliseconds())

	payload, _ := json.Marshal(result)
	c.markStatus(ctx, job.JobID, &job, &storage.JobUpdate{
		JobID:            job.JobID,
		ShopID:           job.ShopID,
		UserID:           job.UserID,
		Status:           storage.JobStatusCompleted,
		Confidence:       result.Confidence,
		ProcessingTimeMs: duration.Milliseconds(),
		ModelUsed:        result.ModelUsed,
		Result:           payload,
	})

	return nil
}

func (c *Consumer) failJob(ctx context.Context, job *JobData, result *processor.ProcessResult, errorCode, message string, duration time.Duration) {
	c.markStatus(ctx, job.JobID, job, &storage.JobUpdate{
		JobID:            job.JobID,
		ShopID:           job.ShopID,
		UserID:           job.UserID,
		Status:           storage.JobStatusFailed,
		ProcessingTimeMs: duration.Milliseconds(),
		ModelUsed:        result.ModelUsed,
		ErrorCode:        errorCode,
		ErrorMessage:     message,
	})

	if c.store != nil {
		if err := c.store.RecordError(ctx, job.JobID, errorCode, message); err != nil {
			c.logger.Warn("Failed to record job error", "jobId", job.JobID, "error", err)
		}
	}
}

func (c *Consumer) markStatus(ctx context.Context, jobID string, job *JobData, update *storage.JobUpdate) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdateJobStatus(ctx, update); err != nil {
		c.logger.Warn("Failed to update job status",
			"jobId", jobID, "status", string(update.Status), "error", err)
	}
}
