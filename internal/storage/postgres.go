/**
 * PostgreSQL job store for the ZakPOS OCR Worker
 *
 * Durable job-status tracking (queued/processing/completed/failed) and
 * error recording. The pipeline itself never persists results; this
 * store is the outbound persistence collaborator driven by the queue
 * consumer.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// JobStatus is the lifecycle state of an OCR job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	ShopID           string
	UserID           string
	Status           JobStatus
	Confidence       float64
	ProcessingTimeMs int64
	ModelUsed        string
	ErrorCode        string
	ErrorMessage     string
	Result           json.RawMessage
}

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// sanitizeConfidence clamps confidence to [0,1] and rounds it to 4
// decimal places so the NUMERIC(5,4) column never sees float noise
// like 0.9632000000000001.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection pool sized for a single worker process
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts the job row, so the worker can create the
// record even when the API side has not written it yet.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	query := `
		INSERT INTO ocr_jobs (
			job_id, shop_id, user_id, status, confidence,
			processing_time_ms, model_used, error_code, error_message,
			result, updated_at
		) VALUES (
			$1, $2, $3, $4, CAST($5 AS NUMERIC(5,4)),
			$6, $7, NULLIF($8, ''), NULLIF($9, ''),
			$10, NOW()
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status             = EXCLUDED.status,
			confidence         = EXCLUDED.confidence,
			processing_time_ms = EXCLUDED.processing_time_ms,
			model_used         = EXCLUDED.model_used,
			error_code         = EXCLUDED.error_code,
			error_message      = EXCLUDED.error_message,
			result             = COALESCE(EXCLUDED.result, ocr_jobs.result),
			updated_at         = NOW()`

	var result interface{}
	if len(update.Result) > 0 {
		result = []byte(update.Result)
	}

	_, err := p.db.ExecContext(ctx, query,
		update.JobID,
		update.ShopID,
		update.UserID,
		string(update.Status),
		sanitizeConfidence(update.Confidence),
		update.ProcessingTimeMs,
		update.ModelUsed,
		update.ErrorCode,
		update.ErrorMessage,
		result,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", update.JobID, err)
	}

	return nil
}

// RecordError appends one row to the error log for a job.
func (p *PostgresClient) RecordError(ctx context.Context, jobID, errorCode, message string) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	query := `
		INSERT INTO ocr_job_errors (job_id, error_code, message, created_at)
		VALUES ($1, $2, $3, NOW())`

	if _, err := p.db.ExecContext(ctx, query, jobID, errorCode, message); err != nil {
		return fmt.Errorf("failed to record error for job %s: %w", jobID, err)
	}
	return nil
}

// Ping checks database connectivity.
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the connection pool.
func (p *PostgresClient) Close() error {
	return p.db.Close()
}
