/**
 * Queue Consumer Tests
 *
 * Drives the task handler directly with fake pipeline and store
 * collaborators: status transitions, retry classification, and payload
 * decoding.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	ocrerrors "github.com/zakpos/ocr-worker/internal/errors"
	"github.com/zakpos/ocr-worker/internal/logging"
	"github.com/zakpos/ocr-worker/internal/processor"
	"github.com/zakpos/ocr-worker/internal/storage"
)

type fakePipeline struct {
	result *processor.ProcessResult
}

func (f *fakePipeline) ProcessImage(ctx context.Context, req *processor.ProcessRequest) *processor.ProcessResult {
	return f.result
}

type fakeStore struct {
	updates []*storage.JobUpdate
	errs    []string
}

func (f *fakeStore) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeStore) RecordError(ctx context.Context, jobID, errorCode, message string) error {
	f.errs = append(f.errs, errorCode)
	return nil
}

func testConsumer(pipeline Pipeline, store JobStore) *Consumer {
	cfg := &ConsumerConfig{
		QueueName:         "ocr:jobs",
		Concurrency:       1,
		ProcessingTimeout: 30000,
		Pipeline:          pipeline,
		Store:             store,
	}
	return &Consumer{
		pipeline: pipeline,
		store:    store,
		config:   cfg,
		logger:   logging.NewLogger("queue-test"),
	}
}

func newTask(t *testing.T, job *JobData) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("failed to marshal job: %v", err)
	}
	return asynq.NewTask(TaskTypeProcessImage, payload)
}

func TestHandleProcessImageSuccess(t *testing.T) {
	store := &fakeStore{}
	consumer := testConsumer(&fakePipeline{result: &processor.ProcessResult{
		ID:         "result-1",
		Text:       "Total: $15.00",
		Confidence: 0.95,
		ModelUsed:  "trocr-base",
		Barcodes:   []processor.Barcode{},
	}}, store)

	task := newTask(t, &JobData{
		JobID:     "job-1",
		ShopID:    "shop-1",
		OCRType:   "receipt",
		ImageData: []byte("png bytes"),
	})

	if err := consumer.handleProcessImage(context.Background(), task); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if len(store.updates) != 2 {
		t.Fatalf("got %d status updates, want 2", len(store.updates))
	}
	if store.updates[0].Status != storage.JobStatusProcessing {
		t.Errorf("first status = %q, want processing", store.updates[0].Status)
	}
	last := store.updates[1]
	if last.Status != storage.JobStatusCompleted {
		t.Errorf("final status = %q, want completed", last.Status)
	}
	if last.Confidence != 0.95 || last.ModelUsed != "trocr-base" {
		t.Errorf("final update = %+v", last)
	}
	if len(last.Result) == 0 {
		t.Error("completed update missing result payload")
	}
}

func TestHandleProcessImageFailureRetryable(t *testing.T) {
	store := &fakeStore{}
	consumer := testConsumer(&fakePipeline{result: &processor.ProcessResult{
		ModelUsed: "error",
		ErrorCode: string(ocrerrors.ErrorRecognitionFailed),
		Error:     "both backends failed",
	}}, store)

	task := newTask(t, &JobData{JobID: "job-2", OCRType: "product", ImageData: []byte("x")})

	err := consumer.handleProcessImage(context.Background(), task)
	if err == nil {
		t.Fatal("expected handler error for failed result")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Error("recognition failure should stay retryable")
	}

	last := store.updates[len(store.updates)-1]
	if last.Status != storage.JobStatusFailed {
		t.Errorf("final status = %q, want failed", last.Status)
	}
	if len(store.errs) != 1 || store.errs[0] != string(ocrerrors.ErrorRecognitionFailed) {
		t.Errorf("recorded errors = %v", store.errs)
	}
}

func TestHandleProcessImageInvalidInputSkipsRetry(t *testing.T) {
	for _, code := range []ocrerrors.ErrorCode{
		ocrerrors.ErrorInvalidImage,
		ocrerrors.ErrorImageTooLarge,
	} {
		consumer := testConsumer(&fakePipeline{result: &processor.ProcessResult{
			ModelUsed: "error",
			ErrorCode: string(code),
			Error:     "bad input",
		}}, nil)

		task := newTask(t, &JobData{JobID: "job-3", OCRType: "product", ImageData: []byte("x")})

		err := consumer.handleProcessImage(context.Background(), task)
		if err == nil {
			t.Fatalf("%s: expected handler error", code)
		}
		if !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("%s: deterministic input error should skip retry", code)
		}
	}
}

func TestHandleProcessImageMalformedPayload(t *testing.T) {
	consumer := testConsumer(&fakePipeline{}, nil)

	task := asynq.NewTask(TaskTypeProcessImage, []byte("{not json"))
	err := consumer.handleProcessImage(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Error("malformed payload should skip retry")
	}
}

func TestNewConsumerValidation(t *testing.T) {
	if _, err := NewConsumer(&ConsumerConfig{QueueName: "q", Pipeline: &fakePipeline{}}); err == nil {
		t.Error("expected error for missing RedisURL")
	}
	if _, err := NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", Pipeline: &fakePipeline{}}); err == nil {
		t.Error("expected error for missing QueueName")
	}
	if _, err := NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", QueueName: "q"}); err == nil {
		t.Error("expected error for missing Pipeline")
	}
}
