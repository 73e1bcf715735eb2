/**
 * Custom error types for the ZakPOS OCR Worker
 *
 * Every terminal pipeline failure is a ProcessingError with a stable
 * ErrorCode, so job persistence and metrics key on the code rather
 * than on error strings.
 */

package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorInvalidImage  ErrorCode = "INVALID_IMAGE"
	ErrorImageTooLarge ErrorCode = "IMAGE_TOO_LARGE"

	// Recognition errors
	ErrorModelNotLoaded    ErrorCode = "MODEL_NOT_LOADED"
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"
	ErrorNoFallback        ErrorCode = "NO_FALLBACK"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode from an error chain; unclassified errors
// yield the empty code.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Factory functions for common errors

func NewInvalidImageError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidImage,
		Message:   "Failed to decode image",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewImageTooLargeError(jobID string, sizeBytes, limitBytes int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorImageTooLarge,
		Message:   fmt.Sprintf("Image size %d exceeds limit of %d bytes", sizeBytes, limitBytes),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"size_bytes":  sizeBytes,
			"limit_bytes": limitBytes,
		},
	}
}

func NewModelNotLoadedError(jobID string, model string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorModelNotLoaded,
		Message:   fmt.Sprintf("Model not loaded: %s", model),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model": model,
		},
	}
}

func NewRecognitionFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRecognitionFailed,
		Message:   "All recognition backends exhausted",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewNoFallbackError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNoFallback,
		Message:   "Fallback backend invoked but not loaded",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to persist job state",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
