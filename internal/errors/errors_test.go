/**
 * Processing Error Tests
 */

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	base := stderrors.New("decode failed")

	testCases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "direct", err: NewInvalidImageError("job-1", base), want: ErrorInvalidImage},
		{name: "wrapped", err: fmt.Errorf("outer: %w", NewNoFallbackError("job-2", base)), want: ErrorNoFallback},
		{name: "unclassified error", err: base, want: ""},
		{name: "nil", err: nil, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProcessingErrorUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewRecognitionFailedError("job-3", cause)

	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}

	m := err.ToMap()
	if m["error_code"] != string(ErrorRecognitionFailed) {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["cause"] != "connection refused" {
		t.Errorf("cause = %v", m["cause"])
	}
}

func TestImageTooLargeDetails(t *testing.T) {
	err := NewImageTooLargeError("job-4", 20<<20, 10<<20)
	if err.Code != ErrorImageTooLarge {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Details["size_bytes"] == nil || err.Details["limit_bytes"] == nil {
		t.Errorf("Details = %v, want size and limit", err.Details)
	}
}
