/**
 * Job Store Tests
 *
 * Unit coverage for the parts that run without a live database:
 * confidence sanitization and input validation.
 */

package storage

import (
	"testing"
)

func TestSanitizeConfidence(t *testing.T) {
	testCases := []struct {
		name  string
		input float64
		want  float64
	}{
		{name: "in range", input: 0.95, want: 0.95},
		{name: "float noise rounded", input: 0.9632000000000001, want: 0.9632},
		{name: "rounds half up", input: 0.12345, want: 0.1235},
		{name: "clamped below", input: -0.5, want: 0.0},
		{name: "clamped above", input: 1.7, want: 1.0},
		{name: "zero", input: 0.0, want: 0.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeConfidence(tc.input); got != tc.want {
				t.Errorf("sanitizeConfidence(%v) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewPostgresClientRequiresURL(t *testing.T) {
	if _, err := NewPostgresClient(""); err == nil {
		t.Error("expected error for empty database URL")
	}
}
