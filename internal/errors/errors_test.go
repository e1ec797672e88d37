package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing input", NewMissingInputError([]string{"job_url"}), http.StatusBadRequest},
		{"malformed document", NewMalformedDocumentError("bad docx", nil), http.StatusUnprocessableEntity},
		{"network failure", NewNetworkFailure("fetch failed", nil), http.StatusBadGateway},
		{"orchestrator failure", NewOrchestratorFailure("crew failed", nil), http.StatusBadGateway},
		{"io failure", NewIOFailure("disk full", nil), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", NewNetworkFailure("x", nil)), http.StatusBadGateway},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"other validation", NewValidationError("SOMETHING", "x", nil), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	inner := NewIOFailure("write failed", nil)
	outer := NewOrchestratorFailure("crew failed", inner)

	if !HasCode(outer, ErrCodeOrchestratorFailure) {
		t.Error("expected outer code to match")
	}
	if !HasCode(outer, ErrCodeIOFailure) {
		t.Error("expected cause code to match")
	}
	if HasCode(outer, ErrCodeMissingInput) {
		t.Error("unexpected match for MISSING_INPUT")
	}
	if HasCode(nil, ErrCodeIOFailure) {
		t.Error("nil error must not match")
	}
}

func TestMissingInputMessage(t *testing.T) {
	err := NewMissingInputError([]string{"resume"})
	if err.Message != MissingInputMessage {
		t.Errorf("Message = %q", err.Message)
	}
	if got := err.Context["missing_fields"]; fmt.Sprint(got) != "[resume]" {
		t.Errorf("missing_fields = %v", got)
	}
}

func TestLogErrorIncludesAppErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, slog.LevelDebug)

	logger.LogError(NewIOFailure("disk full", fmt.Errorf("ENOSPC")).WithContext("path", "/tmp/x"), "request failed")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	for key, want := range map[string]string{
		"msg":        "request failed",
		"error_type": "io",
		"error_code": ErrCodeIOFailure,
		"cause":      "ENOSPC",
		"path":       "/tmp/x",
	} {
		if record[key] != want {
			t.Errorf("%s = %v, want %q", key, record[key], want)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("warn"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
