package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRespectsCustomWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Writer: &buf})
	logger.Info("custom writer")

	if buf.Len() == 0 {
		t.Fatalf("expected output in custom writer, got none")
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug", input: "debug", expected: slog.LevelDebug},
		{name: "warning", input: "warning", expected: slog.LevelWarn},
		{name: "warn", input: "warn", expected: slog.LevelWarn},
		{name: "error", input: "error", expected: slog.LevelError},
		{name: "info", input: "info", expected: slog.LevelInfo},
		{name: "empty", input: "", expected: slog.LevelInfo},
		{name: "mixed case", input: " DeBuG ", expected: slog.LevelDebug},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			leveler := parseLevel(tc.input)
			if leveler == nil {
				t.Fatalf("expected leveler, got nil")
			}
			if got := leveler.Level(); got != tc.expected {
				t.Fatalf("parseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestFormatSelection(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Format: "text"})
	logger.Info("text format")
	if strings.Contains(buf.String(), "{") {
		t.Fatalf("text format produced JSON: %s", buf.String())
	}

	buf.Reset()
	logger = New(Config{Writer: &buf})
	logger.Info("json format")
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("default format is not JSON: %v", err)
	}
}

func TestWithContextAnnotatesIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithJobID(ctx, "job-7")

	WithContext(ctx, logger).Info("annotated")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["request_id"] != "req-1" {
		t.Fatalf("request_id = %v", decoded["request_id"])
	}
	if decoded["job_id"] != "job-7" {
		t.Fatalf("job_id = %v", decoded["job_id"])
	}
}

func TestContextHelpersIgnoreBlankValues(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "  ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatal("blank request ID stored")
	}
	ctx = ContextWithJobID(context.Background(), "")
	if _, ok := JobIDFromContext(ctx); ok {
		t.Fatal("blank job ID stored")
	}
}

func TestLoggerFromContextRoundTrip(t *testing.T) {
	logger := New(Config{Writer: &bytes.Buffer{}})
	ctx := ContextWithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Fatal("logger did not round-trip through context")
	}
	if got := LoggerFromContext(context.Background()); got != nil {
		t.Fatal("empty context returned a logger")
	}
}

func TestRequestLoggerEmitsStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	handler := RequestLogger(RequestLoggerConfig{Logger: logger})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

	req := httptest.NewRequest("POST", "/v1/encoders/options", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["path"] != "/v1/encoders/options" {
		t.Fatalf("path = %v", decoded["path"])
	}
	if decoded["status"] != float64(http.StatusAccepted) {
		t.Fatalf("status = %v", decoded["status"])
	}
}
