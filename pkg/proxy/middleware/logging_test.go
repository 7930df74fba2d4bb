package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetStartTime(r.Context()).IsZero() {
			t.Error("start time missing from context")
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}), RequestIDMiddleware, LoggingMiddleware(logger))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/claude/v1/messages", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["level"] != "ERROR" || line["status"] != float64(502) || line["bytes"] != float64(13) {
		t.Errorf("log line = %v", line)
	}
	if line["request_id"] == "" {
		t.Error("request_id not logged")
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	var f http.Flusher = rw
	f.Flush()

	if !rec.Flushed {
		t.Error("Flush() not forwarded")
	}
	if rw.statusCode != http.StatusOK || !rw.written {
		t.Errorf("Flush() before write should commit 200, got %d", rw.statusCode)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap() did not return the underlying writer")
	}
}
