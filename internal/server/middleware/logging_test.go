package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureLog(t *testing.T, status int, body string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/1", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	return line
}

func TestLoggingRecordsStatusAndBytes(t *testing.T) {
	line := captureLog(t, http.StatusOK, `{"ok":true}`)

	if got, ok := line["status"].(float64); !ok || got != http.StatusOK {
		t.Errorf("status = %v, want 200", line["status"])
	}
	if got, ok := line["bytes"].(float64); !ok || got != float64(len(`{"ok":true}`)) {
		t.Errorf("bytes = %v, want %d", line["bytes"], len(`{"ok":true}`))
	}
	if line["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", line["level"])
	}
}

func TestLoggingEscalatesLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusConflict, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		line := captureLog(t, tt.status, "")
		if line["level"] != tt.level {
			t.Errorf("status %d: level = %v, want %s", tt.status, line["level"], tt.level)
		}
	}
}
