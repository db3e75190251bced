package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentApp, Output: &buf})

	logger.WithComponent(ComponentLedger).Info("Ledger loaded", FieldCount, 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentLedger {
		t.Fatalf("component = %v, want %q", entry[FieldComponent], ComponentLedger)
	}
	if entry[FieldCount] != float64(3) {
		t.Fatalf("count = %v, want 3", entry[FieldCount])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMiddlewareSetsRequestIDAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})

	var seen *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/months", nil))

	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected request ID header")
	}
	if seen == nil || seen.Component() != ComponentHTTP {
		t.Fatalf("expected HTTP logger in context, got %+v", seen)
	}
	out := buf.String()
	if !strings.Contains(out, "HTTP request completed") || !strings.Contains(out, "status_code=418") {
		t.Fatalf("unexpected access log: %q", out)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if l := FromContext(req.Context()); l == nil || l.Component() != ComponentApp {
		t.Fatalf("expected default logger, got %+v", l)
	}
}
