package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentLedger, Format: "json", Output: &buf})

	ctx := WithAccount(WithRequestID(context.Background(), "req-1"), "acct-a")
	logger.InfoContext(ctx, "Transaction created", FieldVoucherID, "EXP20250315-0001")
	logger.InfoContext(ctx, "Explicit account wins", FieldAccountID, "acct-b")
	logger.Info("No context")

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	first := lines[0]
	if first[FieldRequestID] != "req-1" || first[FieldAccountID] != "acct-a" || first[FieldComponent] != ComponentLedger {
		t.Errorf("unexpected first record: %v", first)
	}
	if lines[1][FieldAccountID] != "acct-b" {
		t.Errorf("explicit account_id should not be overridden: %v", lines[1])
	}
	if _, ok := lines[2][FieldRequestID]; ok {
		t.Errorf("record without context should carry no request id: %v", lines[2])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Fatalf("unexpected lines: %v", lines)
	}
	if lines[0][FieldComponent] != ComponentApp {
		t.Errorf("default component missing: %v", lines[0])
	}
}

func TestWithComponent(t *testing.T) {
	logger := New(Config{Output: &bytes.Buffer{}}).WithComponent(ComponentMirror)
	if logger.Component() != ComponentMirror {
		t.Errorf("Component() = %q, want %q", logger.Component(), ComponentMirror)
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithAccount("acct-a").
		WithTransaction("txn-1", "").
		WithError(nil).
		WithError(errors.New("boom"))

	if _, ok := fields[FieldVoucherID]; ok {
		t.Error("empty voucher should not be recorded")
	}
	if fields[FieldError] != "boom" {
		t.Errorf("error field = %v", fields[FieldError])
	}

	slice := fields.ToSlice()
	want := []any{FieldAccountID, "acct-a", FieldError, "boom", FieldTransactionID, "txn-1"}
	if len(slice) != len(want) {
		t.Fatalf("ToSlice() = %v, want %v", slice, want)
	}
	for i := range want {
		if slice[i] != want[i] {
			t.Errorf("ToSlice()[%d] = %v, want %v", i, slice[i], want[i])
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	logger := New(Config{Component: ComponentHTTP, Output: &bytes.Buffer{}})
	var got *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != logger {
		t.Fatal("expected the middleware logger in the request context")
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must fall back to a default logger")
	}
}
