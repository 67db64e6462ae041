package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	rl := NewLimiter(Config{Requests: 2, Window: time.Minute, CleanupInterval: time.Hour})
	defer rl.Stop()
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	tests := []struct {
		name    string
		key     string
		advance time.Duration
		want    bool
	}{
		{"first request", "1.1.1.1", 0, true},
		{"second request", "1.1.1.1", time.Second, true},
		{"over the limit", "1.1.1.1", time.Second, false},
		{"other client unaffected", "2.2.2.2", 0, true},
		{"new window", "1.1.1.1", time.Minute, true},
	}
	for _, tt := range tests {
		now = now.Add(tt.advance)
		if got := rl.Allow(tt.key); got != tt.want {
			t.Errorf("%s: Allow() = %v, want %v", tt.name, got, tt.want)
		}
	}
	if rl.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", rl.Rejected())
	}

	now = now.Add(2 * time.Minute)
	if n := rl.cleanup(); n != 2 {
		t.Errorf("cleanup() = %d, want 2", n)
	}
	if rl.ActiveClients() != 0 {
		t.Errorf("ActiveClients() = %d, want 0", rl.ActiveClients())
	}
}

func TestMiddlewareOnlyLimitsWrites(t *testing.T) {
	rl := NewLimiter(Config{Requests: 1, Window: time.Minute})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "client" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	codes := make([]int, 0, 4)
	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/transactions", nil))
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: status %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestDefaultsApplied(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()
	if rl.requests != 60 || rl.window != time.Minute {
		t.Errorf("unexpected defaults: %d per %v", rl.requests, rl.window)
	}
}
