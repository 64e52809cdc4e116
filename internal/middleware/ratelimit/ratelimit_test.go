package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(perMinute int) (*Limiter, *time.Time) {
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	now := time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWindow(t *testing.T) {
	rl, now := newTestLimiter(2)
	defer rl.Stop()

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("other clients are independent")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatalf("new window should reset the budget")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(5)
	defer rl.Stop()

	rl.Allow("a")
	*now = now.Add(11 * time.Minute)
	rl.Allow("b")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Fatalf("ActiveClients = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddlewareOnlyLimitsWrites(t *testing.T) {
	rl, _ := newTestLimiter(1)
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "client" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	codes := []int{}
	for _, method := range []string{http.MethodPost, http.MethodPost, http.MethodGet, http.MethodDelete} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		codes = append(codes, rr.Code)
	}

	want := []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
}
