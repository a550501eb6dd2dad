package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryStoreWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("count = %d, want %d", got, want)
		}
	}

	// an expired window starts counting from one again
	store.windows["k"].resetAt = time.Now().Add(-time.Second)
	got, _ := store.Incr(ctx, "k", time.Minute)
	if got != 1 {
		t.Fatalf("count after window reset = %d, want 1", got)
	}

	// keys count independently
	got, _ = store.Incr(ctx, "other", time.Minute)
	if got != 1 {
		t.Fatalf("count for fresh key = %d, want 1", got)
	}
}

func TestMiddlewareLimits(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := New(log, NewMemoryStore(), 2, time.Minute)

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/referral/redeem", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("requests within the limit got %v", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("request beyond the limit got %d, want 429", codes[2])
	}

	// a different client is not affected
	req := httptest.NewRequest(http.MethodPost, "/v1/referral/redeem", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh client got %d, want 200", rec.Code)
	}
}
