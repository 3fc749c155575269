package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPHeaderPrecedence(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "/api/rooms", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.1.1")
	req.Header.Set("X-Real-IP", "10.0.0.2")
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := ClientIP(req); got != "10.0.0.2" {
		t.Fatalf("expected real ip, got %q", got)
	}

	req.Header.Del("X-Real-IP")
	if got := ClientIP(req); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestLocalBucketAllowsBurstThenDenies(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Allow(ctx, "10.0.0.1") {
			t.Fatalf("request %d inside the burst denied", i+1)
		}
	}
	if rl.Allow(ctx, "10.0.0.1") {
		t.Fatal("request beyond the burst allowed")
	}
}

func TestLocalBucketsAreIndependentPerKey(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rl.Allow(ctx, "10.0.0.1")
	}
	if !rl.Allow(ctx, "10.0.0.2") {
		t.Fatal("a different client was throttled by another's bucket")
	}
}

func TestLocalBucketMapIsBounded(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < maxLocalBuckets+100; i++ {
		rl.Allow(ctx, fmt.Sprintf("10.%d.%d.%d", i/65536, (i/256)%256, i%256))
	}

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n > maxLocalBuckets {
		t.Fatalf("bucket map exceeded the cap: %d", n)
	}
}

func TestMiddlewareRejectsWithTooManyRequests(t *testing.T) {
	rl := NewRateLimiter(nil)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", nil)
		req.Header.Set("X-Real-IP", "10.0.0.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", last)
	}
}
