package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a token bucket keyed by client IP. With a Redis
// client the buckets are shared; without one it falls back to per-process
// in-memory buckets. Redis errors fail open so a cache outage never blocks
// room creation.
type RateLimiter struct {
	redisClient *redis.Client

	capacity int64   // Maximum number of tokens a bucket can hold
	rate     float64 // Tokens added per second

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// maxLocalBuckets caps the fallback map; spoofed forwarding headers must
// not grow it without bound.
const maxLocalBuckets = 10000

// localBucketTTL is how long an untouched bucket survives a prune. Any
// bucket idle that long has refilled completely, so dropping it is lossless.
const localBucketTTL = 10 * time.Minute

// NewRateLimiter creates a limiter allowing short bursts of 5 with a steady
// rate of 2 requests per second. redisClient may be nil.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		capacity:    5,
		rate:        2.0,
		buckets:     make(map[string]*bucket),
	}
}

// Middleware applies rate limiting to HTTP requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !rl.Allow(req.Context(), ClientIP(req)) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// ClientIP picks the request's client address: first X-Forwarded-For hop,
// then X-Real-IP, then "unknown".
func ClientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := req.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return "unknown"
}

// Allow checks whether a request from key may proceed.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.redisClient == nil {
		return rl.allowLocal(key)
	}
	return rl.allowRedis(ctx, key)
}

func (rl *RateLimiter) allowLocal(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= maxLocalBuckets {
			rl.pruneLocked(now)
		}
		b = &bucket{tokens: float64(rl.capacity), lastRefill: now}
		rl.buckets[key] = b
	}

	b.tokens = math.Min(float64(rl.capacity), b.tokens+now.Sub(b.lastRefill).Seconds()*rl.rate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// pruneLocked drops idle buckets. If every bucket is fresh the map is reset
// outright; losing counters beats unbounded growth from spoofed addresses.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastRefill) > localBucketTTL {
			delete(rl.buckets, key)
		}
	}
	if len(rl.buckets) >= maxLocalBuckets {
		rl.buckets = make(map[string]*bucket)
	}
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("rate_limit:%s", key)

	val, err := rl.redisClient.HMGet(ctx, redisKey, "tokens", "last_refill").Result()
	if err != nil {
		// Fail open so a Redis outage never blocks requests.
		return true
	}

	currentTokens := float64(rl.capacity)
	lastRefillTime := time.Now()

	if val[0] != nil && val[1] != nil {
		if t, err := strconv.ParseFloat(val[0].(string), 64); err == nil {
			currentTokens = t
		}
		if t, err := time.Parse(time.RFC3339Nano, val[1].(string)); err == nil {
			lastRefillTime = t
		}
	}

	now := time.Now()
	currentTokens = math.Min(float64(rl.capacity), currentTokens+now.Sub(lastRefillTime).Seconds()*rl.rate)

	if currentTokens < 1 {
		return false
	}
	currentTokens--

	_, err = rl.redisClient.HMSet(ctx, redisKey,
		"tokens", currentTokens,
		"last_refill", now.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return true
	}
	rl.redisClient.Expire(ctx, redisKey, time.Minute)
	return true
}
