package api

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-key sliding window limiter. It protects the OTP and
// credential endpoints, where a fixed window would let a caller burst twice
// the limit across a window boundary.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	cleanup  time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		cleanup:  time.Now(),
	}
}

// Allow records an attempt for key and reports whether it stayed within the
// window limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	if now.Sub(rl.cleanup) > time.Minute {
		for k, times := range rl.requests {
			filtered := filterTimes(times, windowStart)
			if len(filtered) == 0 {
				delete(rl.requests, k)
			} else {
				rl.requests[k] = filtered
			}
		}
		rl.cleanup = now
	}

	times := filterTimes(rl.requests[key], windowStart)

	if len(times) >= rl.limit {
		return false
	}

	rl.requests[key] = append(times, now)
	return true
}

func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}

// RateLimitMiddleware limits by client IP as seen through the resolver, so a
// deployment behind a trusted proxy limits real clients rather than the
// proxy itself.
func RateLimitMiddleware(limiter *RateLimiter, resolver *ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(resolver.Resolve(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
