package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of admitting one request.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
	Scope             string // "minute" | "hour"
}

// RateLimitConfig holds the sliding-window ceilings and eviction policy
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int

	// eviction of idle clients, best effort
	MaxTrackedClients int
	EvictBatch        int
	IdleEviction      time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 100,
		RequestsPerHour:   1000,
		MaxTrackedClients: 10000,
		EvictBatch:        1000,
		IdleEviction:      24 * time.Hour,
	}
}

// clientWindow tracks request instants for one client identity. Each window
// has its own lock so concurrent requests only serialize per client.
type clientWindow struct {
	mu         sync.Mutex
	timestamps []time.Time // ascending, never older than 1h after prune
	lastAccess time.Time
}

// SlidingWindowLimiter admits requests against per-minute and per-hour
// ceilings counted over trailing windows ending now.
type SlidingWindowLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex // guards the client map only, never held during admit
	clients map[string]*clientWindow
}

// NewSlidingWindowLimiter creates a limiter. now may be nil for the system
// clock; tests inject their own.
func NewSlidingWindowLimiter(cfg RateLimitConfig, now func() time.Time) *SlidingWindowLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 100
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = 1000
	}
	if cfg.MaxTrackedClients <= 0 {
		cfg.MaxTrackedClients = 10000
	}
	if cfg.EvictBatch <= 0 {
		cfg.EvictBatch = 1000
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &SlidingWindowLimiter{
		cfg:     cfg,
		now:     now,
		clients: make(map[string]*clientWindow),
	}
}

// Admit records one request for the client identity, or rejects it with the
// retry-after hint. Calls for the same client serialize on the client's own
// lock; different clients proceed independently.
func (l *SlidingWindowLimiter) Admit(clientID string) Decision {
	now := l.now()

	l.mu.Lock()
	cw, ok := l.clients[clientID]
	if !ok {
		cw = &clientWindow{}
		l.clients[clientID] = cw
	}
	tracked := len(l.clients)
	l.mu.Unlock()

	d := cw.admit(now, l.cfg)

	if !d.Allowed {
		log.Printf("rate limit exceeded for %s: %s ceiling", clientID, d.Scope)
	}

	// opportunistic eviction, outside the admitting client's critical section
	if tracked > l.cfg.MaxTrackedClients {
		l.evictIdle(now)
	}
	return d
}

// Tracked returns the number of client identities currently held.
func (l *SlidingWindowLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (cw *clientWindow) admit(now time.Time, cfg RateLimitConfig) Decision {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.lastAccess = now

	// prune entries older than the one-hour window
	hourCut := now.Add(-time.Hour)
	keep := 0
	for keep < len(cw.timestamps) && cw.timestamps[keep].Before(hourCut) {
		keep++
	}
	cw.timestamps = cw.timestamps[keep:]

	minuteCut := now.Add(-time.Minute)
	inMinute := 0
	for i := len(cw.timestamps) - 1; i >= 0; i-- {
		if cw.timestamps[i].Before(minuteCut) {
			break
		}
		inMinute++
	}

	switch {
	case inMinute >= cfg.RequestsPerMinute:
		return Decision{RetryAfterSeconds: 60, Scope: "minute"}
	case len(cw.timestamps) >= cfg.RequestsPerHour:
		return Decision{RetryAfterSeconds: 3600, Scope: "hour"}
	}

	cw.timestamps = append(cw.timestamps, now)
	return Decision{Allowed: true}
}

// evictIdle removes up to EvictBatch clients idle past the eviction window.
// Best effort: map iteration order decides who goes first.
func (l *SlidingWindowLimiter) evictIdle(now time.Time) {
	cut := now.Add(-l.cfg.IdleEviction)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, cw := range l.clients {
		if removed >= l.cfg.EvictBatch {
			break
		}
		cw.mu.Lock()
		idle := cw.lastAccess.Before(cut)
		cw.mu.Unlock()
		if idle {
			delete(l.clients, key)
			removed++
		}
	}
}

// ClientID derives the client identity from the first X-Forwarded-For entry,
// falling back to the remote address.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}

// RateLimit creates middleware enforcing the limiter at the pipeline entry.
// Rejections surface as 429 with the retry-after hint.
func RateLimit(l *SlidingWindowLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limit for health check
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Admit(ClientID(r))
			if !d.Allowed {
				IncrementRateLimited()

				limit := l.cfg.RequestsPerMinute
				errMsg := "Too many requests. Rate limit exceeded."
				if d.Scope == "hour" {
					limit = l.cfg.RequestsPerHour
					errMsg = "Hourly rate limit exceeded."
				}

				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success":    false,
					"error":      errMsg,
					"retryAfter": d.RetryAfterSeconds,
					"message":    fmt.Sprintf("Maximum %d requests per %s allowed", limit, d.Scope),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
