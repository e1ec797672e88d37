package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"resumecrew/internal/errors"

	"golang.org/x/time/rate"
)

const defaultEvictionAge = 10 * time.Minute

// LimiterManager keeps one token bucket per client key (IP or API key).
type LimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	evictAge time.Duration
	done     chan struct{}
	once     sync.Once
	logger   *errors.Logger
}

// RateLimiter is the limiter the server holds.
type RateLimiter = LimiterManager

// NewRateLimiter creates a manager allowing requestsPerMin per key with the
// given burst. Buckets unused for evictAfter are dropped; zero means ten
// minutes.
func NewRateLimiter(requestsPerMin, burstCapacity int, evictAfter time.Duration, logger *errors.Logger) *LimiterManager {
	if evictAfter <= 0 {
		evictAfter = defaultEvictionAge
	}
	if burstCapacity < 1 {
		burstCapacity = 1
	}

	m := &LimiterManager{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burstCapacity,
		evictAge: evictAfter,
		done:     make(chan struct{}),
		logger:   logger,
	}

	go m.cleanupRoutine(evictAfter)
	return m
}

// GetLimiter retrieves or creates a limiter for a given key.
func (m *LimiterManager) GetLimiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = limiter
	}
	m.lastSeen[key] = time.Now()

	return limiter
}

// Allow reports whether a request for key may proceed. It never blocks.
func (m *LimiterManager) Allow(key string) bool {
	return m.GetLimiter(key).Allow()
}

// GetStats returns current rate limiter statistics
func (m *LimiterManager) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"active_limiters": len(m.limiters),
		"rate_per_second": float64(m.rate),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
	}
}

func (m *LimiterManager) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(m.evictAge)
		case <-m.done:
			return
		}
	}
}

// cleanup removes limiters that haven't been used for evictionAge
func (m *LimiterManager) cleanup(evictionAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, lastSeen := range m.lastSeen {
		if now.Sub(lastSeen) > evictionAge {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}

	if m.logger != nil {
		m.logger.Debug("Rate limiter cleanup completed",
			"remaining_limiters", len(m.limiters))
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *LimiterManager) Close() {
	m.once.Do(func() { close(m.done) })
}

// rateLimitMiddleware rejects requests over the per-key budget with 429.
func (s *Server) rateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if s.RateLimit == nil || !s.RateLimit.Enabled || s.RateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rateLimitKey := getRateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
			if rateLimitKey == "" {
				next(w, r)
				return
			}

			if !s.RateLimiter.Allow(rateLimitKey) {
				by, _, _ := strings.Cut(rateLimitKey, ":")
				s.Observability.GetMetrics().RecordRateLimitHit(r.Context(), by)
				s.Logger.Info("Rate limit exceeded",
					"key_type", by,
					"endpoint", r.URL.Path,
					"client_ip", getClientIP(r))
				w.Header().Set("Retry-After", "60")
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", errors.ErrCodeRateLimited, http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// getRateLimitKey prefers the API key when byAPIKey is set and falls back to
// the client IP.
func getRateLimitKey(r *http.Request, byAPIKey, byIP bool) string {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey
		}
	}

	if byIP {
		return "ip:" + getClientIP(r)
	}

	return ""
}

// requestAPIKey reads X-API-Key, then an Authorization bearer token.
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the first valid IP from a comma-separated list
func parseFirstIP(ips string) string {
	for ip := range strings.SplitSeq(ips, ",") {
		ip = strings.TrimSpace(ip)
		if parsed := net.ParseIP(ip); parsed != nil {
			return ip
		}
	}
	return ""
}
