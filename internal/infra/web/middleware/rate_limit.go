package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/DioGolang/GoTracker/pkg/logger"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	RequestsPerSecond int           // tokens added per second
	Burst             int           // bucket size
	CleanupInterval   time.Duration // how often idle clients are dropped
	ClientTimeout     time.Duration // idle time before a client is dropped
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   RateLimiterConfig
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a cleanup loop that stops with ctx.
func NewRateLimiter(ctx context.Context, conf RateLimiterConfig) *IPRateLimiter {
	if conf.CleanupInterval <= 0 {
		conf.CleanupInterval = time.Minute
	}
	if conf.ClientTimeout <= 0 {
		conf.ClientTimeout = 3 * time.Minute
	}
	d := &IPRateLimiter{
		visitors: make(map[string]*visitor),
		config:   conf,
	}

	go d.cleanupLoop(ctx)

	return d
}

func (d *IPRateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanup(time.Now())
		}
	}
}

func (d *IPRateLimiter) cleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ip, v := range d.visitors {
		if now.Sub(v.lastSeen) > d.config.ClientTimeout {
			delete(d.visitors, ip)
		}
	}
}

func (d *IPRateLimiter) Handler(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			limiter := d.getVisitor(ip)

			if !limiter.Allow() {
				log.Warn(r.Context(), "Rate limit exceeded",
					logger.String("ip", ip),
					logger.String("path", r.URL.Path),
				)

				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests - Slow down", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (d *IPRateLimiter) getVisitor(ip string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, exists := d.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(d.config.RequestsPerSecond), d.config.Burst)
		d.visitors[ip] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}
