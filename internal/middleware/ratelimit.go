package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"instalytics/internal/logger"
)

const rateLimitMessage = "Too many attempts. Please try again in a few minutes."

// RateLimiter allows each client IP a fixed number of requests per window, refilled
// continuously.
type RateLimiter struct {
	requests int
	window   time.Duration
	every    rate.Limit
	logger   logger.Logger

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time

	// Now is the clock used for token accounting.
	Now func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requests per window for each client IP.
func NewRateLimiter(requests int, window time.Duration, log logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	return &RateLimiter{
		requests: requests,
		window:   window,
		every:    rate.Every(window / time.Duration(requests)),
		logger:   log,
		clients:  make(map[string]*client),
		Now:      time.Now,
	}
}

// Middleware sets X-RateLimit-* headers and rejects over-limit requests with 429.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := l.Now()

		allowed, remaining, wait := l.take(ip, now)

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.requests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(l.resetAt(now, remaining).Unix(), 10))
		h.Set("X-RateLimit-Window", strconv.Itoa(int(l.window.Seconds())))

		if !allowed {
			retryAfter := int(math.Ceil(wait.Seconds()))
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			l.logger.Warn("Rate limit exceeded",
				logger.String("client_ip", ip),
				logger.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "Too many requests",
				"message":    rateLimitMessage,
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// take consumes one token for ip. When none is available it reports how long until one is.
func (l *RateLimiter) take(ip string, now time.Time) (bool, int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	cl, ok := l.clients[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.every, l.requests)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now

	r := cl.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int(cl.limiter.TokensAt(now)), 0
}

// resetAt is when the client's bucket is full again.
func (l *RateLimiter) resetAt(now time.Time, remaining int) time.Time {
	missing := l.requests - remaining
	return now.Add(time.Duration(missing) * (l.window / time.Duration(l.requests)))
}

// sweep drops clients idle for a full window; their bucket would be full anyway.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for ip, cl := range l.clients {
		if now.Sub(cl.lastSeen) >= l.window {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

// Clients returns how many client IPs are currently tracked.
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
