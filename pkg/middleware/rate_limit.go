package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"helpinghands/api/internal/apperr"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiterConfig struct {
	// Requests allowed per Window, all of them may arrive at once
	Requests int
	Window   time.Duration
	// Returned in the 429 body
	Message         string
	CleanupInterval time.Duration
}

// RateLimiter limits requests per client IP. Each limiter keeps its own
// visitors, so routes with different tiers don't share budgets.
type RateLimiter struct {
	cfg      RateLimiterConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Message == "" {
		cfg.Message = apperr.ErrTooManyRequests.Message
	}

	rl := &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}

	go rl.cleanupVisitors()

	return rl
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		every := rl.cfg.Window / time.Duration(rl.cfg.Requests)
		limiter := rate.NewLimiter(rate.Every(every), rl.cfg.Requests)
		rl.visitors[ip] = &visitor{limiter, rl.now()}
		return limiter
	}

	v.lastSeen = rl.now()
	return v.limiter
}

// A visitor idle for a whole window has a full bucket again and can be
// forgotten
func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if rl.now().Sub(v.lastSeen) > rl.cfg.Window {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getVisitor(c.ClientIP())

		now := rl.now()
		r := limiter.ReserveN(now, 1)
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)

			retryAfter := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			e := *apperr.ErrTooManyRequests
			e.Message = rl.cfg.Message
			e.Details = map[string]any{"retryAfter": retryAfter}

			AbortWithError(c, &e)
			return
		}

		c.Next()
	}
}

// Noop stands in for a limiter when rate limiting is disabled
func Noop() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}
