package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"chatrelay/pkg/logger"
)

// IPRateLimiter throttles unauthenticated HTTP endpoints per client IP using
// a token bucket. Authenticated websocket traffic is throttled per user and
// per action inside the use cases instead.
type IPRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens     int
	lastSeen   time.Time // for idle eviction
	refillMark time.Time // instant the bucket was last credited
	blocked    bool
	blockUntil time.Time
}

func NewIPRateLimiter(rate int, window time.Duration) *IPRateLimiter {
	rl := &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}

	go rl.cleanup()

	return rl
}

func (rl *IPRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if allowed, resetTime := rl.allow(ip); !allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"retry_after": int(time.Until(resetTime).Seconds()),
				})
			}

			return next(c)
		}
	}
}

// allow charges one token for the request. A new visitor starts with a full
// bucket minus the request being served; refills are proportional to elapsed
// time, and refillMark only advances when whole tokens were credited so that
// sub-window gaps keep accumulating instead of truncating to zero.
func (rl *IPRateLimiter) allow(ip string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:     rl.rate - 1,
			lastSeen:   now,
			refillMark: now,
		}
		return true, time.Time{}
	}

	v.lastSeen = now

	if v.blocked {
		if now.Before(v.blockUntil) {
			return false, v.blockUntil
		}
		v.blocked = false
		v.tokens = rl.rate
		v.refillMark = now
	}

	elapsed := now.Sub(v.refillMark)
	refill := int(int64(elapsed) * int64(rl.rate) / int64(rl.window))
	if refill > 0 {
		v.tokens += refill
		if v.tokens > rl.rate {
			v.tokens = rl.rate
		}
		v.refillMark = now
	}

	if v.tokens <= 0 {
		v.blocked = true
		v.blockUntil = now.Add(rl.window)
		logger.Warn("Rate limiting activated for IP %s", ip)
		return false, v.blockUntil
	}

	v.tokens--
	return true, time.Time{}
}

func (rl *IPRateLimiter) cleanup() {
	for {
		time.Sleep(time.Hour)

		rl.mu.Lock()
		now := time.Now()
		for ip, v := range rl.visitors {
			if now.Sub(v.lastSeen) > 2*time.Hour {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}
