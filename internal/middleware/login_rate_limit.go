package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/dreluxe/portal/internal/infra"
)

const (
	defaultPerMinute = 10
	limiterIdleTTL   = 10 * time.Minute
)

// LoginRateLimit throttles credential endpoints per identifier, falling back
// to the client IP. Redis counts requests when available; otherwise an
// in-process token bucket per key is used. Cache errors fail open.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = defaultPerMinute
	}
	local := newLocalLimiter(maxPerMin)
	return func(c *fiber.Ctx) error {
		key := throttleKey(c)
		if cache == nil {
			if !local.allow(key) {
				return tooManyRequests()
			}
			return c.Next()
		}

		redisKey := infra.Key("rl", "login", key)
		cnt, err := cache.Incr(c.UserContext(), redisKey).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), redisKey, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return tooManyRequests()
		}
		return c.Next()
	}
}

func tooManyRequests() error {
	return NewAPIError(fiber.StatusTooManyRequests, "too many attempts, try again later").WithSeconds(60)
}

func throttleKey(c *fiber.Ctx) string {
	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
	}
	_ = c.BodyParser(&req)
	key := strings.ToLower(strings.TrimSpace(req.Identifier))
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if key == "" {
		key = c.IP()
	}
	return key
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newLocalLimiter(perMinute int) *localLimiter {
	return &localLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:     perMinute,
		lastSweep: time.Now(),
	}
}

func (l *localLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
