package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/finpulse/finpulse/internal/errs"
)

// Route-class caps, per client IP.
var (
	classGeneral   = limitClass{name: "general", requests: 100, window: 15 * time.Minute}
	classIngestion = limitClass{name: "ingestion", requests: 50, window: time.Hour}
	classCSV       = limitClass{name: "csv", requests: 10, window: time.Hour}
	classAI        = limitClass{name: "ai", requests: 20, window: time.Hour}
)

// Per-user action caps, enforced through Redis so they hold across
// instances.
var userActionLimits = map[string]limitClass{
	"approve":  {name: "approve", requests: 50, window: time.Hour},
	"reject":   {name: "reject", requests: 50, window: time.Hour},
	"apply":    {name: "apply", requests: 20, window: time.Hour},
	"rollback": {name: "rollback", requests: 10, window: time.Hour},
}

type limitClass struct {
	name     string
	requests int
	window   time.Duration
}

func (c limitClass) perSecond() rate.Limit {
	return rate.Limit(float64(c.requests) / c.window.Seconds())
}

// ipLimiter keeps one token bucket per (client IP, route class).
type ipLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newIPLimiter() *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (l *ipLimiter) get(key string, class limitClass) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(class.perSecond(), class.requests)
	l.limiters[key] = lim
	return lim
}

// Allow checks the bucket for ip under the given class.
func (l *ipLimiter) Allow(ip string, class limitClass) error {
	key := class.name + "|" + ip
	if l.get(key, class).Allow() {
		return nil
	}
	return errs.RateLimit(
		fmt.Sprintf("rate limit exceeded for %s requests", class.name),
		time.Now().Add(class.window),
	)
}

// userLimiter enforces per-user action caps with Redis counters. A nil
// client disables the caps.
type userLimiter struct {
	rdb redis.Cmdable
	log zerolog.Logger
}

func newUserLimiter(rdb redis.Cmdable, log zerolog.Logger) *userLimiter {
	return &userLimiter{rdb: rdb, log: log}
}

// Allow bumps the user's counter for the action and rejects once the
// hourly cap is hit.
func (l *userLimiter) Allow(ctx context.Context, userID, action string) error {
	if l.rdb == nil {
		return nil
	}
	class, ok := userActionLimits[action]
	if !ok {
		return nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", userID, action)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		// rate limiting is advisory, a Redis outage must not block actions
		return nil
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, class.window).Err(); err != nil {
			// a counter that never expires would throttle the user forever
			l.log.Warn().Err(err).Str("key", key).Msg("failed to set rate limit ttl, dropping counter")
			l.rdb.Del(ctx, key)
			return nil
		}
	}
	if n > int64(class.requests) {
		ttl, _ := l.rdb.TTL(ctx, key).Result()
		if ttl < 0 {
			ttl = class.window
		}
		return errs.RateLimit(
			fmt.Sprintf("too many %s requests", action),
			time.Now().Add(ttl),
		)
	}
	return nil
}

// clientIP extracts the caller address, honoring the first hop of
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
