// Package ratelimit implements sliding-window limits keyed by an arbitrary
// string (user id, ip). Backend failures never block the caller.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/nikhil/doussel/internal/logger"
)

// Window allows at most Limit events per Period.
type Window struct {
	Limit  int
	Period time.Duration
}

// Result describes the outcome of Allow.
type Result struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after"`
	// Window is the window that rejected the event, zero when allowed.
	Window Window `json:"-"`
}

// Limiter records an event under key when every window still has room.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time, windows ...Window) Result
}

func longest(windows []Window) time.Duration {
	var max time.Duration
	for _, w := range windows {
		if w.Period > max {
			max = w.Period
		}
	}
	return max
}

// RedisLimiter keeps one sorted set per key, scored by event time.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	Log    *logger.Logger
}

func NewRedisLimiter(client *redis.Client, prefix string, log *logger.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, Log: log}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time, windows ...Window) Result {
	if len(windows) == 0 {
		return Result{Allowed: true}
	}
	zkey := l.prefix + key
	nowScore := now.UnixMilli()
	oldest := nowScore - longest(windows).Milliseconds()

	if err := l.client.ZRemRangeByScore(ctx, zkey, "-inf", "("+strconv.FormatInt(oldest, 10)).Err(); err != nil {
		l.Log.Warn("Rate limit backend unavailable, allowing", "key", key, "error", err)
		return Result{Allowed: true}
	}

	for _, w := range windows {
		min := strconv.FormatInt(nowScore-w.Period.Milliseconds(), 10)
		count, err := l.client.ZCount(ctx, zkey, min, "+inf").Result()
		if err != nil {
			l.Log.Warn("Rate limit backend unavailable, allowing", "key", key, "error", err)
			return Result{Allowed: true}
		}
		if int(count) >= w.Limit {
			res := Result{Allowed: false, Window: w, RetryAfter: w.Period}
			first, err := l.client.ZRangeByScoreWithScores(ctx, zkey, &redis.ZRangeBy{
				Min: min, Max: "+inf", Offset: 0, Count: 1,
			}).Result()
			if err == nil && len(first) == 1 {
				res.RetryAfter = time.Duration(int64(first[0].Score)+w.Period.Milliseconds()-nowScore) * time.Millisecond
			}
			return res
		}
	}

	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, zkey, &redis.Z{Score: float64(nowScore), Member: uuid.NewString()})
	pipe.Expire(ctx, zkey, longest(windows))
	if _, err := pipe.Exec(ctx); err != nil {
		l.Log.Warn("Failed to record rate limit event", "key", key, "error", err)
	}
	return Result{Allowed: true}
}

// MemoryLimiter is the in-process fallback used when Redis is not configured.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{events: make(map[string][]time.Time)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time, windows ...Window) Result {
	if len(windows) == 0 {
		return Result{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-longest(windows))
	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })

	for _, w := range windows {
		from := now.Add(-w.Period)
		var first time.Time
		count := 0
		for _, t := range kept {
			if !t.Before(from) {
				if count == 0 {
					first = t
				}
				count++
			}
		}
		if count >= w.Limit {
			l.events[key] = kept
			return Result{Allowed: false, Window: w, RetryAfter: first.Add(w.Period).Sub(now)}
		}
	}

	l.events[key] = append(kept, now)
	return Result{Allowed: true}
}

// Key joins parts into a limiter key.
func Key(scope string, id string) string {
	return fmt.Sprintf("%s:%s", scope, id)
}
