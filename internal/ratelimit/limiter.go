// Package ratelimit provides Redis-backed request admission with
// fixed-window and sliding-window strategies.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one admission check. RetryAfter is only
// meaningful when the request was denied.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      int64
	RetryAfter int64
}

// Limiter decides whether a request identity may proceed. The window
// is in seconds.
type Limiter interface {
	Allow(ctx context.Context, identity string, limit, window int) (*Decision, error)
}

// NewLimiter builds the limiter for the configured strategy. Unknown
// strategies fall back to fixed windows.
func NewLimiter(client *redis.Client, redisPrefix, strategy string) Limiter {
	prefix := redisPrefix + ":ratelimit"
	if strategy == "sliding-window" {
		return &SlidingWindow{client: client, prefix: prefix}
	}
	return &FixedWindow{client: client, prefix: prefix}
}

// FixedWindow counts requests per identity in fixed time buckets.
type FixedWindow struct {
	client *redis.Client
	prefix string
}

// Allow increments the current bucket and admits the request while the
// count stays within the limit.
func (l *FixedWindow) Allow(ctx context.Context, identity string, limit, window int) (*Decision, error) {
	now := time.Now().Unix()
	bucket := now / int64(window)
	key := fmt.Sprintf("%s:fixed:%s:%d:%d", l.prefix, identity, window, bucket)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Duration(window)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return fixedDecision(incr.Val(), limit, window, bucket, now), nil
}

// fixedDecision admits a request while the bucket count stays within
// the limit. Reset is the start of the next bucket.
func fixedDecision(count int64, limit, window int, bucket, now int64) *Decision {
	reset := bucket*int64(window) + int64(window)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := &Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
	if !d.Allowed {
		d.RetryAfter = reset - now
	}
	return d
}

// SlidingWindow keeps a sorted set of request timestamps per identity
// and admits a request while the trailing window holds fewer than
// limit entries.
type SlidingWindow struct {
	client *redis.Client
	prefix string
}

// Allow prunes expired entries, records this request, and admits it
// when the pre-insert cardinality is below the limit.
func (l *SlidingWindow) Allow(ctx context.Context, identity string, limit, window int) (*Decision, error) {
	key := fmt.Sprintf("%s:sliding:%s:%d", l.prefix, identity, window)
	now := float64(time.Now().UnixNano()) / 1e9
	windowStart := now - float64(window)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatFloat(windowStart, 'f', -1, 64))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: now, Member: strconv.FormatFloat(now, 'f', -1, 64)})
	pipe.Expire(ctx, key, time.Duration(window)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	count := card.Val()

	reset := int64(now) + int64(window)
	if count >= int64(limit) {
		oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			reset = int64(oldest[0].Score + float64(window))
		}
	}

	return slidingDecision(count, limit, now, reset), nil
}

// slidingDecision admits a request while the trailing window held
// fewer than limit entries before this one was recorded.
func slidingDecision(count int64, limit int, now float64, reset int64) *Decision {
	allowed := count < int64(limit)
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	d := &Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
	if !allowed {
		d.RetryAfter = reset - int64(now)
	}
	return d
}

// Reset removes all rate limit state for one identity across both
// strategies and every window size.
func Reset(ctx context.Context, client *redis.Client, redisPrefix, identity string) error {
	pattern := fmt.Sprintf("%s:ratelimit:*:%s:*", redisPrefix, identity)

	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete rate limit key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan rate limit keys: %w", err)
	}
	return nil
}
