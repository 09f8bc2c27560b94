package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultCleanupInterval = time.Hour

// ExpiredTokenSweeper deletes refresh tokens past their expiry
type ExpiredTokenSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenJanitor removes expired refresh tokens. Lookups already ignore them,
// so a skipped or failed sweep only costs storage.
//
// lastRun holds the unix nano time of the last claimed sweep. It starts at
// zero so the first request after boot triggers one. The compare-and-swap in
// MaybeRun makes the winning request the only writer for that interval.
type TokenJanitor struct {
	tokens   ExpiredTokenSweeper
	interval time.Duration
	lastRun  atomic.Int64
	running  atomic.Bool
	now      func() time.Time
}

func NewTokenJanitor(tokens ExpiredTokenSweeper, interval time.Duration) *TokenJanitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	return &TokenJanitor{tokens: tokens, interval: interval, now: time.Now}
}

// Run sweeps once and returns how many tokens were deleted
func (j *TokenJanitor) Run(ctx context.Context) (int64, error) {
	if !j.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer j.running.Store(false)

	n, err := j.tokens.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens, %w", err)
	}

	if n > 0 {
		sweptTokensTotal.Add(float64(n))
		zap.L().Debug("Cleaned up expired refresh tokens", zap.Int64("deleted", n))
	}

	return n, nil
}

// MaybeRun starts a background sweep when the last one is older than the
// interval. It reports whether this call started one.
func (j *TokenJanitor) MaybeRun() bool {
	now := j.now().UnixNano()
	last := j.lastRun.Load()

	if now-last < int64(j.interval) {
		return false
	}

	if !j.lastRun.CompareAndSwap(last, now) {
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := j.Run(ctx); err != nil {
			zap.L().Error("Opportunistic token cleanup failed", zap.Error(err))
		}
	}()

	return true
}

// Schedule registers a sweep on a cron spec such as "@every 6h" or
// "0 3 * * *". The caller owns the returned scheduler and must Stop it.
func (j *TokenJanitor) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if _, err := j.Run(ctx); err != nil {
			zap.L().Error("Scheduled token cleanup failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q, %w", spec, err)
	}

	c.Start()
	zap.L().Debug("Token cleanup attached", zap.String("schedule", spec))

	return c, nil
}
