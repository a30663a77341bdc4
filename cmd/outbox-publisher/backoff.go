package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff = 10 * time.Second
	jitter     = 250 * time.Millisecond
)

// backoff doubles the pause after each failed batch up to maxBackoff.
type backoff struct {
	base    time.Duration
	current time.Duration
}

func newBackoff(base time.Duration) *backoff {
	return &backoff{base: base, current: base}
}

func (b *backoff) fail() time.Duration {
	b.current = min(b.current*2, maxBackoff)
	return withJitter(b.current)
}

func (b *backoff) idle() time.Duration {
	return withJitter(b.base)
}

func (b *backoff) reset() {
	b.current = b.base
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
