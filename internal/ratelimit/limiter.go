// Package ratelimit counts requests per key in fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Defaults applied when a limit is configured with zero values.
const (
	DefaultWindow = 10 * time.Second
	DefaultMax    = 5
)

// ErrUnavailable wraps backend failures; callers decide whether to fail open.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limit is the request budget of one key per window.
type Limit struct {
	Window time.Duration
	Max    int
}

func (l Limit) normalized() Limit {
	if l.Window <= 0 {
		l.Window = DefaultWindow
	}
	if l.Max <= 0 {
		l.Max = DefaultMax
	}
	return l
}

// Limiter records a hit for key and reports whether it is still within budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
