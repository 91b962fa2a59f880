// Package ratelimit implements fixed-window request counting per client
// identity.
//
// A window opens on an identity's first request and lasts Window. Up to
// Limit requests are admitted inside it; later ones are refused without
// moving the counter. The first request at or after the window's reset
// time opens a fresh window. Expired windows are evicted lazily on every
// check.
package ratelimit

import (
	"context"
	"time"
)

// Defaults for the interpret endpoint.
const (
	DefaultLimit  = 20
	DefaultWindow = 60 * time.Second
)

// Store decides whether one more request from key is admitted.
// CheckAndIncrement is atomic per key: concurrent calls for the same key
// never admit more than Limit requests per window.
type Store interface {
	CheckAndIncrement(ctx context.Context, key string) (bool, error)
}

// Clock returns the current time. Tests replace it to control windows.
type Clock func() time.Time

// Option configures a store.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
