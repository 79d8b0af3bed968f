// Package ratelimit throttles WebSocket senders per client IP.
//
// The authoritative state lives in one Limiter actor per IP. Sessions never
// talk to it on every frame: each holds a Gate that leases a few tokens at a
// time and remembers when the limiter will refill, so most checks are answered
// locally.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-board/internal/actor"
)

// ErrLimiterUnavailable wraps any failure to reach the per-IP limiter.
var ErrLimiterUnavailable = errors.New("ratelimit: limiter unavailable")

type Config struct {
	// Allowance is the number of frames an IP may send per Window.
	Allowance int `mapstructure:"allowance"`
	// Window is how long a depleted allowance takes to refill.
	Window time.Duration `mapstructure:"window"`
	// Lease is how many tokens a Gate takes from the limiter per round trip.
	Lease int `mapstructure:"lease"`
}

func DefaultConfig() Config {
	return Config{Allowance: 20, Window: 10 * time.Second, Lease: 4}
}

func (c Config) Validate() error {
	if c.Allowance < 1 {
		return fmt.Errorf("ratelimit: allowance must be positive, got %d", c.Allowance)
	}
	if c.Window <= 0 {
		return fmt.Errorf("ratelimit: window must be positive, got %s", c.Window)
	}
	if c.Lease < 1 {
		return fmt.Errorf("ratelimit: lease must be positive, got %d", c.Lease)
	}
	return nil
}

// Grant is the limiter's answer to one Acquire.
type Grant struct {
	// Tokens granted, between 0 and the number requested.
	Tokens int
	// RefillAt is when the allowance is next restored.
	RefillAt time.Time
}

// Limiter is the per-IP actor.
type Limiter struct {
	loop      *actor.Loop
	allowance int
	window    time.Duration
	now       func() time.Time

	// owned by loop
	remaining int
	refillAt  time.Time
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	return &Limiter{
		loop:      actor.NewLoop(64),
		allowance: cfg.Allowance,
		window:    cfg.Window,
		now:       now,
	}
}

// Acquire takes up to want tokens.
func (l *Limiter) Acquire(ctx context.Context, want int) (Grant, error) {
	var g Grant
	err := l.loop.Call(ctx, func() { g = l.acquire(want) })
	return g, err
}

func (l *Limiter) acquire(want int) Grant {
	now := l.now()
	if !now.Before(l.refillAt) {
		l.remaining = l.allowance
		l.refillAt = now.Add(l.window)
	}
	n := want
	if n > l.remaining {
		n = l.remaining
	}
	if n < 0 {
		n = 0
	}
	l.remaining -= n
	return Grant{Tokens: n, RefillAt: l.refillAt}
}

func (l *Limiter) stop() { l.loop.Stop() }

// Service addresses limiters by IP.
type Service struct {
	cfg      Config
	now      func() time.Time
	limiters *actor.Registry[string, *Limiter]
}

type Option func(*serviceOptions)

type serviceOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Service{cfg: cfg, now: o.now}
	s.limiters = actor.NewRegistry(func(ip string) (*Limiter, error) {
		return newLimiter(cfg, o.now), nil
	})
	return s, nil
}

func (s *Service) Acquire(ctx context.Context, ip string, want int) (Grant, error) {
	l, err := s.limiters.Get(ip)
	if err != nil {
		return Grant{}, err
	}
	return l.Acquire(ctx, want)
}

// CheckLimit takes a single token for ip and reports whether it was granted.
func (s *Service) CheckLimit(ctx context.Context, ip string) (bool, error) {
	g, err := s.Acquire(ctx, ip, 1)
	if err != nil {
		return false, err
	}
	return g.Tokens == 1, nil
}

// Gate returns a client-side gate for ip that leases Config.Lease tokens at a
// time.
func (s *Service) Gate(ip string, onError func(error)) *Gate {
	g := NewGate(s, ip, s.cfg.Lease, onError)
	g.now = s.now
	return g
}

func (s *Service) Close() {
	s.limiters.Shutdown(func(_ string, l *Limiter) { l.stop() })
}
