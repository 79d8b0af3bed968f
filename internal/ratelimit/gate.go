package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Acquirer is the round trip a Gate makes to the authoritative limiter.
type Acquirer interface {
	Acquire(ctx context.Context, ip string, want int) (Grant, error)
}

// Gate is the session-side cache in front of a Limiter. It is not safe for
// concurrent use; a Gate belongs to exactly one session and is only touched by
// the coordinator that owns that session.
type Gate struct {
	src     Acquirer
	ip      string
	lease   int
	onError func(error)
	now     func() time.Time

	tokens   int
	expires  time.Time
	deniedTo time.Time
}

// NewGate builds a gate for ip. onError is called when the limiter cannot be
// reached; the check that triggered it is denied.
func NewGate(src Acquirer, ip string, lease int, onError func(error)) *Gate {
	if lease < 1 {
		lease = 1
	}
	return &Gate{src: src, ip: ip, lease: lease, onError: onError, now: time.Now}
}

// Allow consumes one token, resynchronising with the limiter only when the
// leased tokens are spent or have outlived the window they were granted in.
func (g *Gate) Allow(ctx context.Context) bool {
	now := g.now()
	if g.tokens > 0 && now.Before(g.expires) {
		g.tokens--
		return true
	}
	g.tokens = 0
	if now.Before(g.deniedTo) {
		return false
	}

	grant, err := g.src.Acquire(ctx, g.ip, g.lease)
	if err != nil {
		if g.onError != nil {
			g.onError(fmt.Errorf("%w: %v", ErrLimiterUnavailable, err))
		}
		return false
	}
	if grant.Tokens == 0 {
		g.deniedTo = grant.RefillAt
		return false
	}
	g.tokens = grant.Tokens - 1
	g.expires = grant.RefillAt
	return true
}
