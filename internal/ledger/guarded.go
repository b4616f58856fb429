package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker open", ErrUnavailable)

type GuardConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half_open"
)

// Guarded wraps a ledger with a per-call timeout and a circuit breaker so an
// unreachable ledger fails fast instead of stalling every request.
type Guarded struct {
	inner Ledger
	cfg   GuardConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               string
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewGuarded(inner Ledger, cfg GuardConfig) *Guarded {
	//defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Guarded{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (g *Guarded) Append(ctx context.Context, key, value []byte) (Entry, error) {
	var out Entry

	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Append(ctx, key, value)
		return err
	})

	return out, err
}

func (g *Guarded) History(ctx context.Context, key []byte, offset, limit int, ascending bool) ([]Entry, error) {
	var out []Entry

	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.History(ctx, key, offset, limit, ascending)
		return err
	})

	return out, err
}

// Ping bypasses the breaker so readiness reflects the real connection.
func (g *Guarded) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	return g.inner.Ping(ctx)
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}

func (g *Guarded) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

func (g *Guarded) call(ctx context.Context, fn func(ctx context.Context) error) error {
	// a caller that already left says nothing about the ledger
	if err := ctx.Err(); err != nil {
		return err
	}

	// fail-fast gate
	if !g.allowRequest() {
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)

	if ctx.Err() != nil {
		// caller cancelled mid-call: free the trial slot, leave the counters
		g.releaseTrial()
		if err == nil {
			return nil
		}
		return ctx.Err()
	}

	g.afterRequest(err)

	if err != nil && !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrChainBroken) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}

func (g *Guarded) allowRequest() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case stateClosed:
		return true
	case stateOpen:
		// cooldown has passed? move to half open
		if g.now().Sub(g.openedAt) >= g.cfg.Cooldown {
			g.state = stateHalfOpen
			g.halfOpenInFlight = 1
			return true
		}
		return false
	case stateHalfOpen:
		if g.halfOpenInFlight >= g.cfg.HalfOpenMaxCalls {
			return false
		}
		g.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (g *Guarded) releaseTrial() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == stateHalfOpen && g.halfOpenInFlight > 0 {
		g.halfOpenInFlight--
	}
}

func (g *Guarded) afterRequest(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// half-open call just finished
	if g.state == stateHalfOpen && g.halfOpenInFlight > 0 {
		g.halfOpenInFlight--
	}

	if err == nil {
		g.consecutiveFailures = 0
		g.state = stateClosed
		return
	}

	g.consecutiveFailures++

	// if half-open failed, reopen immediately
	if g.state == stateHalfOpen {
		g.state = stateOpen
		g.openedAt = g.now()
		return
	}

	if g.consecutiveFailures >= g.cfg.FailureThreshold {
		g.state = stateOpen
		g.openedAt = g.now()
	}
}
