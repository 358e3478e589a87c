package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stockwatch/internal/models"
)

// DefaultInterval is how often the watchlist is refreshed while signed in
const DefaultInterval = 30 * time.Second

// Refresher is the operation driven on every tick
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SessionSource reports sign-in and sign-out
type SessionSource interface {
	Subscribe(fn func(*models.SessionUser)) func()
}

// State is the Poller's lifecycle state
type State int

const (
	// StateIdle means no timer is scheduled
	StateIdle State = iota
	// StateActive means the poll loop is running
	StateActive
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// TickerFunc starts a recurring tick and returns its channel and a stop function
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Option configures a Poller
type Option func(*Poller)

// WithInterval overrides DefaultInterval
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTicker replaces the time.Ticker based tick source
func WithTicker(fn TickerFunc) Option {
	return func(p *Poller) {
		p.newTicker = fn
	}
}

// Poller refreshes in the background on a fixed interval while active.
// Refresh failures are logged and swallowed; they never stop later ticks.
type Poller struct {
	refresher Refresher
	interval  time.Duration
	newTicker TickerFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle Poller
func New(refresher Refresher, opts ...Option) *Poller {
	p := &Poller{
		refresher: refresher,
		interval:  DefaultInterval,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start moves the Poller to Active: it refreshes immediately and then once
// per interval until Stop is called or ctx is cancelled. It returns false if
// the Poller was already active.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticks, stopTicker := p.newTicker(p.interval)

	p.cancel = cancel
	p.done = done

	go p.run(loopCtx, ticks, stopTicker, done)

	slog.Debug("poller started", "interval", p.interval)
	return true
}

// Stop moves the Poller to Idle. It returns only after the poll loop has
// exited, so no refresh starts after Stop returns. It must not be called from
// within a refresh driven by this Poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	slog.Debug("poller stopped")
}

// State reports whether the Poller is active
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return StateActive
	}
	return StateIdle
}

// Bind starts the Poller whenever the session reports a signed-in user and
// stops it on sign-out. The returned function unbinds and stops the Poller.
func (p *Poller) Bind(ctx context.Context, source SessionSource) func() {
	unsubscribe := source.Subscribe(func(user *models.SessionUser) {
		if user != nil {
			p.Start(ctx)
			return
		}
		p.Stop()
	})

	return func() {
		unsubscribe()
		p.Stop()
	}
}

func (p *Poller) run(ctx context.Context, ticks <-chan time.Time, stopTicker func(), done chan struct{}) {
	defer close(done)
	defer stopTicker()

	if ctx.Err() != nil {
		return
	}
	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			// A tick and a cancellation can be ready together; cancellation wins
			if ctx.Err() != nil {
				return
			}
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	if err := p.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("background refresh failed", "error", err)
	}
}
