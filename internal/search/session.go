package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/models"
)

// DefaultDebounce is the quiet period after the last keystroke before a
// query is submitted
const DefaultDebounce = 300 * time.Millisecond

// FailureMessage replaces the result list when a search fails
const FailureMessage = "Failed to search stocks. Please try again."

// Searcher runs an instrument search against the backend
type Searcher interface {
	SearchInstruments(ctx context.Context, query string) ([]models.SearchResult, error)
}

// Status is the state of a search session
type Status int

const (
	// StatusIdle means there is no query to search for
	StatusIdle Status = iota
	// StatusSearching means a request for the current query is in flight
	StatusSearching
	// StatusReady means Results hold the response for the current query
	StatusReady
	// StatusFailed means the last search failed and Error holds the message
	StatusFailed
)

// String implements fmt.Stringer
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSearching:
		return "searching"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a copy of a session's observable state
type State struct {
	Query   string
	Results []models.SearchResult
	Status  Status
	Error   string
}

// Option configures a Session
type Option func(*Session)

// WithDebounce overrides DefaultDebounce
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Session turns keystrokes into debounced searches for one add-instrument
// dialog. Only the query current when the quiet period ends is submitted,
// and a response is applied only if no newer query was submitted since.
type Session struct {
	searcher Searcher
	debounce time.Duration

	mu    sync.Mutex
	ctx   context.Context
	stop  context.CancelFunc
	state State
	timer *time.Timer
	// input counts keystrokes; a timer fires only for the latest one
	input uint64
	// submitted counts searches sent; only the latest may apply its result
	submitted   uint64
	subscribers map[int]func(State)
	nextSubID   int
}

// NewSession creates an idle session
func NewSession(searcher Searcher, opts ...Option) *Session {
	ctx, stop := context.WithCancel(context.Background())
	s := &Session{
		searcher:    searcher,
		debounce:    DefaultDebounce,
		ctx:         ctx,
		stop:        stop,
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input records the latest query text and restarts the quiet-period timer.
// A blank query clears the session to Idle without contacting the backend.
// Input after Close is ignored.
func (s *Session) Input(query string) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.input++
	s.state.Query = query
	s.stopTimerLocked()

	if strings.TrimSpace(query) == "" {
		s.submitted++
		s.state.Results = nil
		s.state.Status = StatusIdle
		s.state.Error = ""
		s.mu.Unlock()
		s.notify()
		return
	}

	seq := s.input
	s.timer = time.AfterFunc(s.debounce, func() {
		s.submit(seq)
	})
	s.mu.Unlock()
	s.notify()
}

// Flush submits the current query now instead of waiting for the timer
func (s *Session) Flush() {
	s.mu.Lock()
	if s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	// a timer that already fired but has not taken the lock yet must lose
	s.input++
	seq := s.input
	s.mu.Unlock()

	s.submit(seq)
}

func (s *Session) submit(seq uint64) {
	s.mu.Lock()
	if seq != s.input || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.submitted++
	id := s.submitted
	query := s.state.Query
	ctx := s.ctx
	s.state.Status = StatusSearching
	s.state.Error = ""
	s.mu.Unlock()
	s.notify()

	results, err := s.searcher.SearchInstruments(ctx, strings.TrimSpace(query))

	s.mu.Lock()
	if id != s.submitted {
		s.mu.Unlock()
		slog.Debug("discarding stale search response", "query", query)
		return
	}
	if err != nil {
		slog.Debug("search failed", "query", query, "error", err)
		s.state.Results = nil
		s.state.Status = StatusFailed
		s.state.Error = FailureMessage
	} else {
		s.state.Results = append([]models.SearchResult(nil), results...)
		s.state.Status = StatusReady
	}
	s.mu.Unlock()
	s.notify()
}

// Reset clears the session back to Idle, as when the dialog is reopened.
// Pending timers are cancelled and in-flight responses will be ignored.
func (s *Session) Reset() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.input++
	s.submitted++
	s.state = State{Status: StatusIdle}
	s.mu.Unlock()
	s.notify()
}

// Close resets the session and cancels any in-flight request. The session
// ignores input afterwards.
func (s *Session) Close() {
	s.Reset()
	s.stop()
}

// State returns a copy of the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Subscribe registers fn to receive the state after every change.
// The returned function unsubscribes.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) copyLocked() State {
	st := s.state
	st.Results = append([]models.SearchResult(nil), s.state.Results...)
	return st
}

func (s *Session) notify() {
	s.mu.Lock()
	if len(s.subscribers) == 0 {
		s.mu.Unlock()
		return
	}
	st := s.copyLocked()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}
