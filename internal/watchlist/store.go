package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"stockwatch/internal/models"
)

// API is the subset of the backend client the Store needs
type API interface {
	FetchWatchlist(ctx context.Context) ([]models.WatchlistEntry, error)
	AddWatchlistEntry(ctx context.Context, symbol, companyName string) (*models.WatchlistEntry, error)
	RemoveWatchlistEntry(ctx context.Context, symbol string) error
}

// Snapshot is an immutable copy of the Store's state
type Snapshot struct {
	Entries         []models.WatchlistEntry
	Pending         map[string]models.Operation
	Refreshing      bool
	LastRefreshedAt time.Time
	// Seq increases with every state change. Subscribers running on
	// different goroutines can use it to drop a snapshot older than one
	// they already rendered.
	Seq uint64
}

// Store is the client-side mirror of the server watchlist.
//
// The server is the source of truth: Refresh replaces the local sequence
// wholesale, while Add and Remove change it only after the server confirmed
// the mutation. At most one mutation per symbol is in flight at a time.
type Store struct {
	api   API
	now   func() time.Time
	group singleflight.Group

	mu              sync.Mutex
	entries         []models.WatchlistEntry
	pending         map[string]models.Operation
	refreshing      bool
	lastRefreshedAt time.Time
	// version counts applied changes to entries; a refresh issued at an older
	// version is stale when it returns
	version     uint64
	seq         uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for LastRefreshedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty Store backed by api
func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:         api,
		now:         time.Now,
		pending:     make(map[string]models.Operation),
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the watchlist from the server and replaces the local
// sequence with the response. On failure the previous snapshot stays in place
// and the error is returned. Calls made while a refresh is in flight share its
// outcome instead of issuing another request.
//
// The shared request is not cancelled by any one caller: a caller whose ctx
// ends stops waiting and gets ctx's error, while the others still receive the
// outcome.
func (s *Store) Refresh(ctx context.Context) error {
	ch := s.group.DoChan("refresh", func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("joined in-flight watchlist refresh")
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("refresh watchlist: %w", ctx.Err())
	}
}

func (s *Store) refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshing = true
	issuedAt := s.version
	s.seq++
	s.mu.Unlock()
	s.notify()

	entries, err := s.api.FetchWatchlist(ctx)

	s.mu.Lock()
	s.refreshing = false
	s.seq++
	switch {
	case err != nil:
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("refresh watchlist: %w", err)
	case s.version != issuedAt:
		current := s.version
		s.mu.Unlock()
		s.notify()
		slog.Debug("discarding stale watchlist refresh",
			"issued_version", issuedAt,
			"current_version", current)
		return nil
	}

	s.entries = dedupe(entries)
	s.lastRefreshedAt = s.now()
	s.version++
	s.mu.Unlock()
	s.notify()

	return nil
}

// Add asks the server to track symbol and appends the confirmed entry.
// A concurrent mutation for the same symbol fails with *InvalidStateError
// before any request is made. A *remote.DuplicateEntryError leaves the local
// snapshot unchanged; callers should Refresh to reconcile.
func (s *Store) Add(ctx context.Context, symbol, companyName string) (*models.WatchlistEntry, error) {
	symbol = models.NormalizeSymbol(symbol)
	if err := s.begin(symbol, models.OperationAdding); err != nil {
		return nil, err
	}

	entry, err := s.api.AddWatchlistEntry(ctx, symbol, companyName)
	if err == nil && entry == nil {
		err = errors.New("server returned no entry")
	}

	s.mu.Lock()
	delete(s.pending, symbol)
	s.seq++
	if err == nil {
		added := *entry
		added.Symbol = models.NormalizeSymbol(added.Symbol)
		if added.Symbol == "" {
			added.Symbol = symbol
		}
		if s.indexOf(added.Symbol) < 0 {
			s.entries = append(s.entries, added)
			s.version++
		}
		entry = &added
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		return nil, fmt.Errorf("add %s to watchlist: %w", symbol, err)
	}
	return entry, nil
}

// Remove asks the server to stop tracking symbol and drops it locally once
// confirmed. On failure the entry stays visible so the user can retry.
func (s *Store) Remove(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if err := s.begin(symbol, models.OperationRemoving); err != nil {
		return err
	}

	err := s.api.RemoveWatchlistEntry(ctx, symbol)

	s.mu.Lock()
	delete(s.pending, symbol)
	s.seq++
	if err == nil {
		if i := s.indexOf(symbol); i >= 0 {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			s.version++
		}
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		return fmt.Errorf("remove %s from watchlist: %w", symbol, err)
	}
	return nil
}

// begin claims the pending marker for symbol
func (s *Store) begin(symbol string, op models.Operation) error {
	if symbol == "" {
		return &InvalidStateError{Reason: "symbol is required"}
	}

	s.mu.Lock()
	if current, ok := s.pending[symbol]; ok {
		s.mu.Unlock()
		return &InvalidStateError{Symbol: symbol, Pending: current}
	}
	s.pending[symbol] = op
	s.seq++
	s.mu.Unlock()

	s.notify()
	return nil
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Entries returns a copy of the current entries in order
func (s *Store) Entries() []models.WatchlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WatchlistEntry(nil), s.entries...)
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Contains reports whether symbol is in the local snapshot
func (s *Store) Contains(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(models.NormalizeSymbol(symbol)) >= 0
}

// Pending returns the in-flight operation for symbol, if any
func (s *Store) Pending(symbol string) (models.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.pending[models.NormalizeSymbol(symbol)]
	return op, ok
}

// Refreshing reports whether a refresh is in flight
func (s *Store) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// LastRefreshedAt returns when a refresh was last applied; zero if never
func (s *Store) LastRefreshedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefreshedAt
}

// Subscribe registers fn to receive a Snapshot after every state change.
// fn runs on the goroutine that made the change, outside the Store's lock.
// The returned function unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
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

func (s *Store) notify() {
	s.mu.Lock()
	if len(s.subscribers) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	pending := make(map[string]models.Operation, len(s.pending))
	for k, v := range s.pending {
		pending[k] = v
	}
	return Snapshot{
		Entries:         append([]models.WatchlistEntry(nil), s.entries...),
		Pending:         pending,
		Refreshing:      s.refreshing,
		LastRefreshedAt: s.lastRefreshedAt,
		Seq:             s.seq,
	}
}

func (s *Store) indexOf(symbol string) int {
	for i, e := range s.entries {
		if e.Symbol == symbol {
			return i
		}
	}
	return -1
}

// dedupe enforces one entry per symbol. When the server repeats a symbol the
// later entry wins and takes the position of the first occurrence.
func dedupe(entries []models.WatchlistEntry) []models.WatchlistEntry {
	out := make([]models.WatchlistEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		e.Symbol = models.NormalizeSymbol(e.Symbol)
		if i, ok := index[e.Symbol]; ok {
			out[i] = e
			continue
		}
		index[e.Symbol] = len(out)
		out = append(out, e)
	}
	return out
}
