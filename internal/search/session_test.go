package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/models"
)

type searchCall struct {
	query   string
	release chan struct{}
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	block   map[string]chan struct{}
	results map[string][]models.SearchResult
	err     error
	calls   chan searchCall
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		block:   make(map[string]chan struct{}),
		results: make(map[string][]models.SearchResult),
		calls:   make(chan searchCall, 512),
	}
}

// hold makes searches for query wait until the returned channel is closed
func (f *fakeSearcher) hold(query string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block[query] = ch
	return ch
}

func (f *fakeSearcher) SearchInstruments(ctx context.Context, query string) ([]models.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	release := f.block[query]
	results := f.results[query]
	err := f.err
	f.mu.Unlock()

	f.calls <- searchCall{query: query, release: release}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (f *fakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func waitForStatus(t *testing.T, s *Session, want Status) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st = s.State()
		return st.Status == want
	}, time.Second, 5*time.Millisecond, "status never became %s", want)
	return st
}

func TestSession_StartsIdle(t *testing.T) {
	s := NewSession(newFakeSearcher())
	defer s.Close()

	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Results)
	assert.Equal(t, DefaultDebounce, s.debounce)
}

func TestSession_DebounceSubmitsOnlyLastQuery(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["AAP"] = []models.SearchResult{{Symbol: "AAP", Description: "Advance Auto Parts"}}
	s := NewSession(searcher, WithDebounce(30*time.Millisecond))
	defer s.Close()

	s.Input("A")
	s.Input("AA")
	s.Input("AAP")

	st := waitForStatus(t, s, StatusReady)
	assert.Equal(t, []string{"AAP"}, searcher.Queries())
	assert.Equal(t, "AAP", st.Query)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "AAP", st.Results[0].Symbol)

	// no late timer fires for the earlier keystrokes
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"AAP"}, searcher.Queries())
}

func TestSession_StaleResponseDiscarded(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["AAP"] = []models.SearchResult{{Symbol: "AAP"}}
	searcher.results["AAPL"] = []models.SearchResult{{Symbol: "AAPL", Description: "Apple Inc"}}
	releaseAAP := searcher.hold("AAP")
	s := NewSession(searcher, WithDebounce(time.Hour))
	defer s.Close()

	s.Input("AAP")
	go s.Flush()
	first := <-searcher.calls
	require.Equal(t, "AAP", first.query)

	s.Input("AAPL")
	s.Flush()
	second := <-searcher.calls
	require.Equal(t, "AAPL", second.query)

	st := waitForStatus(t, s, StatusReady)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "AAPL", st.Results[0].Symbol)

	close(releaseAAP)
	time.Sleep(20 * time.Millisecond)

	st = s.State()
	assert.Equal(t, StatusReady, st.Status)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "AAPL", st.Results[0].Symbol, "late AAP response must not overwrite AAPL results")
}

func TestSession_BlankQueryClearsWithoutRequest(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["IBM"] = []models.SearchResult{{Symbol: "IBM"}}
	s := NewSession(searcher, WithDebounce(10*time.Millisecond))
	defer s.Close()

	s.Input("IBM")
	waitForStatus(t, s, StatusReady)
	<-searcher.calls

	s.Input("   ")
	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Results)
	assert.Empty(t, st.Error)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"IBM"}, searcher.Queries())
}

func TestSession_BlankQueryDiscardsInFlightResponse(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["MSFT"] = []models.SearchResult{{Symbol: "MSFT"}}
	release := searcher.hold("MSFT")
	s := NewSession(searcher, WithDebounce(time.Hour))
	defer s.Close()

	s.Input("MSFT")
	done := make(chan struct{})
	go func() {
		s.Flush()
		close(done)
	}()
	<-searcher.calls

	s.Input("")
	close(release)
	<-done

	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Results)
}

func TestSession_FailureShowsMessage(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["GOOG"] = []models.SearchResult{{Symbol: "GOOG"}}
	s := NewSession(searcher, WithDebounce(time.Hour))
	defer s.Close()

	s.Input("GOOG")
	s.Flush()
	require.Len(t, s.State().Results, 1)

	searcher.mu.Lock()
	searcher.err = errors.New("search failed")
	searcher.mu.Unlock()

	s.Input("GOOGL")
	s.Flush()

	st := s.State()
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, FailureMessage, st.Error)
	assert.Empty(t, st.Results)
}

func TestSession_ResetIgnoresInFlight(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["TSLA"] = []models.SearchResult{{Symbol: "TSLA"}}
	release := searcher.hold("TSLA")
	s := NewSession(searcher, WithDebounce(time.Hour))
	defer s.Close()

	s.Input("TSLA")
	done := make(chan struct{})
	go func() {
		s.Flush()
		close(done)
	}()
	<-searcher.calls
	assert.Equal(t, StatusSearching, s.State().Status)

	s.Reset()
	close(release)
	<-done

	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Query)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.Results)
}

func TestSession_ResetCancelsPendingTimer(t *testing.T) {
	searcher := newFakeSearcher()
	s := NewSession(searcher, WithDebounce(20*time.Millisecond))
	defer s.Close()

	s.Input("NVDA")
	s.Reset()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, searcher.Queries())
	assert.Equal(t, StatusIdle, s.State().Status)
}

func TestSession_CloseCancelsRequest(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.hold("AMZN")
	s := NewSession(searcher, WithDebounce(time.Hour))

	s.Input("AMZN")
	done := make(chan struct{})
	go func() {
		s.Flush()
		close(done)
	}()
	<-searcher.calls

	s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("in-flight search was not cancelled")
	}

	s.Input("AMZN")
	s.Flush()
	assert.Equal(t, []string{"AMZN"}, searcher.Queries())
}

func TestSession_FlushAtDebounceBoundarySendsOneRequest(t *testing.T) {
	const iterations = 200
	const debounce = 100 * time.Microsecond

	searcher := newFakeSearcher()
	searcher.results["AAP"] = []models.SearchResult{{Symbol: "AAP"}}
	s := NewSession(searcher, WithDebounce(debounce))
	defer s.Close()

	for i := 0; i < iterations; i++ {
		s.Input("AAP")
		time.Sleep(debounce)
		s.Flush()
		// let a timer callback that fired before Flush finish
		time.Sleep(time.Millisecond)
	}

	assert.Len(t, searcher.Queries(), iterations, "each settled query is sent exactly once")
	assert.Equal(t, StatusReady, s.State().Status)
}

func TestSession_InputAfterCloseIgnored(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["AAPL"] = []models.SearchResult{{Symbol: "AAPL"}}
	s := NewSession(searcher, WithDebounce(time.Hour))

	s.Input("AAPL")
	s.Flush()
	require.Len(t, s.State().Results, 1)

	s.Close()

	notifications := 0
	s.Subscribe(func(State) { notifications++ })

	s.Input("")
	s.Input("MSFT")
	s.Flush()

	st := s.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Query)
	assert.Equal(t, 0, notifications)
	assert.Equal(t, []string{"AAPL"}, searcher.Queries())
}

func TestSession_Subscribe(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.results["META"] = []models.SearchResult{{Symbol: "META"}}
	s := NewSession(searcher, WithDebounce(time.Hour))
	defer s.Close()

	var mu sync.Mutex
	var statuses []Status
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		statuses = append(statuses, st.Status)
		mu.Unlock()
	})

	s.Input("META")
	s.Flush()

	mu.Lock()
	assert.Equal(t, []Status{StatusIdle, StatusSearching, StatusReady}, statuses)
	mu.Unlock()

	unsubscribe()
	s.Reset()
	mu.Lock()
	assert.Len(t, statuses, 3)
	mu.Unlock()
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "searching", StatusSearching.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}
