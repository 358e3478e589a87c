package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"stockwatch/internal/models"
)

// Route names a backend endpoint of the fake API
type Route string

const (
	RouteSession    Route = "session"
	RouteAuthStatus Route = "auth_status"
	RouteSearch     Route = "search"
	RouteQuote      Route = "quote"
	RouteWatchlist  Route = "watchlist"
	RouteAdd        Route = "add"
	RouteRemove     Route = "remove"
	RouteCheck      Route = "check"
	RouteCount      Route = "count"
)

// Hook runs before a route is served, outside the fake's lock. Tests use it to
// block a request until they release it, or to observe arrival order.
type Hook func(r *http.Request)

// FakeAPI is an in-memory implementation of the watchlist backend behind an
// httptest.Server
type FakeAPI struct {
	Server *httptest.Server

	mu            sync.Mutex
	user          *models.SessionResponse
	entries       []models.WatchlistEntry
	nextID        int64
	catalog       []models.SearchResult
	quotes        map[string]models.Quote
	failures      map[Route]int
	calls         map[Route]int
	hooks         map[Route]Hook
	searchQueries []string
	cookieName    string
	cookieValue   string
	requestIDs    []string
}

// NewFakeAPI starts a fake backend that is closed when the test ends
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		nextID:   1,
		quotes:   make(map[string]models.Quote),
		failures: make(map[Route]int),
		calls:    make(map[Route]int),
		hooks:    make(map[Route]Hook),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/auth/user", f.handle(RouteSession, f.getSession)).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/status", f.handle(RouteAuthStatus, f.getAuthStatus)).Methods(http.MethodGet)
	r.HandleFunc("/api/stocks/search", f.handle(RouteSearch, f.search)).Methods(http.MethodGet)
	r.HandleFunc("/api/stocks/quote/{symbol}", f.handle(RouteQuote, f.getQuote)).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlist", f.handle(RouteWatchlist, f.getWatchlist)).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlist", f.handle(RouteAdd, f.addEntry)).Methods(http.MethodPost)
	r.HandleFunc("/api/watchlist/count", f.handle(RouteCount, f.count)).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlist/check/{symbol}", f.handle(RouteCheck, f.check)).Methods(http.MethodGet)
	r.HandleFunc("/api/watchlist/{symbol}", f.handle(RouteRemove, f.removeEntry)).Methods(http.MethodDelete)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake backend
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// SignIn makes /api/auth/user report an authenticated user
func (f *FakeAPI) SignIn(id, email, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = &models.SessionResponse{Authenticated: true, ID: id, Email: email, Name: name}
}

// SignOut makes /api/auth/user report an anonymous session
func (f *FakeAPI) SignOut() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = nil
}

// RequireCookie rejects requests with 401 unless they carry the named cookie
func (f *FakeAPI) RequireCookie(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookieName = name
	f.cookieValue = value
}

// SetEntries replaces the server-side watchlist
func (f *FakeAPI) SetEntries(entries ...models.WatchlistEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]models.WatchlistEntry(nil), entries...)
}

// Entries returns a copy of the server-side watchlist
func (f *FakeAPI) Entries() []models.WatchlistEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WatchlistEntry(nil), f.entries...)
}

// SetCatalog sets the instruments search matches against
func (f *FakeAPI) SetCatalog(results ...models.SearchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = append([]models.SearchResult(nil), results...)
}

// SetQuote registers a quote for its symbol
func (f *FakeAPI) SetQuote(q models.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[q.Symbol] = q
}

// FailWith makes every call to route answer with status until cleared
func (f *FakeAPI) FailWith(route Route, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = status
}

// ClearFailure undoes FailWith
func (f *FakeAPI) ClearFailure(route Route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, route)
}

// SetHook installs a hook for route; nil removes it
func (f *FakeAPI) SetHook(route Route, hook Hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hook == nil {
		delete(f.hooks, route)
		return
	}
	f.hooks[route] = hook
}

// Calls returns how many requests route has received
func (f *FakeAPI) Calls(route Route) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// SearchQueries returns every q parameter received, in arrival order
func (f *FakeAPI) SearchQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searchQueries...)
}

// RequestIDs returns every X-Request-ID header received
func (f *FakeAPI) RequestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...)
}

// Entry builds a watchlist entry with an optional price
func Entry(symbol, name string, price string) models.WatchlistEntry {
	e := models.WatchlistEntry{
		Symbol:      symbol,
		CompanyName: name,
		AddedAt:     models.Timestamp{Time: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
	}
	if price != "" {
		e.CurrentPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	return e
}

// Symbols lists the symbols of entries in order
func Symbols(entries []models.WatchlistEntry) []string {
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}
	return symbols
}

func (f *FakeAPI) handle(route Route, serve http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[route]++
		if route == RouteSearch {
			f.searchQueries = append(f.searchQueries, r.URL.Query().Get("q"))
		}
		f.requestIDs = append(f.requestIDs, r.Header.Get("X-Request-ID"))
		hook := f.hooks[route]
		status, failing := f.failures[route]
		cookieName, cookieValue := f.cookieName, f.cookieValue
		f.mu.Unlock()

		if hook != nil {
			hook(r)
		}

		if cookieName != "" {
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value != cookieValue {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authenticated"})
				return
			}
		}

		if failing {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}

		serve(w, r)
	}
}

func (f *FakeAPI) getSession(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, f.user)
}

func (f *FakeAPI) getAuthStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := models.AuthStatus{Authenticated: f.user != nil}
	if f.user != nil {
		status.Name = f.user.Name
		status.Picture = f.user.Picture
	}
	writeJSON(w, http.StatusOK, status)
}

func (f *FakeAPI) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("q")))

	f.mu.Lock()
	defer f.mu.Unlock()
	results := []models.SearchResult{}
	for _, item := range f.catalog {
		if strings.Contains(item.Symbol, q) || strings.Contains(strings.ToUpper(item.Description), q) {
			results = append(results, item)
		}
	}
	writeJSON(w, http.StatusOK, results)
}

func (f *FakeAPI) getQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Quote not found"})
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (f *FakeAPI) getWatchlist(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.entries
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (f *FakeAPI) addEntry(w http.ResponseWriter, r *http.Request) {
	var req models.AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Symbol is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Symbol == symbol {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Stock already in watchlist"})
			return
		}
	}

	entry := models.WatchlistEntry{
		ID:          f.nextID,
		Symbol:      symbol,
		CompanyName: req.CompanyName,
		AddedAt:     models.Timestamp{Time: time.Now().UTC().Truncate(time.Minute)},
	}
	if q, ok := f.quotes[symbol]; ok {
		entry.CurrentPrice = q.CurrentPrice
		entry.Change = q.Change
		entry.PercentChange = q.PercentChange
	}
	f.nextID++
	f.entries = append(f.entries, entry)
	writeJSON(w, http.StatusCreated, entry)
}

func (f *FakeAPI) removeEntry(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.Symbol == symbol {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Stock removed from watchlist"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Stock not in watchlist"})
}

func (f *FakeAPI) check(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, e := range f.entries {
		if e.Symbol == symbol {
			found = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"inWatchlist": found})
}

func (f *FakeAPI) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"count": len(f.entries)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
