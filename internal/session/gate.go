package session

import (
	"context"
	"log/slog"
	"sync"

	"stockwatch/internal/models"
)

// Fetcher retrieves the current principal from the backend
type Fetcher interface {
	FetchCurrentSession(ctx context.Context) (*models.SessionResponse, error)
}

// Gate owns the "who is signed in" fact and tells dependents when it changes.
//
// It fails closed: any error, or any response that is not explicitly
// authenticated, leaves the Gate signed out. Errors are logged and never
// returned; callers re-check explicitly, e.g. after a login redirect.
type Gate struct {
	fetcher   Fetcher
	logoutURL string

	mu          sync.Mutex
	user        *models.SessionUser
	lastErr     error
	subscribers map[int]func(*models.SessionUser)
	nextSubID   int
}

// NewGate creates a signed-out Gate
func NewGate(fetcher Fetcher, logoutURL string) *Gate {
	return &Gate{
		fetcher:     fetcher,
		logoutURL:   logoutURL,
		subscribers: make(map[int]func(*models.SessionUser)),
	}
}

// CheckSession asks the backend who is signed in, stores the answer and
// notifies subscribers. It returns the stored user, nil when signed out.
func (g *Gate) CheckSession(ctx context.Context) *models.SessionUser {
	resp, err := g.fetcher.FetchCurrentSession(ctx)

	var user *models.SessionUser
	if err != nil {
		slog.Warn("session check failed, treating as signed out", "error", err)
	} else {
		user = resp.User()
	}

	g.set(user, err)
	return user
}

// User returns a copy of the signed-in user, or nil
func (g *Gate) User() *models.SessionUser {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return nil
	}
	u := *g.user
	return &u
}

// Authenticated reports whether a user is signed in
func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.user != nil
}

// LastError returns the error from the most recent check, if it failed.
// It lets a caller tell "signed out" from "could not find out" without
// changing the fail-closed outcome.
func (g *Gate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// SignOut forgets the user, notifies subscribers and returns the URL the
// caller should navigate to so the backend ends the session
func (g *Gate) SignOut() string {
	g.set(nil, nil)
	return g.logoutURL
}

// Subscribe registers fn to be called with the user after every check or
// sign-out. The returned function unsubscribes.
func (g *Gate) Subscribe(fn func(*models.SessionUser)) func() {
	g.mu.Lock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subscribers, id)
		g.mu.Unlock()
	}
}

func (g *Gate) set(user *models.SessionUser, err error) {
	g.mu.Lock()
	g.user = user
	g.lastErr = err
	subs := make([]func(*models.SessionUser), 0, len(g.subscribers))
	for _, fn := range g.subscribers {
		subs = append(subs, fn)
	}
	g.mu.Unlock()

	for _, fn := range subs {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
