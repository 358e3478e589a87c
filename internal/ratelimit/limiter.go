package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Endpoint groups backend operations that share a request budget
type Endpoint string

const (
	// EndpointSession covers the auth user/status lookups
	EndpointSession Endpoint = "session"
	// EndpointSearch covers instrument search, which fires on every settled keystroke
	EndpointSearch Endpoint = "search"
	// EndpointQuote covers single-symbol quote lookups
	EndpointQuote Endpoint = "quote"
	// EndpointWatchlist covers watchlist reads and mutations
	EndpointWatchlist Endpoint = "watchlist"
)

// Limits configures requests per second for each endpoint group.
// A zero or negative rate means unlimited.
type Limits struct {
	Default float64
	Search  float64
}

// Limiter paces outgoing requests per endpoint group so a burst of UI activity
// cannot flood the backend
type Limiter struct {
	limiters map[Endpoint]*rate.Limiter
}

// New creates a Limiter for the given limits
func New(limits Limits) *Limiter {
	l := &Limiter{
		limiters: make(map[Endpoint]*rate.Limiter),
	}

	l.limiters[EndpointSession] = newLimiter(limits.Default)
	l.limiters[EndpointQuote] = newLimiter(limits.Default)
	l.limiters[EndpointWatchlist] = newLimiter(limits.Default)
	l.limiters[EndpointSearch] = newLimiter(limits.Search)

	return l
}

// Unlimited returns a Limiter that never delays; used by tests and tools
func Unlimited() *Limiter {
	return New(Limits{})
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	// Allow a short burst so an add followed by an immediate refresh is not delayed
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Wait blocks until the limiter permits a request for the given endpoint.
// It returns an error if the context is canceled before the request can proceed
func (l *Limiter) Wait(ctx context.Context, endpoint Endpoint) error {
	limiter, exists := l.limiters[endpoint]
	if !exists {
		return nil
	}

	return limiter.Wait(ctx)
}
