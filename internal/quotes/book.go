package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"stockwatch/internal/models"
)

// DefaultTTL is how long a fetched quote is served from memory
const DefaultTTL = 15 * time.Second

// Fetcher retrieves a single quote; a nil quote with a nil error means the
// backend has no price for the symbol
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Result is the outcome of one lookup in a batch
type Result struct {
	Symbol string
	Quote  *models.Quote
	Error  error
}

// Book serves quotes from a short-lived in-memory cache, fetching on miss.
// Only present quotes are cached; misses and failures are retried next time.
type Book struct {
	fetcher Fetcher
	cache   *cache.Cache
}

// NewBook creates a Book. A ttl <= 0 uses DefaultTTL.
func NewBook(fetcher Fetcher, ttl time.Duration) *Book {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Book{
		fetcher: fetcher,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Get returns the quote for symbol, or nil when the backend has none
func (b *Book) Get(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("quote: empty symbol")
	}

	if cached, ok := b.cache.Get(symbol); ok {
		q := *cached.(*models.Quote)
		return &q, nil
	}

	q, err := b.fetcher.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q == nil {
		slog.Debug("no quote available", "symbol", symbol)
		return nil, nil
	}

	stored := *q
	b.cache.SetDefault(symbol, &stored)
	return q, nil
}

// GetAll looks up every symbol concurrently. Results are returned in the
// order of symbols; a failed lookup does not affect the others.
func (b *Book) GetAll(ctx context.Context, symbols []string) []Result {
	results := make([]Result, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			q, err := b.Get(ctx, symbol)
			results[i] = Result{
				Symbol: models.NormalizeSymbol(symbol),
				Quote:  q,
				Error:  err,
			}
		}(i, symbol)
	}
	wg.Wait()

	return results
}
