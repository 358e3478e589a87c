package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/models"
	"stockwatch/internal/remote"
	"stockwatch/internal/testutil"
)

func newClient(t *testing.T, api *testutil.FakeAPI) *remote.Client {
	t.Helper()
	client, err := remote.New(remote.Options{BaseURL: api.URL()})
	require.NoError(t, err)
	return client
}

func quote(symbol, price string) models.Quote {
	return models.Quote{
		Symbol:       symbol,
		CurrentPrice: decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
}

func TestBook_CachesQuotes(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.SetQuote(quote("AAPL", "189.25"))
	book := NewBook(newClient(t, api), time.Minute)

	q, err := book.Get(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "189.25", q.CurrentPrice.Decimal.String())

	q, err = book.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, q)

	assert.Equal(t, 1, api.Calls(testutil.RouteQuote))
	assert.Equal(t, 1, book.cache.ItemCount())
}

func TestBook_ExpiresAfterTTL(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.SetQuote(quote("MSFT", "410.10"))
	book := NewBook(newClient(t, api), 20*time.Millisecond)

	_, err := book.Get(context.Background(), "MSFT")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = book.Get(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 2, api.Calls(testutil.RouteQuote))
}

func TestBook_MissingQuoteNotCached(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	book := NewBook(newClient(t, api), time.Minute)

	q, err := book.Get(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, q)

	api.SetQuote(quote("ZZZZ", "1.00"))
	q, err = book.Get(context.Background(), "ZZZZ")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 2, api.Calls(testutil.RouteQuote))
}

func TestBook_ReturnsCopies(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.SetQuote(quote("IBM", "180"))
	book := NewBook(newClient(t, api), time.Minute)

	q, err := book.Get(context.Background(), "IBM")
	require.NoError(t, err)
	q.Name = "changed"

	again, err := book.Get(context.Background(), "IBM")
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again.Name)
}

type failingFetcher struct{}

func (failingFetcher) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, &remote.TransportError{Op: "fetch quote", Cause: errors.New("connection refused")}
}

func TestBook_TransportErrorSurfaces(t *testing.T) {
	book := NewBook(failingFetcher{}, 0)

	_, err := book.Get(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, remote.IsTransport(err))
	assert.Equal(t, 0, book.cache.ItemCount())
}

func TestBook_EmptySymbol(t *testing.T) {
	book := NewBook(failingFetcher{}, 0)

	_, err := book.Get(context.Background(), "  ")
	assert.Error(t, err)
}

func TestBook_GetAll(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.SetQuote(quote("AAPL", "189.25"))
	api.SetQuote(quote("GOOG", "140.00"))
	book := NewBook(newClient(t, api), time.Minute)

	results := book.GetAll(context.Background(), []string{"goog", "NONE", "AAPL"})
	require.Len(t, results, 3)

	assert.Equal(t, "GOOG", results[0].Symbol)
	require.NotNil(t, results[0].Quote)
	assert.NoError(t, results[0].Error)

	assert.Equal(t, "NONE", results[1].Symbol)
	assert.Nil(t, results[1].Quote)
	assert.NoError(t, results[1].Error)

	assert.Equal(t, "AAPL", results[2].Symbol)
	require.NotNil(t, results[2].Quote)
	assert.Equal(t, "189.25", results[2].Quote.CurrentPrice.Decimal.String())
}
