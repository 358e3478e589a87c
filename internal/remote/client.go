package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"resty.dev/v3"

	"stockwatch/internal/models"
	"stockwatch/internal/ratelimit"
)

// Options configures a Client
type Options struct {
	// BaseURL is the backend origin, e.g. http://localhost:8080
	BaseURL string
	// LoginURL is the identity-provider sign-in page. Defaults to the
	// backend's OAuth2 authorization endpoint.
	LoginURL string
	Timeout  time.Duration
	Cookie   *SessionCookie
	// Limiter paces requests; nil means unlimited
	Limiter *ratelimit.Limiter
}

// Client is a typed wrapper over the watchlist backend. Every request carries
// the session cookie from the client's jar; no operation accepts credentials.
// Failures are never swallowed and never retried.
type Client struct {
	http     *resty.Client
	limiter  *ratelimit.Limiter
	baseURL  string
	loginURL string
}

// apiErrorBody matches the error payloads the backend produces
type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (b *apiErrorBody) text() string {
	if b == nil {
		return ""
	}
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}

// New creates a new backend client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	httpClient, err := NewHTTPClient(baseURL, opts.Timeout, opts.Cookie)
	if err != nil {
		return nil, err
	}
	// A redirect means the session was rejected and the backend is sending us
	// to a login page; surface the 3xx instead of following it
	httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}

	loginURL := opts.LoginURL
	if loginURL == "" {
		loginURL = baseURL + "/oauth2/authorization/google"
	}

	return &Client{
		http:     httpClient,
		limiter:  limiter,
		baseURL:  baseURL,
		loginURL: loginURL,
	}, nil
}

// LoginURL returns the sign-in redirect target
func (c *Client) LoginURL() string {
	return c.loginURL
}

// LogoutURL returns the sign-out redirect target
func (c *Client) LogoutURL() string {
	return c.baseURL + "/api/auth/logout"
}

// FetchCurrentSession retrieves the current principal from GET /api/auth/user
func (c *Client) FetchCurrentSession(ctx context.Context) (*models.SessionResponse, error) {
	const op = "fetch current session"

	var result models.SessionResponse
	if err := c.getJSON(ctx, op, ratelimit.EndpointSession, "/api/auth/user", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchAuthStatus retrieves the lightweight GET /api/auth/status payload
func (c *Client) FetchAuthStatus(ctx context.Context) (*models.AuthStatus, error) {
	const op = "fetch auth status"

	var result models.AuthStatus
	if err := c.getJSON(ctx, op, ratelimit.EndpointSession, "/api/auth/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchInstruments returns matches for query in server order. A blank query
// returns no results without contacting the backend.
func (c *Client) SearchInstruments(ctx context.Context, query string) ([]models.SearchResult, error) {
	const op = "search instruments"

	if strings.TrimSpace(query) == "" {
		return []models.SearchResult{}, nil
	}

	var results []models.SearchResult
	err := c.getJSON(ctx, op, ratelimit.EndpointSearch, "/api/stocks/search", func(r *resty.Request) {
		r.SetQueryParam("q", query)
	}, &results)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

// FetchQuote returns the latest quote for symbol. A non-success status yields
// (nil, nil): a missing quote is not an error. Transport failures still are.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	const op = "fetch quote"

	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, nil
	}

	var result models.Quote
	err := c.getJSON(ctx, op, ratelimit.EndpointQuote, "/api/stocks/quote/{symbol}", func(r *resty.Request) {
		r.SetPathParam("symbol", symbol)
	}, &result)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// FetchWatchlist returns the user's watchlist in server insertion order
func (c *Client) FetchWatchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	const op = "fetch watchlist"

	var entries []models.WatchlistEntry
	if err := c.getJSON(ctx, op, ratelimit.EndpointWatchlist, "/api/watchlist", nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}
	return entries, nil
}

// AddWatchlistEntry adds symbol to the watchlist and returns the created entry.
// HTTP 409 is reported as a *DuplicateEntryError.
func (c *Client) AddWatchlistEntry(ctx context.Context, symbol, companyName string) (*models.WatchlistEntry, error) {
	const op = "add watchlist entry"

	req, id, err := c.request(ctx, op, ratelimit.EndpointWatchlist)
	if err != nil {
		return nil, err
	}

	var (
		result  models.WatchlistEntry
		errBody apiErrorBody
	)
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(models.AddEntryRequest{Symbol: symbol, CompanyName: companyName}).
		SetResult(&result).
		SetError(&errBody).
		Post("/api/watchlist")
	logResponse(op, id, resp, err)

	if err := checkResponse(op, resp, err, &errBody); err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.StatusCode == http.StatusConflict {
			return nil, &DuplicateEntryError{Symbol: symbol, RemoteError: re}
		}
		return nil, err
	}
	if err := expectJSON(op, resp); err != nil {
		return nil, err
	}
	if result.Symbol == "" {
		result.Symbol = symbol
	}
	if result.CompanyName == "" {
		result.CompanyName = companyName
	}
	return &result, nil
}

// RemoveWatchlistEntry deletes symbol from the watchlist
func (c *Client) RemoveWatchlistEntry(ctx context.Context, symbol string) error {
	const op = "remove watchlist entry"

	req, id, err := c.request(ctx, op, ratelimit.EndpointWatchlist)
	if err != nil {
		return err
	}

	var errBody apiErrorBody
	resp, err := req.
		SetPathParam("symbol", symbol).
		SetError(&errBody).
		Delete("/api/watchlist/{symbol}")
	logResponse(op, id, resp, err)

	return checkResponse(op, resp, err, &errBody)
}

// IsInWatchlist asks the backend whether symbol is already tracked
func (c *Client) IsInWatchlist(ctx context.Context, symbol string) (bool, error) {
	const op = "check watchlist entry"

	var result struct {
		InWatchlist bool `json:"inWatchlist"`
	}
	err := c.getJSON(ctx, op, ratelimit.EndpointWatchlist, "/api/watchlist/check/{symbol}", func(r *resty.Request) {
		r.SetPathParam("symbol", symbol)
	}, &result)
	if err != nil {
		return false, err
	}
	return result.InWatchlist, nil
}

// WatchlistCount returns the number of entries the backend holds for the user
func (c *Client) WatchlistCount(ctx context.Context) (int64, error) {
	const op = "count watchlist entries"

	var result struct {
		Count int64 `json:"count"`
	}
	if err := c.getJSON(ctx, op, ratelimit.EndpointWatchlist, "/api/watchlist/count", nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// request waits for the endpoint's rate budget and prepares a request carrying
// a fresh request id
func (c *Client) request(ctx context.Context, op string, endpoint ratelimit.Endpoint) (*resty.Request, string, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, "", NewTransportError(op, err)
	}

	id := uuid.NewString()
	return c.http.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, id), id, nil
}

func (c *Client) getJSON(ctx context.Context, op string, endpoint ratelimit.Endpoint, path string, configure func(*resty.Request), result any) error {
	req, id, err := c.request(ctx, op, endpoint)
	if err != nil {
		return err
	}
	if configure != nil {
		configure(req)
	}

	var errBody apiErrorBody
	resp, err := req.
		SetResult(result).
		SetError(&errBody).
		Get(path)
	logResponse(op, id, resp, err)

	if err := checkResponse(op, resp, err, &errBody); err != nil {
		return err
	}
	return expectJSON(op, resp)
}

// checkResponse translates a resty outcome into the client's error taxonomy
func checkResponse(op string, resp *resty.Response, err error, errBody *apiErrorBody) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}

	if err != nil {
		switch {
		case status >= 200 && status < 300:
			return &DecodeError{Op: op, StatusCode: status, Cause: err}
		case status >= 300:
			return NewRemoteError(op, status, errBody.text())
		default:
			return NewTransportError(op, err)
		}
	}

	if !resp.IsSuccess() {
		return NewRemoteError(op, status, errBody.text())
	}
	return nil
}

// expectJSON rejects success responses that are not JSON, such as a login page
// served in place of the API
func expectJSON(op string, resp *resty.Response) error {
	if resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	contentType := resp.Header().Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "json") {
		return &DecodeError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Cause:      fmt.Errorf("unexpected content type %q", contentType),
		}
	}
	return nil
}
