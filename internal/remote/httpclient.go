package remote

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
	"resty.dev/v3"
)

const (
	defaultTimeout = 10 * time.Second

	// RequestIDHeader carries a per-request id for correlating client and server logs
	RequestIDHeader = "X-Request-ID"
)

// SessionCookie is the credential seeded into the client's cookie jar.
// Browsers send it implicitly; the CLI has to be told about it.
type SessionCookie struct {
	Name  string
	Value string
}

// NewHTTPClient creates the resty client used for every backend call.
// Requests are never retried here: the Poller retries by virtue of its next
// tick and user-triggered calls are not retried at all.
func NewHTTPClient(baseURL string, timeout time.Duration, cookie *SessionCookie) (*resty.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if cookie != nil && cookie.Value != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
		}
		jar.SetCookies(u, []*http.Cookie{{
			Name:  cookie.Name,
			Value: cookie.Value,
			Path:  "/",
		}})
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetCookieJar(jar).
		SetRetryCount(0)

	return client, nil
}

// logResponse records the outcome of a request for observability
func logResponse(op string, requestID string, r *resty.Response, err error) {
	if err != nil {
		slog.Debug("request failed",
			"op", op,
			"request_id", requestID,
			"error", err.Error())
		return
	}

	slog.Debug("request completed",
		"op", op,
		"request_id", requestID,
		"url", r.Request.URL,
		"status_code", r.StatusCode(),
		"duration", r.Duration())
}
