package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"stockwatch/internal/config"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/poller"
	"stockwatch/internal/quotes"
	"stockwatch/internal/ratelimit"
	"stockwatch/internal/remote"
	"stockwatch/internal/search"
	"stockwatch/internal/session"
	"stockwatch/internal/watchlist"
)

const usage = `Usage: stockwatch [--config path] <command> [args]

Commands:
  watch                 print the watchlist and refresh it until interrupted
  search <query>        search for instruments
  quote <symbol>...     show the latest quotes
  add <symbol> [name]   add an instrument to the watchlist
  remove <symbol>       remove an instrument from the watchlist
  whoami                show the signed-in user
`

var errUsage = errors.New("invalid usage")

func main() {
	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "stockwatch: %v\n", err)
		os.Exit(1)
	}
}

// app holds the components every command is built from
type app struct {
	cfg    *config.Config
	client *remote.Client
	out    io.Writer
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("stockwatch", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.StringP("config", "c", "", "path to a config file")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := flags.Args()
	if len(rest) == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	a, err := newApp(cfg, out)
	if err != nil {
		return err
	}

	command, params := rest[0], rest[1:]
	switch command {
	case "watch":
		return a.watch(ctx)
	case "search":
		if len(params) == 0 {
			return errUsage
		}
		return a.search(ctx, strings.Join(params, " "))
	case "quote":
		if len(params) == 0 {
			return errUsage
		}
		return a.quote(ctx, params)
	case "add":
		if len(params) == 0 || len(params) > 2 {
			return errUsage
		}
		name := ""
		if len(params) == 2 {
			name = params[1]
		}
		return a.add(ctx, params[0], name)
	case "remove":
		if len(params) != 1 {
			return errUsage
		}
		return a.remove(ctx, params[0])
	case "whoami":
		return a.whoami(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	var cookie *remote.SessionCookie
	if cfg.SessionCookie != "" {
		cookie = &remote.SessionCookie{Name: cfg.SessionCookieName, Value: cfg.SessionCookie}
	}

	client, err := remote.New(remote.Options{
		BaseURL:  cfg.BaseURL,
		LoginURL: cfg.LoginURL,
		Timeout:  cfg.RequestTimeout,
		Cookie:   cookie,
		Limiter: ratelimit.New(ratelimit.Limits{
			Default: cfg.RequestsPerSecond,
			Search:  cfg.SearchRequestsPerSecond,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &app{cfg: cfg, client: client, out: out}, nil
}

func (a *app) watch(ctx context.Context) error {
	gate := session.NewGate(a.client, a.client.LogoutURL())
	store := watchlist.NewStore(a.client)
	p := poller.New(store, poller.WithInterval(a.cfg.PollInterval))

	var printed uint64
	unsubscribe := store.Subscribe(func(snap watchlist.Snapshot) {
		if snap.Refreshing || snap.Seq <= printed {
			return
		}
		printed = snap.Seq
		a.printSnapshot(snap, time.Now())
	})
	defer unsubscribe()

	unbind := p.Bind(ctx, gate)
	defer unbind()

	user := gate.CheckSession(ctx)
	if user == nil {
		return a.notSignedIn(gate.LastError())
	}
	fmt.Fprintf(a.out, "Watching as %s, refreshing every %s\n", displayName(user), a.cfg.PollInterval)

	<-ctx.Done()
	return nil
}

func (a *app) search(ctx context.Context, query string) error {
	s := search.NewSession(a.client, search.WithDebounce(a.cfg.SearchDebounce))
	defer s.Close()

	done := make(chan search.State, 1)
	unsubscribe := s.Subscribe(func(st search.State) {
		if st.Status == search.StatusReady || st.Status == search.StatusFailed {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	s.Input(query)
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(a.out, "Nothing to search for")
		return nil
	}

	var st search.State
	select {
	case st = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if st.Status == search.StatusFailed {
		return errors.New(st.Error)
	}
	if len(st.Results) == 0 {
		fmt.Fprintf(a.out, "No instruments match %q\n", query)
		return nil
	}
	for _, r := range st.Results {
		fmt.Fprintf(a.out, "%-8s %s\n", r.Symbol, r.Description)
	}
	return nil
}

func (a *app) quote(ctx context.Context, symbols []string) error {
	book := quotes.NewBook(a.client, a.cfg.QuoteCacheTTL)

	// Results are printed in the format:
	//   - Success: "SYMBOL: $PRICE (CHANGE, PERCENT%)"
	//   - Missing: "SYMBOL: no quote available"
	//   - Error: "SYMBOL: ERROR - error message"
	failed := 0
	for _, result := range book.GetAll(ctx, symbols) {
		switch {
		case result.Error != nil:
			failed++
			fmt.Fprintf(a.out, "%s: ERROR - %v\n", result.Symbol, result.Error)
		case result.Quote == nil:
			fmt.Fprintf(a.out, "%s: no quote available\n", result.Symbol)
		default:
			q := result.Quote
			fmt.Fprintf(a.out, "%s: $%s (%s, %s%%)\n", result.Symbol,
				formatPrice(q.CurrentPrice), formatSigned(q.Change), formatSigned(q.PercentChange))
		}
	}

	if failed == len(symbols) {
		return fmt.Errorf("all %d quote lookups failed", failed)
	}
	return nil
}

func (a *app) add(ctx context.Context, symbol, name string) error {
	symbol = models.NormalizeSymbol(symbol)
	if name == "" {
		name = a.lookupName(ctx, symbol)
	}

	store := watchlist.NewStore(a.client)
	entry, err := store.Add(ctx, symbol, name)
	if err != nil {
		return err
	}

	if entry.CompanyName != "" {
		fmt.Fprintf(a.out, "Added %s (%s) to watchlist\n", entry.Symbol, entry.CompanyName)
	} else {
		fmt.Fprintf(a.out, "Added %s to watchlist\n", entry.Symbol)
	}
	return nil
}

// lookupName finds the company name for an exact symbol match, or ""
func (a *app) lookupName(ctx context.Context, symbol string) string {
	results, err := a.client.SearchInstruments(ctx, symbol)
	if err != nil {
		slog.Debug("company name lookup failed", "symbol", symbol, "error", err)
		return ""
	}
	for _, r := range results {
		if strings.EqualFold(r.Symbol, symbol) {
			return r.Description
		}
	}
	return ""
}

func (a *app) remove(ctx context.Context, symbol string) error {
	store := watchlist.NewStore(a.client)
	if err := store.Remove(ctx, symbol); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %s from watchlist\n", models.NormalizeSymbol(symbol))
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	gate := session.NewGate(a.client, a.client.LogoutURL())
	user := gate.CheckSession(ctx)
	if user == nil {
		return a.notSignedIn(gate.LastError())
	}

	if user.Email != "" {
		fmt.Fprintf(a.out, "Signed in as %s <%s>\n", displayName(user), user.Email)
	} else {
		fmt.Fprintf(a.out, "Signed in as %s\n", displayName(user))
	}
	return nil
}

func (a *app) notSignedIn(cause error) error {
	if cause != nil {
		return fmt.Errorf("could not verify session: %w", cause)
	}
	fmt.Fprintf(a.out, "Not signed in. Sign in at %s\n", a.client.LoginURL())
	return errors.New("not signed in")
}

func (a *app) printSnapshot(snap watchlist.Snapshot, now time.Time) {
	fmt.Fprintf(a.out, "Watchlist (%d) - last updated: %s\n",
		len(snap.Entries), watchlist.SinceLabel(snap.LastRefreshedAt, now))
	if len(snap.Entries) == 0 {
		fmt.Fprintln(a.out, "  (empty)")
		return
	}
	for _, e := range snap.Entries {
		fmt.Fprintf(a.out, "  %-8s %-30s %10s %10s %9s%%\n",
			e.Symbol, e.CompanyName, formatPrice(e.CurrentPrice), formatSigned(e.Change), formatSigned(e.PercentChange))
	}
}

func displayName(u *models.SessionUser) string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

func formatPrice(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return d.Decimal.StringFixed(2)
}

func formatSigned(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	if d.Decimal.IsPositive() {
		return "+" + d.Decimal.StringFixed(2)
	}
	return d.Decimal.StringFixed(2)
}
