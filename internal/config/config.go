package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the stockwatch client.
type Config struct {
	// Backend endpoints
	BaseURL  string `mapstructure:"base_url"`
	LoginURL string `mapstructure:"login_url"`

	// Session credential seeded into the cookie jar
	SessionCookieName string `mapstructure:"session_cookie_name"`
	SessionCookie     string `mapstructure:"session_cookie"`

	// Timing
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SearchDebounce time.Duration `mapstructure:"search_debounce"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QuoteCacheTTL  time.Duration `mapstructure:"quote_cache_ttl"`

	// Client-side request rates, 0 disables limiting
	RequestsPerSecond       float64 `mapstructure:"requests_per_second"`
	SearchRequestsPerSecond float64 `mapstructure:"search_requests_per_second"`

	LogLevel string `mapstructure:"log_level"`
}

var keys = []string{
	"base_url",
	"login_url",
	"session_cookie_name",
	"session_cookie",
	"poll_interval",
	"search_debounce",
	"request_timeout",
	"quote_cache_ttl",
	"requests_per_second",
	"search_requests_per_second",
	"log_level",
}

// Load reads configuration from a .env file, environment variables and an
// optional config file. Environment variables take precedence over config
// file values.
//
// Each key can be set with a STOCKWATCH_ prefixed environment variable:
//   - STOCKWATCH_BASE_URL (default http://localhost:8080)
//   - STOCKWATCH_LOGIN_URL (default {base_url}/oauth2/authorization/google)
//   - STOCKWATCH_SESSION_COOKIE_NAME (default JSESSIONID)
//   - STOCKWATCH_SESSION_COOKIE
//   - STOCKWATCH_POLL_INTERVAL (default 30s)
//   - STOCKWATCH_SEARCH_DEBOUNCE (default 300ms)
//   - STOCKWATCH_REQUEST_TIMEOUT (default 10s)
//   - STOCKWATCH_QUOTE_CACHE_TTL (default 15s)
//   - STOCKWATCH_REQUESTS_PER_SECOND (default 10)
//   - STOCKWATCH_SEARCH_REQUESTS_PER_SECOND (default 5)
//   - STOCKWATCH_LOG_LEVEL (default info)
//
// A non-empty path names the config file explicitly and must exist.
func Load(path string) (*Config, error) {
	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	v := viper.New()

	v.SetEnvPrefix("stockwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("session_cookie_name", "JSESSIONID")
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("search_debounce", "300ms")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("quote_cache_ttl", "15s")
	v.SetDefault("requests_per_second", 10)
	v.SetDefault("search_requests_per_second", 5)
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stockwatch")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if config.LoginURL == "" && config.BaseURL != "" {
		config.LoginURL = config.BaseURL + "/oauth2/authorization/google"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var invalid []string

	if !isHTTPURL(c.BaseURL) {
		invalid = append(invalid, "base_url")
	}
	if c.LoginURL != "" && !isHTTPURL(c.LoginURL) {
		invalid = append(invalid, "login_url")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		invalid = append(invalid, "session_cookie_name")
	}
	if c.PollInterval <= 0 {
		invalid = append(invalid, "poll_interval")
	}
	if c.SearchDebounce <= 0 {
		invalid = append(invalid, "search_debounce")
	}
	if c.RequestTimeout <= 0 {
		invalid = append(invalid, "request_timeout")
	}
	if c.QuoteCacheTTL <= 0 {
		invalid = append(invalid, "quote_cache_ttl")
	}
	if c.RequestsPerSecond < 0 {
		invalid = append(invalid, "requests_per_second")
	}
	if c.SearchRequestsPerSecond < 0 {
		invalid = append(invalid, "search_requests_per_second")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
