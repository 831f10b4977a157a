package fetch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/sourcewatch/internal/secret"
)

const (
	// DefaultTimeout bounds a single fetch. Timed-out sources are retried on
	// the next scheduled poll, never immediately.
	DefaultTimeout = 10 * time.Second

	// DefaultSheetsAPIURL is the spreadsheet values API base.
	DefaultSheetsAPIURL = "https://sheets.googleapis.com/v4/spreadsheets"

	// DefaultSheetRange is used when a sheet source declares no range.
	DefaultSheetRange = "Sheet1!A1:Z1000"
)

// Client fetches source payloads over HTTP.
type Client struct {
	httpClient   *http.Client
	secrets      secret.Resolver
	sheetsAPIURL string
	timeout      time.Duration
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a fetch client. secrets may be nil when no source
// declares a secret reference.
func NewClient(secrets secret.Resolver, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{},
		secrets:      secrets,
		sheetsAPIURL: DefaultSheetsAPIURL,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSheetsAPIURL overrides the spreadsheet values API base.
func WithSheetsAPIURL(u string) ClientOption {
	return func(c *Client) {
		c.sheetsAPIURL = u
	}
}
