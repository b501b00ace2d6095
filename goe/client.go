package goe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"hemtjan.st/meter2car/metrics"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrInvalidStatus = Err("invalid charger status")

	DefaultMinAmpere = 6
	DefaultMaxAmpere = 14

	maxBodySize = 1 << 20
)

// RequestError is returned when the charger answers with a non-2xx status.
type RequestError struct {
	URL        string
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("charger request %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client talks to the local HTTP API of a go-e charger.
type Client struct {
	base      *url.URL
	http      *http.Client
	log       *zap.Logger
	metrics   *metrics.AppMetrics
	minAmpere int
	maxAmpere int
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http = &http.Client{Timeout: d}
		}
	}
}

// WithAmpereRange sets the range SetAmpere clamps to.
func WithAmpereRange(min, max int) Option {
	return func(cl *Client) {
		cl.minAmpere = min
		cl.maxAmpere = max
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.log = l
	}
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// New creates a client for the charger at baseURL, for example
// http://192.168.1.50.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("charger url %q: unsupported scheme", baseURL)
	}
	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       zap.NewNop(),
		minAmpere: DefaultMinAmpere,
		maxAmpere: DefaultMaxAmpere,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status fetches the current charger status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	body, err := c.get(ctx, c.base.JoinPath("status"))
	if err != nil {
		return nil, err
	}
	return ParseStatus(body)
}

// SetChargingAllowed allows or forbids charging.
func (c *Client) SetChargingAllowed(ctx context.Context, allowed bool) error {
	payload := "alw=0"
	if allowed {
		payload = "alw=1"
	}
	err := c.command(ctx, payload)
	c.metrics.Command("alw", err)
	return err
}

// SetAmpere sets the charging current, clamped to the configured range.
func (c *Client) SetAmpere(ctx context.Context, ampere int) error {
	err := c.command(ctx, fmt.Sprintf("amx=%d", c.Clamp(ampere)))
	c.metrics.Command("amx", err)
	return err
}

// Clamp limits ampere to the range accepted by SetAmpere.
func (c *Client) Clamp(ampere int) int {
	if ampere < c.minAmpere {
		return c.minAmpere
	}
	if ampere > c.maxAmpere {
		return c.maxAmpere
	}
	return ampere
}

func (c *Client) command(ctx context.Context, payload string) error {
	u := c.base.JoinPath("mqtt")
	// The payload is sent verbatim, the charger does not decode '='
	u.RawQuery = "payload=" + payload
	c.log.Debug("command", zap.String("payload", payload))
	_, err := c.get(ctx, u)
	return err
}

func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	return body, nil
}
