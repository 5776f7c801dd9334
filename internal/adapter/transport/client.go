package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hive-corporation/soarbridge/internal/metrics"
)

const defaultResponseBodyLimit int64 = 32 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config is the vendor-specific part of a client: where to go, how to
// authenticate, which statuses count as success and how to read failures.
type Config struct {
	Vendor         string
	BaseURL        string
	Auth           Authorizer
	Classify       Classifier
	Accept         []int
	DefaultHeaders map[string]string
	Breaker        *BreakerConfig
}

// BreakerConfig enables a circuit breaker that trips on consecutive network
// failures or 5xx answers.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// Request describes one vendor call. Path is appended to the base URL and
// may already carry a query string.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	JSON        any
	Form        url.Values
	Body        []byte
	ContentType string
	Header      http.Header
}

// Client issues exactly one HTTP call per Do. It never retries.
type Client struct {
	doer    HTTPDoer
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var errServerFailure = errors.New("vendor server failure")

func New(doer HTTPDoer, cfg Config, logger *slog.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth == nil {
		cfg.Auth = NoAuth
	}
	if cfg.Classify == nil {
		cfg.Classify = DefaultClassifier
	}
	if len(cfg.Accept) == 0 {
		cfg.Accept = []int{http.StatusOK}
	}
	if cfg.DefaultHeaders == nil {
		cfg.DefaultHeaders = map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		}
	}

	var breaker *gobreaker.CircuitBreaker
	if cfg.Breaker != nil && cfg.Breaker.MaxFailures > 0 {
		maxFailures := cfg.Breaker.MaxFailures
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Vendor,
			MaxRequests: 1,
			Interval:    0, // Don't reset counts automatically
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("circuit breaker changed state", "vendor", name, "from", from.String(), "to", to.String())
			},
		})
	}

	return &Client{
		doer:    doer,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger.With("vendor", cfg.Vendor),
	}
}

// Do performs the call and classifies any status outside the accepted set.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.Raw(ctx, req)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(c.cfg.Accept, resp.StatusCode) {
		return resp, c.cfg.Classify(c.cfg.Vendor, resp)
	}
	return resp, nil
}

// Raw performs the call and returns the response whatever its status.
func (c *Client) Raw(ctx context.Context, req Request) (*Response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, req)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFailure
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w", c.cfg.Vendor, ErrCircuitOpen)
	case errors.Is(err, errServerFailure):
		return result.(*Response), nil
	case err != nil:
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.cfg.Vendor, err)
	}
	for k, v := range c.cfg.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, values := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if err := c.cfg.Auth.Authorize(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("failed to authorize %s request: %w", c.cfg.Vendor, err)
	}

	timer := metrics.StartTimer()
	httpResp, err := c.doer.Do(httpReq)
	if err != nil {
		metrics.RecordVendorRequest(c.cfg.Vendor, 0, timer.Elapsed())
		c.logger.Debug("vendor call failed", "method", method, "path", httpReq.URL.Path, "error", err)
		return nil, fmt.Errorf("failed to call %s: %w", c.cfg.Vendor, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, defaultResponseBodyLimit))
	metrics.RecordVendorRequest(c.cfg.Vendor, httpResp.StatusCode, timer.Elapsed())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.cfg.Vendor, err)
	}

	c.logger.Debug("vendor call",
		"method", method,
		"path", httpReq.URL.Path,
		"status", httpResp.StatusCode,
		"duration", timer.Elapsed(),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func (c *Client) resolve(req Request) (string, error) {
	target := strings.TrimRight(c.cfg.BaseURL, "/") + req.Path
	if len(req.Query) == 0 {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid %s url %q: %w", c.cfg.Vendor, target, err)
	}
	q := u.Query()
	for k, values := range req.Query {
		for _, v := range values {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func encodeBody(req Request) (io.Reader, string, error) {
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	case req.Form != nil:
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.Body != nil:
		return bytes.NewReader(req.Body), req.ContentType, nil
	default:
		return nil, "", nil
	}
}

// NewHTTPClient returns the client shared by every vendor. verifySSL is the
// platform-wide "verify SSL" toggle.
func NewHTTPClient(verifySSL bool, timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !verifySSL {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-out
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
}

// Shared carries what every vendor client of one process has in common.
type Shared struct {
	Doer    HTTPDoer
	Logger  *slog.Logger
	Breaker *BreakerConfig
}

// Client builds a vendor client, applying the shared breaker unless cfg
// brings its own.
func (s Shared) Client(cfg Config) *Client {
	if cfg.Breaker == nil {
		cfg.Breaker = s.Breaker
	}
	return New(s.Doer, cfg, s.Logger)
}
