package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fomcagent/datasync/internal/codec"
	"github.com/fomcagent/datasync/internal/version"
	"github.com/imroc/req/v3"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultDownloadTimeout = 60 * time.Second
)

type RetryPolicy struct {
	MaxTries            uint          `mapstructure:"max_tries"`
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:            3,
		InitialInterval:     time.Second,
		MaxInterval:         60 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.1,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	return b
}

type Config struct {
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	Retry           RetryPolicy   `mapstructure:"retry"`
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.UserAgent == "" {
		out.UserAgent = version.UserAgent()
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.DownloadTimeout <= 0 {
		out.DownloadTimeout = DefaultDownloadTimeout
	}
	if out.Retry.MaxTries == 0 {
		out.Retry = DefaultRetryPolicy()
	}
	return &out
}

// Client performs requests against remote sources with retries
type Client struct {
	http   *req.Client
	config *Config
}

func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg = cfg.withDefaults()

	httpClient := req.C().
		SetUserAgent(cfg.UserAgent).
		SetJsonMarshal(codec.Marshal).
		SetJsonUnmarshal(codec.Unmarshal)

	return &Client{
		http:   httpClient,
		config: cfg,
	}
}

// request is one logical call, retried as a whole
type request struct {
	method  string
	url     string
	body    any
	timeout time.Duration
	decode  func([]byte) error
}

// GetBytes downloads a file body
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, &request{method: http.MethodGet, url: url, timeout: c.config.DownloadTimeout})
}

// GetText fetches a page such as a directory listing
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.do(ctx, &request{method: http.MethodGet, url: url, timeout: c.config.Timeout})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetJSON fetches url and decodes it into v with numbers kept as
// codec.Number. A body that does not decode counts as a failed attempt.
func (c *Client) GetJSON(ctx context.Context, url string, v any) ([]byte, error) {
	return c.do(ctx, &request{
		method:  http.MethodGet,
		url:     url,
		timeout: c.config.Timeout,
		decode:  decodeInto(v),
	})
}

// PostJSON sends payload as a JSON body and decodes the response into v the
// way GetJSON does.
func (c *Client) PostJSON(ctx context.Context, url string, payload, v any) ([]byte, error) {
	return c.do(ctx, &request{
		method:  http.MethodPost,
		url:     url,
		body:    payload,
		timeout: c.config.Timeout,
		decode:  decodeInto(v),
	})
}

func decodeInto(v any) func([]byte) error {
	return func(body []byte) error {
		if err := codec.DecodeNumbers(bytes.NewReader(body), v); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return nil
	}
}

func (c *Client) do(ctx context.Context, r *request) ([]byte, error) {
	policy := c.config.Retry
	attempts := 0

	op := func() ([]byte, error) {
		attempts++
		body, err := c.attempt(ctx, r)
		if err != nil {
			return nil, err
		}
		if r.decode != nil {
			if err := r.decode(body); err != nil {
				return nil, err
			}
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "fetch retry", "method", r.method, "url", r.url, "attempt", attempts, "next", next, "error", err)
		}),
	)
	if err != nil {
		return nil, &Error{URL: r.url, Attempts: attempts, Err: err}
	}
	return body, nil
}

func (c *Client) attempt(ctx context.Context, r *request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	httpReq := c.http.R().SetContext(attemptCtx)
	if r.body != nil {
		httpReq.SetBodyJsonMarshal(r.body)
	}
	resp, err := httpReq.Send(r.method, r.url)
	if err != nil {
		// the caller gave up, do not keep trying
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{
			Method:     r.method,
			URL:        r.url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
		if !httpErr.Retryable() {
			return nil, backoff.Permanent(httpErr)
		}
		if wait, ok := parseRetryAfter(resp.GetHeader("Retry-After"), time.Now()); ok {
			wait = min(wait, c.config.Retry.MaxInterval)
			httpErr.retryAfter = backoff.RetryAfter(int(wait / time.Second))
		}
		return nil, httpErr
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// IsPermanent reports whether err came from a response that retrying will not fix
func IsPermanent(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && !httpErr.Retryable()
}
