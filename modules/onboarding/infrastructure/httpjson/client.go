// Package httpjson is the retrying JSON-over-HTTP client shared by the
// directory and source adapters.
package httpjson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/logging"
)

const maxErrorBody = 512

type Options struct {
	BaseURL    string
	Header     http.Header
	Timeout    time.Duration
	MaxRetries uint64
	// RPS caps outgoing requests per second; zero disables the limiter.
	RPS float64
	// InitialInterval is the first retry delay; zero uses the backoff default.
	InitialInterval time.Duration
	HTTPClient      *http.Client
	Logger          *logrus.Entry
}

type Client struct {
	base            *url.URL
	header          http.Header
	http            *http.Client
	limiter         *rate.Limiter
	maxRetries      uint64
	initialInterval time.Duration
	log             *logrus.Entry
}

// StatusError is a non-2xx response other than 404.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.URL, e.Status, e.Body)
}

// Retriable reports whether the server may answer differently later.
func (e *StatusError) Retriable() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid base url: %q", raw)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		base:            u,
		header:          opts.Header.Clone(),
		http:            hc,
		limiter:         limiter,
		maxRetries:      opts.MaxRetries,
		initialInterval: opts.InitialInterval,
		log:             log,
	}, nil
}

// Get decodes the JSON body of GET path into out. A 404 returns
// entity.ErrNotFound. Transport failures, 5xx and 429 are retried with
// exponential backoff; the last failure is returned once retries run out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	op := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		return c.do(ctx, target, out)
	}
	notify := func(err error, next time.Duration) {
		c.log.WithError(err).WithFields(logrus.Fields{"url": target, "retry_in": next}).Warn("http request failed; retrying")
	}
	return backoff.RetryNotify(op, c.policy(ctx), notify)
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if c.initialInterval > 0 {
		exp.InitialInterval = c.initialInterval
		exp.MaxInterval = 10 * c.initialInterval
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)
}

func (c *Client) do(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "http request"))
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return errors.Wrap(err, "http do")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "http read")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(entity.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		serr := &StatusError{
			Method: http.MethodGet,
			URL:    target,
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
		if !serr.Retriable() {
			return backoff.Permanent(serr)
		}
		return serr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(errors.Wrap(err, "json unmarshal response"))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
