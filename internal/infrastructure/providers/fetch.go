// Package providers holds the shared HTTP plumbing of the live knowledge
// providers. Each provider lives in its own subpackage.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxText   = 10000
	DefaultUserAgent = "KnowledgeService/1.0 (+https://github.com/kbretrieval/knowledge-service)"

	maxBodyBytes = 8 << 20
)

type Options struct {
	Timeout    time.Duration
	MaxText    int
	RPS        float64
	UserAgent  string
	Executor   *resilience.Executor
	HTTPClient *http.Client

	// RetryStatuses are retried on top of the statuses ClassifyHTTP retries.
	RetryStatuses []int
}

// Fetcher issues throttled GET requests on behalf of one provider. Every
// request goes through the resilience executor under "<service>.<operation>".
type Fetcher struct {
	service   string
	client    *http.Client
	userAgent string
	executor  *resilience.Executor
	limiter   *rate.Limiter
	timeout   time.Duration
	maxText   int
	retryOn   []int
}

func NewFetcher(service string, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxText <= 0 {
		opts.MaxText = DefaultMaxText
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Fetcher{
		service:   service,
		client:    client,
		userAgent: opts.UserAgent,
		executor:  opts.Executor,
		limiter:   rate.NewLimiter(limit, 1),
		timeout:   opts.Timeout,
		maxText:   opts.MaxText,
		retryOn:   opts.RetryStatuses,
	}
}

func (f *Fetcher) Service() string { return f.service }

func (f *Fetcher) MaxText() int { return f.maxText }

func (f *Fetcher) HTTPClient() *http.Client { return f.client }

func (f *Fetcher) UserAgent() string { return f.userAgent }

// Bound caps ctx with the provider timeout. One lookup may issue several
// requests; they share this deadline.
func (f *Fetcher) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.timeout)
}

// Do runs fn through the executor after waiting for the rate limiter.
func (f *Fetcher) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	return f.executor.Execute(ctx, f.service+"."+operation, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	}, f.classify)
}

func (f *Fetcher) classify(err error) resilience.ErrorClassification {
	class := resilience.ClassifyHTTP(err)
	var statusErr *resilience.HTTPStatusError
	if !class.Retryable && errors.As(err, &statusErr) && slices.Contains(f.retryOn, statusErr.StatusCode) {
		class.Retryable = true
	}
	return class
}

func (f *Fetcher) GetJSON(ctx context.Context, operation, endpoint string, query url.Values, out any) error {
	body, err := f.GetBody(ctx, operation, endpoint, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", f.service, operation, err)
	}
	return nil
}

func (f *Fetcher) GetBody(ctx context.Context, operation, endpoint string, query url.Values) ([]byte, error) {
	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body []byte
	err := f.Do(ctx, operation, func(ctx context.Context) error {
		b, err := f.get(ctx, operation, target)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

func (f *Fetcher) get(ctx context.Context, operation, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", f.service, operation, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, application/atom+xml, text/html;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s request: %w", f.service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    f.service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", f.service, operation, err)
	}
	return body, nil
}
