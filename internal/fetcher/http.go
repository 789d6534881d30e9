package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/sells-group/shelf-crawler/internal/crawl"
	"github.com/sells-group/shelf-crawler/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int           // retries after the first attempt; negative disables
	RetryBackoff      time.Duration // delay before the first retry
	RequestsPerSecond float64       // initial per-host rate
	Burst             int
	RespectRobots     bool
	MaxBodyBytes      int64
	BreakerThreshold  int           // consecutive failures that pause a host
	BreakerCooldown   time.Duration // how long a paused host is skipped
}

// HTTPFetcher implements crawl.Fetcher over net/http.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	robots  *robotsCache

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

var _ crawl.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "shelf-crawler/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	retry := resilience.ForFetch(opts.MaxRetries, opts.RetryBackoff)
	retry.OnRetry = resilience.RetryLogger("fetcher", "page")

	f := &HTTPFetcher{
		client:   client,
		opts:     opts,
		retry:    retry,
		limiters: make(map[string]*AdaptiveLimiter),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: opts.BreakerThreshold,
			ResetTimeout:     opts.BreakerCooldown,
			ShouldTrip:       tripsBreaker,
			OnStateChange: func(host string, from, to resilience.CircuitState) {
				zap.L().Warn("host circuit changed",
					zap.String("component", "fetcher"),
					zap.String("host", host),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
	if opts.RespectRobots {
		f.robots = newRobotsCache(client, opts.UserAgent)
	}
	return f
}

// tripsBreaker counts blocks and transient failures against a host. A 404
// says nothing about the host's health.
func tripsBreaker(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked) || resilience.IsTransient(err)
}

// Fetch implements crawl.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (crawl.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %q", rawURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, eris.Errorf("fetcher: unsupported url %q", rawURL)
	}

	if f.robots != nil && !f.robots.allowed(ctx, u) {
		return nil, eris.Wrapf(ErrDisallowed, "fetcher: %s", rawURL)
	}
	if err := f.breaker.Allow(u.Host); err != nil {
		return nil, err
	}

	body, finalURL, err := f.getWithRetry(ctx, u)
	if ctx.Err() == nil {
		f.breaker.Record(u.Host, err)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}

	doc, err := crawl.NewHTMLDocument(finalURL, body)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type page struct {
	body io.Reader
	url  string
}

func (f *HTTPFetcher) getWithRetry(ctx context.Context, u *url.URL) (io.Reader, string, error) {
	p, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (page, error) {
		return f.get(ctx, u)
	})
	return p.body, p.url, err
}

func (f *HTTPFetcher) get(ctx context.Context, u *url.URL) (page, error) {
	lim := f.limiterFor(u.Host)
	if err := lim.Wait(ctx); err != nil {
		return page{}, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return page{}, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return page{}, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if blocked, kind := DetectBlock(resp, raw); blocked {
		return page{}, &BlockedError{URL: u.String(), StatusCode: resp.StatusCode, Type: kind}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return page{}, resilience.NewTransientError(se, resp.StatusCode)
		}
		return page{}, se
	}
	lim.OnSuccess()

	decoded, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return page{}, eris.Wrap(err, "decode body")
	}
	return page{body: decoded, url: resp.Request.URL.String()}, nil
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(host, rate.Limit(f.opts.RequestsPerSecond), f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}
