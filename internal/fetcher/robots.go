package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsCache fetches robots.txt once per origin and answers whether a
// path may be crawled by the configured user agent. A 4xx robots.txt
// allows everything and a 5xx disallows everything. An origin whose
// robots.txt could not be reached is allowed for that request and asked
// again on the next one; only real responses are cached.
type robotsCache struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	sites map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *http.Client, agent string) *robotsCache {
	return &robotsCache{
		client: client,
		agent:  agent,
		sites:  make(map[string]*robotstxt.RobotsData),
	}
}

func (c *robotsCache) allowed(ctx context.Context, u *url.URL) bool {
	data := c.site(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, c.agent)
}

func (c *robotsCache) site(ctx context.Context, origin string) *robotstxt.RobotsData {
	c.mu.Lock()
	data, ok := c.sites[origin]
	c.mu.Unlock()
	if ok {
		return data
	}

	data, ok = c.fetch(ctx, origin)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sites[origin]; ok {
		return existing
	}
	c.sites[origin] = data
	return data
}

// fetch reports ok=false when no response was received, so the caller
// does not cache the outcome.
func (c *robotsCache) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, bool) {
	log := zap.L().With(zap.String("component", "fetcher.robots"), zap.String("origin", origin))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", c.agent)
	resp, err := c.client.Do(req)
	if err != nil {
		log.Debug("robots.txt unreachable, will retry", zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		log.Debug("robots.txt unparseable, allowing all", zap.Error(err))
		return nil, true
	}
	return data, true
}
