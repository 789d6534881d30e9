package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-crawler/internal/config"
	"github.com/sells-group/shelf-crawler/internal/fetcher"
	"github.com/sells-group/shelf-crawler/internal/rules"
	"github.com/sells-group/shelf-crawler/internal/store"
)

// initStore opens the configured store and applies the schema.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initRegistry returns the built-in rule sets merged with the configured
// rules file, if any.
func initRegistry(c *config.Config) (*rules.Registry, error) {
	return rules.Load(c.Crawl.RulesFile)
}

func newFetcher(c config.CrawlConfig) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.FetchTimeoutSecs) * time.Second,
		MaxRetries:        c.MaxRetries,
		RetryBackoff:      time.Duration(c.RetryBackoffMs) * time.Millisecond,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		RespectRobots:     c.RespectRobots,
		BreakerThreshold:  c.BreakerThreshold,
		BreakerCooldown:   time.Duration(c.BreakerCooldownSecs) * time.Second,
	})
}
