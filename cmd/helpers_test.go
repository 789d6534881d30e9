package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-crawler/internal/crawl"
	"github.com/sells-group/shelf-crawler/internal/fetcher"
	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/rules"
	"github.com/sells-group/shelf-crawler/internal/store"
)

// newTestShop serves a one-page listing. The linked product exists unless
// missing is set.
func newTestShop(t *testing.T, missing bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/shop/all", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<div class="item"><a class="link" href="/shop/pantry/rice-2kg">Rice</a></div>
		</body></html>`))
	})
	if !missing {
		mux.HandleFunc("/shop/pantry/rice-2kg", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html><body>
				<h1 class="name">Rice 2kg</h1>
				<span class="now">R 54.50</span>
			</body></html>`))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRegistry(t *testing.T, seed string) *rules.Registry {
	t.Helper()
	reg := rules.NewRegistry()
	require.NoError(t, reg.Register(rules.MustNew(rules.Spec{
		Name:             "testshop",
		SeedURL:          seed,
		CategoryStrategy: rules.CategoryURLPath,
		Fields: map[string][]string{
			model.FieldProductName:        {"h1.name::text"},
			model.FieldPrice:              {"span.now::text"},
			model.FieldImageURL:           {"img.hero::attr(src)"},
			model.FieldProductURL:         {"a.link::attr(href)"},
			model.FieldProductDescription: {"div.desc p::text"},
			model.FieldPagination:         {"a.next::attr(href)"},
			model.FieldProductContainer:   {"div.item"},
		},
	})))
	return reg
}

func newTestEngine(reg *rules.Registry, sink crawl.Sink) *crawl.Engine {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:           5 * time.Second,
		MaxRetries:        -1,
		RequestsPerSecond: 1000,
		Burst:             100,
	})
	return crawl.NewEngine(f, reg, sink, crawl.Options{MaxConcurrency: 2})
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "shelf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// recordedRuns captures every RecordRun call.
type recordedRuns struct {
	mu   sync.Mutex
	runs []model.CrawlRun
}

func (r *recordedRuns) RecordRun(_ context.Context, run model.CrawlRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *recordedRuns) last() model.CrawlRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[len(r.runs)-1]
}
