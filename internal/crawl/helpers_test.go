package crawl

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/rules"
)

const testSeed = "https://shop.example.com/c/all"

// pageFetcher serves canned HTML by URL and counts fetches.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newPageFetcher(pages map[string]string) *pageFetcher {
	return &pageFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *pageFetcher) Fetch(_ context.Context, u string) (Document, error) {
	f.mu.Lock()
	f.calls[u]++
	body, ok := f.pages[u]
	f.mu.Unlock()
	if !ok {
		return nil, eris.Errorf("status 404 for %s", u)
	}
	return NewHTMLDocument(u, strings.NewReader(body))
}

func (f *pageFetcher) callCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[u]
}

func (f *pageFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// memSink keeps ingested records in memory.
type memSink struct {
	mu      sync.Mutex
	records []model.Record
	failURL string
}

func (s *memSink) Ingest(_ context.Context, rec model.Record) (*model.Outcome, error) {
	if rec.ProductURL != nil && *rec.ProductURL == s.failURL {
		return nil, eris.New("postgres: connection reset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return &model.Outcome{ProductID: int64(len(s.records)), PriceRecorded: rec.Price != nil}, nil
}

func (s *memSink) byURL() map[string]model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Record, len(s.records))
	for _, r := range s.records {
		if r.ProductURL != nil {
			out[*r.ProductURL] = r
		}
	}
	return out
}

func testSpec(name, seed string) rules.Spec {
	return rules.Spec{
		Name:    name,
		SeedURL: seed,
		Fields: map[string][]string{
			model.FieldProductName:        {"h1.name::text"},
			model.FieldPrice:              {"span.now::text", "span.before::text"},
			model.FieldImageURL:           {"img.hero::attr(src)"},
			model.FieldProductURL:         {"a.link::attr(href)"},
			model.FieldProductDescription: {"div.desc p::text"},
			model.FieldPagination:         {"a.next::attr(href)"},
			model.FieldProductContainer:   {"div.item"},
			model.FieldCategory:           {"ol.crumbs li a::text"},
		},
	}
}

func testRegistry(t *testing.T, specs ...rules.Spec) *rules.Registry {
	t.Helper()
	reg := rules.NewRegistry()
	for _, s := range specs {
		rs, err := rules.New(s)
		require.NoError(t, err)
		require.NoError(t, reg.Register(rs))
	}
	return reg
}

func listingHTML(products []string, next ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range products {
		b.WriteString(`<div class="item"><a class="link" href="` + p + `">view</a></div>`)
	}
	for _, n := range next {
		b.WriteString(`<a class="next" href="` + n + `">next</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailHTML(name, price string) string {
	return `<html><body><h1 class="name">` + name + `</h1>` +
		`<div class="price"><span class="now">` + price + `</span></div>` +
		`<img class="hero" src="/img/p.png"></body></html>`
}
