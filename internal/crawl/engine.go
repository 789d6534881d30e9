package crawl

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/rules"
)

const defaultMaxConcurrency = 8

// PageKind distinguishes listing pages from product detail pages.
type PageKind int

const (
	// ListingPage links to detail pages and further listing pages.
	ListingPage PageKind = iota
	// DetailPage describes a single product.
	DetailPage
)

func (k PageKind) String() string {
	if k == DetailPage {
		return "detail"
	}
	return "listing"
}

// Target is a URL scheduled for fetching.
type Target struct {
	URL  string
	Kind PageKind
}

// Options tunes an Engine.
type Options struct {
	MaxConcurrency int              // concurrent fetches; defaults to 8
	MaxPages       int              // cap on scheduled URLs per run; 0 means unlimited
	ExcludePaths   []string         // path globs never scheduled, e.g. "/cart/*"
	Now            func() time.Time // scrape timestamp source; defaults to time.Now
}

// Engine crawls retailers and hands extracted records to a Sink. An Engine
// runs one crawl at a time.
type Engine struct {
	fetcher  Fetcher
	registry *rules.Registry
	sink     Sink
	opts     Options
	sem      *semaphore.Weighted
	exclude  *PathMatcher
	visited  *VisitedSet
	counters *counters
	log      *zap.Logger
}

// NewEngine creates a crawl engine.
func NewEngine(f Fetcher, reg *rules.Registry, sink Sink, opts Options) *Engine {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		fetcher:  f,
		registry: reg,
		sink:     sink,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		exclude:  NewPathMatcher(opts.ExcludePaths),
		visited:  NewVisitedSet(),
		counters: &counters{},
		log:      zap.L().With(zap.String("component", "crawl.engine")),
	}
}

// Run crawls the named retailers, or every registered retailer when none
// are named, and returns once all discovered pages have been processed. An
// unknown retailer fails before anything is fetched. Page and ingest
// failures are logged and counted, never returned; the only error after
// start-up is context cancellation.
func (e *Engine) Run(ctx context.Context, retailers []string) (Stats, error) {
	sets, err := e.registry.Select(retailers)
	if err != nil {
		return Stats{}, err
	}

	e.visited = NewVisitedSet()
	e.counters = &counters{}

	start := time.Now()
	e.log.Info("crawl starting", zap.Int("retailers", len(sets)))

	g, gctx := errgroup.WithContext(ctx)
	var spawn func(rs *rules.RuleSet, t Target)
	spawn = func(rs *rules.RuleSet, t Target) {
		g.Go(func() error {
			next, err := e.process(gctx, rs, t)
			if err != nil {
				return err
			}
			for _, n := range next {
				spawn(rs, n)
			}
			return nil
		})
	}

	for _, rs := range sets {
		if e.schedule(rs.SeedURL()) {
			spawn(rs, Target{URL: rs.SeedURL(), Kind: ListingPage})
		}
	}

	err = g.Wait()
	stats := e.counters.snapshot()
	e.log.Info("crawl finished",
		zap.Int64("listing_pages", stats.ListingPages),
		zap.Int64("detail_pages", stats.DetailPages),
		zap.Int64("records", stats.Records),
		zap.Int64("ingested", stats.Ingested),
		zap.Int64("fetch_errors", stats.FetchErrors),
		zap.Int64("ingest_errors", stats.IngestErrors),
		zap.Int64("prices_skipped", stats.PricesSkipped),
		zap.Int64("capped", stats.Capped),
		zap.Int64("excluded", stats.Excluded),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

// Visited returns the visited-set of the current or most recent run.
func (e *Engine) Visited() *VisitedSet { return e.visited }

// schedule marks u visited and reports whether it should be fetched.
func (e *Engine) schedule(u string) bool {
	if e.exclude.IsExcluded(u) {
		e.counters.excluded.Add(1)
		return false
	}
	added, capped := e.visited.AddBounded(u, e.opts.MaxPages)
	if capped {
		e.counters.capped.Add(1)
		e.log.Debug("page cap reached, not scheduling", zap.String("url", u))
	}
	return added
}

// process fetches one target and returns the targets it discovered.
func (e *Engine) process(ctx context.Context, rs *rules.RuleSet, t Target) ([]Target, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	doc, err := e.fetcher.Fetch(ctx, t.URL)
	e.sem.Release(1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.counters.fetchErrors.Add(1)
		e.log.Warn("fetch failed, skipping page",
			zap.String("retailer", rs.Name()),
			zap.String("kind", t.Kind.String()),
			zap.String("url", t.URL),
			zap.Error(err),
		)
		return nil, nil
	}

	if t.Kind == ListingPage {
		e.counters.listingPages.Add(1)
		return e.Discover(rs, doc), nil
	}

	e.counters.detailPages.Add(1)
	rec := e.ExtractDetail(rs, doc, e.opts.Now().UTC())
	e.ingest(ctx, rec)
	return nil, nil
}

// Discover schedules the unseen product links and pagination links on a
// listing page and returns them. Each product container contributes its
// first product link. A page with neither ends that branch.
func (e *Engine) Discover(rs *rules.RuleSet, doc Document) []Target {
	var out []Target

	for _, container := range firstScope(doc, rs.Rules(model.FieldProductContainer)) {
		href, ok := firstValue(container, rs.Rules(model.FieldProductURL))
		if !ok {
			continue
		}
		abs, ok := doc.Resolve(href)
		if !ok {
			continue
		}
		if e.schedule(abs) {
			out = append(out, Target{URL: abs, Kind: DetailPage})
		}
	}

	for _, r := range rs.Rules(model.FieldPagination) {
		for _, href := range doc.Values(r) {
			abs, ok := doc.Resolve(href)
			if !ok {
				continue
			}
			if e.schedule(abs) {
				out = append(out, Target{URL: abs, Kind: ListingPage})
			}
		}
	}

	e.log.Debug("listing discovered",
		zap.String("retailer", rs.Name()),
		zap.String("url", doc.URL()),
		zap.Int("scheduled", len(out)),
	)
	return out
}

func (e *Engine) ingest(ctx context.Context, rec model.Record) {
	e.counters.records.Add(1)
	log := e.log.With(zap.String("retailer", rec.Retailer))
	if rec.ProductURL != nil {
		log = log.With(zap.String("product_url", *rec.ProductURL))
	}

	out, err := e.sink.Ingest(ctx, rec)
	if err != nil {
		e.counters.ingestErrors.Add(1)
		log.Error("ingest failed", zap.Error(err))
		return
	}
	e.counters.ingested.Add(1)
	if out != nil && !out.PriceRecorded {
		e.counters.pricesSkipped.Add(1)
		log.Warn("no usable price, product stored without price row")
	}
}

// firstScope returns the containers matched by the first container rule
// that matches anything.
func firstScope(doc Document, rs []rules.Rule) []Document {
	for _, r := range rs {
		if scoped := doc.Scope(r.Selector); len(scoped) > 0 {
			return scoped
		}
	}
	return nil
}

// firstValue returns the first non-empty value across rules, in rule order.
func firstValue(doc Document, rs []rules.Rule) (string, bool) {
	for _, r := range rs {
		if vals := doc.Values(r); len(vals) > 0 {
			return vals[0], true
		}
	}
	return "", false
}
