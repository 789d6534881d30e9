// Package store persists normalized product records. Each ingest resolves
// the retailer and category dimensions, upserts the product by URL and
// appends a price observation inside one transaction.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/normalize"
)

var (
	// ErrMissingProductURL rejects records without the product natural key.
	ErrMissingProductURL = eris.New("store: record has no product url")
	// ErrMissingRetailer rejects records without a retailer name.
	ErrMissingRetailer = eris.New("store: record has no retailer")
)

// PriceFilter narrows ListCurrentPrices.
type PriceFilter struct {
	Retailer string `json:"retailer,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for crawled products.
type Store interface {
	// Ingest writes one record atomically. It satisfies crawl.Sink.
	Ingest(ctx context.Context, rec model.Record) (*model.Outcome, error)

	// CurrentPrice returns the latest price for productURL, or nil when the
	// product is unknown or has never been priced.
	CurrentPrice(ctx context.Context, productURL string) (*model.CurrentPrice, error)
	ListCurrentPrices(ctx context.Context, filter PriceFilter) ([]model.CurrentPrice, error)

	// Runs
	RecordRun(ctx context.Context, run model.CrawlRun) error
	ListRuns(ctx context.Context, limit int) ([]model.CrawlRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ingestRow is a validated record flattened to column values.
type ingestRow struct {
	retailer    string
	category    string
	name        *string
	imageURL    *string
	productURL  string
	description *string
	price       *float64
	observedAt  time.Time
}

func prepare(rec model.Record, now time.Time) (ingestRow, error) {
	if rec.ProductURL == nil || *rec.ProductURL == "" {
		return ingestRow{}, ErrMissingProductURL
	}
	if rec.Retailer == "" {
		return ingestRow{}, ErrMissingRetailer
	}
	category := rec.Category
	if category == "" {
		category = normalize.UnknownCategory
	}
	observed := rec.ScrapedAt
	if observed.IsZero() {
		observed = now
	}
	return ingestRow{
		retailer:    rec.Retailer,
		category:    category,
		name:        rec.ProductName,
		imageURL:    rec.ImageURL,
		productURL:  *rec.ProductURL,
		description: rec.ProductDescription,
		price:       rec.Price,
		observedAt:  observed.UTC(),
	}, nil
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
