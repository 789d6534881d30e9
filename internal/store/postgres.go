package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-crawler/internal/db"
	"github.com/sells-group/shelf-crawler/internal/model"
)

// PostgresStore implements Store using pgxpool. Each ingest runs in its own
// transaction on a pooled connection; the unique constraints on
// retailers.name, categories.name and products.product_url settle
// concurrent writers.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS retailers (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categories (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT,
	image_url   TEXT,
	product_url TEXT NOT NULL UNIQUE,
	description TEXT,
	category_id BIGINT NOT NULL REFERENCES categories(id),
	retailer_id BIGINT NOT NULL REFERENCES retailers(id),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prices (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id),
	price      NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_products_retailer_id ON products(retailer_id);
CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id);
CREATE INDEX IF NOT EXISTS idx_prices_product_created ON prices(product_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS crawl_runs (
	id             TEXT PRIMARY KEY,
	retailers      JSONB NOT NULL,
	status         TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ,
	listing_pages  BIGINT NOT NULL DEFAULT 0,
	detail_pages   BIGINT NOT NULL DEFAULT 0,
	records        BIGINT NOT NULL DEFAULT 0,
	ingested       BIGINT NOT NULL DEFAULT 0,
	fetch_errors   BIGINT NOT NULL DEFAULT 0,
	ingest_errors  BIGINT NOT NULL DEFAULT 0,
	prices_skipped BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_started_at ON crawl_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Ingest resolves the retailer and category, upserts the product by URL and
// appends a price row, all in one transaction. A record without a price
// still writes the product; Outcome.PriceRecorded reports the difference.
func (s *PostgresStore) Ingest(ctx context.Context, rec model.Record) (*model.Outcome, error) {
	row, err := prepare(rec, s.now())
	if err != nil {
		return nil, err
	}

	var out model.Outcome
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if out.RetailerID, err = pgResolveName(ctx, tx, "retailers", row.retailer, row.observedAt); err != nil {
			return err
		}
		if out.CategoryID, err = pgResolveName(ctx, tx, "categories", row.category, row.observedAt); err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO products (name, image_url, product_url, description, category_id, retailer_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (product_url) DO UPDATE SET
			   name = EXCLUDED.name, image_url = EXCLUDED.image_url, description = EXCLUDED.description,
			   category_id = EXCLUDED.category_id, retailer_id = EXCLUDED.retailer_id
			 RETURNING id, (xmax = 0)`,
			row.name, row.imageURL, row.productURL, row.description, out.CategoryID, out.RetailerID, row.observedAt,
		).Scan(&out.ProductID, &out.ProductInserted)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert product %s", row.productURL)
		}

		if row.price == nil {
			return nil
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO prices (product_id, price, created_at) VALUES ($1, $2, $3) RETURNING id`,
			out.ProductID, *row.price, row.observedAt,
		).Scan(&out.PriceID)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert price for %s", row.productURL)
		}
		out.PriceRecorded = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// pgResolveName returns the id of the row in table with the given name,
// creating it when absent. table is one of the fixed dimension tables.
func pgResolveName(ctx context.Context, tx pgx.Tx, table, name string, at time.Time) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name = $1`, table), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, eris.Wrapf(err, "postgres: select %s %q", table, name)
	}

	err = tx.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, created_at) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, table),
		name, at,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert %s %q", table, name)
	}
	return id, nil
}

const pgCurrentPriceSelect = `SELECT p.id, COALESCE(p.name, ''), p.product_url, r.name, c.name, pr.price::float8, pr.created_at
FROM products p
JOIN retailers r ON r.id = p.retailer_id
JOIN categories c ON c.id = p.category_id
JOIN prices pr ON pr.id = (
	SELECT id FROM prices WHERE product_id = p.id ORDER BY created_at DESC, id DESC LIMIT 1
)`

func (s *PostgresStore) CurrentPrice(ctx context.Context, productURL string) (*model.CurrentPrice, error) {
	var cp model.CurrentPrice
	err := s.pool.QueryRow(ctx, pgCurrentPriceSelect+` WHERE p.product_url = $1`, productURL).
		Scan(&cp.ProductID, &cp.ProductName, &cp.ProductURL, &cp.Retailer, &cp.Category, &cp.Price, &cp.ObservedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: current price %s", productURL)
	}
	return &cp, nil
}

func (s *PostgresStore) ListCurrentPrices(ctx context.Context, filter PriceFilter) ([]model.CurrentPrice, error) {
	query := pgCurrentPriceSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Retailer != "" {
		query += fmt.Sprintf(` AND r.name = $%d`, argIdx)
		args = append(args, filter.Retailer)
		argIdx++
	}
	query += ` ORDER BY r.name, p.product_url`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list current prices")
	}
	defer rows.Close()

	var prices []model.CurrentPrice
	for rows.Next() {
		var cp model.CurrentPrice
		if err := rows.Scan(&cp.ProductID, &cp.ProductName, &cp.ProductURL, &cp.Retailer, &cp.Category, &cp.Price, &cp.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan current price")
		}
		prices = append(prices, cp)
	}
	return prices, eris.Wrap(rows.Err(), "postgres: list current prices iterate")
}

func (s *PostgresStore) RecordRun(ctx context.Context, run model.CrawlRun) error {
	retailersJSON, err := json.Marshal(run.Retailers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run retailers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawl_runs
		 (id, retailers, status, started_at, finished_at, listing_pages, detail_pages, records,
		  ingested, fetch_errors, ingest_errors, prices_skipped)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   status = $3, finished_at = $5, listing_pages = $6, detail_pages = $7, records = $8,
		   ingested = $9, fetch_errors = $10, ingest_errors = $11, prices_skipped = $12`,
		run.ID, retailersJSON, string(run.Status), run.StartedAt.UTC(), nullTime(run.FinishedAt),
		run.ListingPages, run.DetailPages, run.Records,
		run.Ingested, run.FetchErrors, run.IngestErrors, run.PricesSkipped,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.CrawlRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, retailers, status, started_at, finished_at, listing_pages, detail_pages, records,
		        ingested, fetch_errors, ingest_errors, prices_skipped
		 FROM crawl_runs ORDER BY started_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.CrawlRun
	for rows.Next() {
		var r model.CrawlRun
		var retailersJSON []byte
		var finished *time.Time
		if err := rows.Scan(&r.ID, &retailersJSON, &r.Status, &r.StartedAt, &finished,
			&r.ListingPages, &r.DetailPages, &r.Records,
			&r.Ingested, &r.FetchErrors, &r.IngestErrors, &r.PricesSkipped); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if finished != nil {
			r.FinishedAt = *finished
		}
		if err := json.Unmarshal(retailersJSON, &r.Retailers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run retailers")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
