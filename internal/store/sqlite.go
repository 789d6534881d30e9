package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shelf-crawler/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It holds a single
// connection, so ingests are serialized.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// sqliteTimeLayout is fixed width so timestamps order lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS retailers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT,
	image_url   TEXT,
	product_url TEXT NOT NULL UNIQUE,
	description TEXT,
	category_id INTEGER NOT NULL REFERENCES categories(id),
	retailer_id INTEGER NOT NULL REFERENCES retailers(id),
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prices (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id),
	price      REAL NOT NULL CHECK (price >= 0),
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prices_product_created ON prices(product_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS crawl_runs (
	id             TEXT PRIMARY KEY,
	retailers      TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	finished_at    TEXT,
	listing_pages  INTEGER NOT NULL DEFAULT 0,
	detail_pages   INTEGER NOT NULL DEFAULT 0,
	records        INTEGER NOT NULL DEFAULT 0,
	ingested       INTEGER NOT NULL DEFAULT 0,
	fetch_errors   INTEGER NOT NULL DEFAULT 0,
	ingest_errors  INTEGER NOT NULL DEFAULT 0,
	prices_skipped INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_started_at ON crawl_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ingest writes rec in one transaction. See PostgresStore.Ingest.
func (s *SQLiteStore) Ingest(ctx context.Context, rec model.Record) (*model.Outcome, error) {
	row, err := prepare(rec, s.now())
	if err != nil {
		return nil, err
	}
	at := formatTime(row.observedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var out model.Outcome
	if out.RetailerID, err = sqliteResolveName(ctx, tx, "retailers", row.retailer, at); err != nil {
		return nil, err
	}
	if out.CategoryID, err = sqliteResolveName(ctx, tx, "categories", row.category, at); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `SELECT id FROM products WHERE product_url = ?`, row.productURL).Scan(&out.ProductID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET name = ?, image_url = ?, description = ?, category_id = ?, retailer_id = ?
			 WHERE id = ?`,
			row.name, row.imageURL, row.description, out.CategoryID, out.RetailerID, out.ProductID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update product %s", row.productURL)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO products (name, image_url, product_url, description, category_id, retailer_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			row.name, row.imageURL, row.productURL, row.description, out.CategoryID, out.RetailerID, at,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert product %s", row.productURL)
		}
		if out.ProductID, err = res.LastInsertId(); err != nil {
			return nil, eris.Wrap(err, "sqlite: product id")
		}
		out.ProductInserted = true
	default:
		return nil, eris.Wrapf(err, "sqlite: select product %s", row.productURL)
	}

	if row.price != nil {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO prices (product_id, price, created_at) VALUES (?, ?, ?)`,
			out.ProductID, *row.price, at,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert price for %s", row.productURL)
		}
		if out.PriceID, err = res.LastInsertId(); err != nil {
			return nil, eris.Wrap(err, "sqlite: price id")
		}
		out.PriceRecorded = true
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit tx")
	}
	return &out, nil
}

func sqliteResolveName(ctx context.Context, tx *sql.Tx, table, name, at string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, table), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, eris.Wrapf(err, "sqlite: select %s %q", table, name)
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (name, created_at) VALUES (?, ?)`, table), name, at)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert %s %q", table, name)
	}
	id, err = res.LastInsertId()
	return id, eris.Wrapf(err, "sqlite: %s id", table)
}

const sqliteCurrentPriceSelect = `SELECT p.id, COALESCE(p.name, ''), p.product_url, r.name, c.name, pr.price, pr.created_at
FROM products p
JOIN retailers r ON r.id = p.retailer_id
JOIN categories c ON c.id = p.category_id
JOIN prices pr ON pr.id = (
	SELECT id FROM prices WHERE product_id = p.id ORDER BY created_at DESC, id DESC LIMIT 1
)`

func (s *SQLiteStore) CurrentPrice(ctx context.Context, productURL string) (*model.CurrentPrice, error) {
	row := s.db.QueryRowContext(ctx, sqliteCurrentPriceSelect+` WHERE p.product_url = ?`, productURL)
	cp, err := scanCurrentPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: current price %s", productURL)
	}
	return cp, nil
}

func (s *SQLiteStore) ListCurrentPrices(ctx context.Context, filter PriceFilter) ([]model.CurrentPrice, error) {
	query := sqliteCurrentPriceSelect + ` WHERE 1=1`
	args := []any{}
	if filter.Retailer != "" {
		query += ` AND r.name = ?`
		args = append(args, filter.Retailer)
	}
	query += ` ORDER BY r.name, p.product_url LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list current prices")
	}
	defer rows.Close() //nolint:errcheck

	var prices []model.CurrentPrice
	for rows.Next() {
		cp, err := scanCurrentPrice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan current price")
		}
		prices = append(prices, *cp)
	}
	return prices, eris.Wrap(rows.Err(), "sqlite: list current prices iterate")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run model.CrawlRun) error {
	retailersJSON, err := json.Marshal(run.Retailers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run retailers")
	}
	var finished *string
	if !run.FinishedAt.IsZero() {
		f := formatTime(run.FinishedAt)
		finished = &f
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawl_runs
		 (id, retailers, status, started_at, finished_at, listing_pages, detail_pages, records,
		  ingested, fetch_errors, ingest_errors, prices_skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status, finished_at = excluded.finished_at,
		   listing_pages = excluded.listing_pages, detail_pages = excluded.detail_pages,
		   records = excluded.records, ingested = excluded.ingested,
		   fetch_errors = excluded.fetch_errors, ingest_errors = excluded.ingest_errors,
		   prices_skipped = excluded.prices_skipped`,
		run.ID, string(retailersJSON), string(run.Status), formatTime(run.StartedAt), finished,
		run.ListingPages, run.DetailPages, run.Records,
		run.Ingested, run.FetchErrors, run.IngestErrors, run.PricesSkipped,
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.CrawlRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, retailers, status, started_at, finished_at, listing_pages, detail_pages, records,
		        ingested, fetch_errors, ingest_errors, prices_skipped
		 FROM crawl_runs ORDER BY started_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.CrawlRun
	for rows.Next() {
		var r model.CrawlRun
		var retailersJSON, started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &retailersJSON, &r.Status, &started, &finished,
			&r.ListingPages, &r.DetailPages, &r.Records,
			&r.Ingested, &r.FetchErrors, &r.IngestErrors, &r.PricesSkipped); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			if r.FinishedAt, err = parseTime(finished.String); err != nil {
				return nil, err
			}
		}
		if err := json.Unmarshal([]byte(retailersJSON), &r.Retailers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run retailers")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCurrentPrice(row scannable) (*model.CurrentPrice, error) {
	var cp model.CurrentPrice
	var observed string
	if err := row.Scan(&cp.ProductID, &cp.ProductName, &cp.ProductURL, &cp.Retailer, &cp.Category, &cp.Price, &observed); err != nil {
		return nil, err
	}
	t, err := parseTime(observed)
	if err != nil {
		return nil, err
	}
	cp.ObservedAt = t
	return &cp, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}
