package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-crawler/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func countRows(t *testing.T, st *SQLiteStore, table string) int {
	t.Helper()
	var n int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestSQLite_Ingest_NewRecord(t *testing.T) {
	st := newTestSQLiteStore(t)

	out, err := st.Ingest(context.Background(), milkRecord())
	require.NoError(t, err)
	assert.True(t, out.ProductInserted)
	assert.True(t, out.PriceRecorded)
	assert.NotZero(t, out.ProductID)
	assert.NotZero(t, out.PriceID)

	assert.Equal(t, 1, countRows(t, st, "retailers"))
	assert.Equal(t, 1, countRows(t, st, "categories"))
	assert.Equal(t, 1, countRows(t, st, "products"))
	assert.Equal(t, 1, countRows(t, st, "prices"))

	cp, err := st.CurrentPrice(context.Background(), "https://shop.example.com/p/1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, model.CurrentPrice{
		ProductID:   out.ProductID,
		ProductName: "Milk 1L",
		ProductURL:  "https://shop.example.com/p/1",
		Retailer:    "shoprite",
		Category:    "Dairy",
		Price:       19.99,
		ObservedAt:  testNow,
	}, *cp)
}

func TestSQLite_Ingest_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.Ingest(ctx, milkRecord())
	require.NoError(t, err)

	again := milkRecord()
	again.ScrapedAt = testNow.Add(24 * time.Hour)
	again.ProductName = strPtr("Milk 1L Full Cream")
	again.Price = floatPtr(21.49)
	second, err := st.Ingest(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.ProductID, second.ProductID)
	assert.Equal(t, first.RetailerID, second.RetailerID)
	assert.Equal(t, first.CategoryID, second.CategoryID)
	assert.False(t, second.ProductInserted)

	assert.Equal(t, 1, countRows(t, st, "products"))
	assert.Equal(t, 2, countRows(t, st, "prices"), "prices are append-only")

	cp, err := st.CurrentPrice(ctx, "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, "Milk 1L Full Cream", cp.ProductName, "product updated in place")
	assert.Equal(t, 21.49, cp.Price)
	assert.Equal(t, again.ScrapedAt, cp.ObservedAt)
}

func TestSQLite_Ingest_UnchangedPriceStillAppends(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := milkRecord()
		rec.ScrapedAt = testNow.Add(time.Duration(i) * time.Hour)
		_, err := st.Ingest(ctx, rec)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, countRows(t, st, "products"))
	assert.Equal(t, 3, countRows(t, st, "prices"))
}

func TestSQLite_CurrentPrice_TieBrokenByID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Ingest(ctx, milkRecord())
	require.NoError(t, err)
	same := milkRecord()
	same.Price = floatPtr(18.5)
	_, err = st.Ingest(ctx, same)
	require.NoError(t, err)

	cp, err := st.CurrentPrice(ctx, "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, 18.5, cp.Price)
}

func TestSQLite_CurrentPrice_LatestTimestampWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	later := milkRecord()
	later.ScrapedAt = testNow.Add(time.Hour)
	later.Price = floatPtr(25)
	_, err := st.Ingest(ctx, later)
	require.NoError(t, err)

	// An older observation ingested afterwards does not become current.
	_, err = st.Ingest(ctx, milkRecord())
	require.NoError(t, err)

	cp, err := st.CurrentPrice(ctx, "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, cp.Price)
}

func TestSQLite_Ingest_AbsentPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := milkRecord()
	rec.Price = nil
	out, err := st.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.True(t, out.ProductInserted)
	assert.False(t, out.PriceRecorded)

	assert.Equal(t, 1, countRows(t, st, "products"))
	assert.Equal(t, 0, countRows(t, st, "prices"))

	cp, err := st.CurrentPrice(ctx, "https://shop.example.com/p/1")
	require.NoError(t, err)
	assert.Nil(t, cp, "a product never priced has no current price")
}

func TestSQLite_Ingest_AbsentOptionalFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := model.Record{
		Retailer:   "checkers",
		ScrapedAt:  testNow,
		ProductURL: strPtr("https://checkers.example.com/p/7"),
		Price:      floatPtr(5),
	}
	_, err := st.Ingest(ctx, rec)
	require.NoError(t, err)

	cp, err := st.CurrentPrice(ctx, "https://checkers.example.com/p/7")
	require.NoError(t, err)
	assert.Equal(t, "", cp.ProductName)
	assert.Equal(t, "Unknown", cp.Category)
}

func TestSQLite_Ingest_RejectsInvalidRecord(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec := milkRecord()
	rec.ProductURL = strPtr("")
	_, err := st.Ingest(context.Background(), rec)
	assert.ErrorIs(t, err, ErrMissingProductURL)
	assert.Equal(t, 0, countRows(t, st, "retailers"), "nothing written")
}

func TestSQLite_Ingest_RollbackLeavesNoPartialWrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := milkRecord()
	rec.Category = "Bakery"
	rec.Price = floatPtr(-1) // violates the price CHECK constraint
	_, err := st.Ingest(ctx, rec)
	require.Error(t, err)

	assert.Equal(t, 0, countRows(t, st, "retailers"))
	assert.Equal(t, 0, countRows(t, st, "categories"))
	assert.Equal(t, 0, countRows(t, st, "products"))
}

func TestSQLite_Ingest_ConcurrentSameProduct(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Ingest(ctx, milkRecord())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, countRows(t, st, "products"))
	assert.Equal(t, 8, countRows(t, st, "prices"))
}

func TestSQLite_ListCurrentPrices(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, rec := range []model.Record{
		{Retailer: "shoprite", ScrapedAt: testNow, ProductURL: strPtr("https://s.example.com/p/2"), ProductName: strPtr("Bread"), Price: floatPtr(15), Category: "Bakery"},
		{Retailer: "shoprite", ScrapedAt: testNow, ProductURL: strPtr("https://s.example.com/p/1"), ProductName: strPtr("Milk"), Price: floatPtr(19.99), Category: "Dairy"},
		{Retailer: "clicks", ScrapedAt: testNow, ProductURL: strPtr("https://c.example.com/p/1"), ProductName: strPtr("Lotion"), Price: floatPtr(89.95), Category: "Body"},
		{Retailer: "clicks", ScrapedAt: testNow, ProductURL: strPtr("https://c.example.com/p/2"), ProductName: strPtr("No price")},
	} {
		_, err := st.Ingest(ctx, rec)
		require.NoError(t, err)
	}

	all, err := st.ListCurrentPrices(ctx, PriceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Lotion", all[0].ProductName)
	assert.Equal(t, "Milk", all[1].ProductName)
	assert.Equal(t, "Bread", all[2].ProductName)

	shoprite, err := st.ListCurrentPrices(ctx, PriceFilter{Retailer: "shoprite", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, shoprite, 1)
	assert.Equal(t, "Bread", shoprite[0].ProductName)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	older := model.CrawlRun{ID: "run-a", Retailers: []string{"shoprite"}, Status: model.RunStatusComplete, StartedAt: testNow, FinishedAt: testNow.Add(time.Minute), Records: 4}
	newer := model.CrawlRun{ID: "run-b", Retailers: []string{"clicks"}, Status: model.RunStatusRunning, StartedAt: testNow.Add(time.Hour)}
	require.NoError(t, st.RecordRun(ctx, older))
	require.NoError(t, st.RecordRun(ctx, newer))

	newer.Status = model.RunStatusDegraded
	newer.FinishedAt = newer.StartedAt.Add(30 * time.Second)
	newer.FetchErrors = 9
	require.NoError(t, st.RecordRun(ctx, newer), "recording again updates the run")

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, model.RunStatusDegraded, runs[0].Status)
	assert.Equal(t, int64(9), runs[0].FetchErrors)
	assert.Equal(t, 30*time.Second, runs[0].Duration())
	assert.Equal(t, older, runs[1])
}

func TestSQLite_MigrateIsRepeatable(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}
