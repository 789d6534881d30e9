package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-crawler/internal/model"
)

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs    []model.CrawlRun
	listErr error
}

func (m *mockRuns) ListRuns(_ context.Context, limit int) ([]model.CrawlRun, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit > 0 && len(m.runs) > limit {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func TestCollector_Collect(t *testing.T) {
	now := time.Now().UTC()
	runs := &mockRuns{runs: []model.CrawlRun{
		{ID: "r1", Status: model.RunStatusComplete, StartedAt: now.Add(-time.Hour),
			ListingPages: 2, DetailPages: 18, Records: 18, Ingested: 18},
		{ID: "r2", Status: model.RunStatusDegraded, StartedAt: now.Add(-2 * time.Hour),
			ListingPages: 1, DetailPages: 4, Records: 4, Ingested: 3, FetchErrors: 10, IngestErrors: 1},
		{ID: "r3", Status: model.RunStatusComplete, StartedAt: now.Add(-3 * time.Hour),
			ListingPages: 1},
		{ID: "r4", Status: model.RunStatusCancelled, StartedAt: now.Add(-4 * time.Hour)},
		{ID: "r5", Status: model.RunStatusRunning, StartedAt: now.Add(-time.Minute)},
		{ID: "old", Status: model.RunStatusDegraded, StartedAt: now.Add(-48 * time.Hour),
			FetchErrors: 100},
	}}

	snap, err := NewCollector(runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal, "run outside the window is skipped")
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsDegraded)
	assert.Equal(t, 1, snap.RunsCancelled)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)

	assert.Equal(t, int64(26), snap.PagesFetched)
	assert.Equal(t, int64(10), snap.FetchErrors)
	assert.InDelta(t, 10.0/36.0, snap.FetchErrorRate, 0.001)
	assert.Equal(t, int64(22), snap.Records)
	assert.Equal(t, int64(21), snap.Ingested)
	assert.Equal(t, int64(1), snap.IngestErrors)

	assert.Equal(t, []string{"r3"}, snap.EmptyRuns, "cancelled and running runs are not empty runs")
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Collect_NoRuns(t *testing.T) {
	snap, err := NewCollector(&mockRuns{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.FetchErrorRate)
	assert.Empty(t, snap.EmptyRuns)
}

func TestCollector_Collect_ListError(t *testing.T) {
	_, err := NewCollector(&mockRuns{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
