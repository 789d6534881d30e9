package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-crawler/internal/model"
)

// collectLimit caps how many recent runs a snapshot inspects.
const collectLimit = 1000

// MetricsSnapshot holds a point-in-time view of crawl health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsDegraded  int     `json:"runs_degraded"`
	RunsCancelled int     `json:"runs_cancelled"`
	RunsRunning   int     `json:"runs_running"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Page and record totals across those runs.
	PagesFetched   int64   `json:"pages_fetched"`
	FetchErrors    int64   `json:"fetch_errors"`
	FetchErrorRate float64 `json:"fetch_error_rate"`
	Records        int64   `json:"records"`
	Ingested       int64   `json:"ingested"`
	IngestErrors   int64   `json:"ingest_errors"`

	// Finished runs that produced no records at all.
	EmptyRuns []string `json:"empty_runs,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.CrawlRun, error)
}

// Collector gathers metrics from recorded crawl runs.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot of crawl metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, collectLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusDegraded:
			snap.RunsDegraded++
		case model.RunStatusCancelled:
			snap.RunsCancelled++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		snap.PagesFetched += r.ListingPages + r.DetailPages
		snap.FetchErrors += r.FetchErrors
		snap.Records += r.Records
		snap.Ingested += r.Ingested
		snap.IngestErrors += r.IngestErrors

		finished := r.Status == model.RunStatusComplete || r.Status == model.RunStatusDegraded
		if finished && r.Records == 0 {
			snap.EmptyRuns = append(snap.EmptyRuns, r.ID)
		}
	}

	if finished := snap.RunsComplete + snap.RunsDegraded; finished > 0 {
		snap.RunFailRate = float64(snap.RunsDegraded) / float64(finished)
	}
	if attempts := snap.PagesFetched + snap.FetchErrors; attempts > 0 {
		snap.FetchErrorRate = float64(snap.FetchErrors) / float64(attempts)
	}

	return snap, nil
}
