package model

import "time"

// RunStatus represents the final state of a crawl run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusDegraded  RunStatus = "degraded"  // finished, failure rate above threshold
	RunStatusCancelled RunStatus = "cancelled" // context cancelled before the frontier drained
)

// CrawlRun summarises one crawl-to-persist run.
type CrawlRun struct {
	ID            string    `json:"id"`
	Retailers     []string  `json:"retailers"`
	Status        RunStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ListingPages  int64     `json:"listing_pages"`
	DetailPages   int64     `json:"detail_pages"`
	Records       int64     `json:"records"`
	Ingested      int64     `json:"ingested"`
	FetchErrors   int64     `json:"fetch_errors"`
	IngestErrors  int64     `json:"ingest_errors"`
	PricesSkipped int64     `json:"prices_skipped"`
}

// Duration returns the wall-clock length of the run.
func (r CrawlRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
