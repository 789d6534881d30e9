package crawl

import "sync/atomic"

// Stats summarises a run.
type Stats struct {
	ListingPages  int64 `json:"listing_pages"`
	DetailPages   int64 `json:"detail_pages"`
	Records       int64 `json:"records"`
	Ingested      int64 `json:"ingested"`
	FetchErrors   int64 `json:"fetch_errors"`
	IngestErrors  int64 `json:"ingest_errors"`
	PricesSkipped int64 `json:"prices_skipped"`
	Capped        int64 `json:"capped"`
	Excluded      int64 `json:"excluded"`
}

// FailureRate is the share of fetch and ingest attempts that failed.
func (s Stats) FailureRate() float64 {
	attempts := s.ListingPages + s.DetailPages + s.FetchErrors + s.Records
	if attempts == 0 {
		return 0
	}
	return float64(s.FetchErrors+s.IngestErrors) / float64(attempts)
}

type counters struct {
	listingPages  atomic.Int64
	detailPages   atomic.Int64
	records       atomic.Int64
	ingested      atomic.Int64
	fetchErrors   atomic.Int64
	ingestErrors  atomic.Int64
	pricesSkipped atomic.Int64
	capped        atomic.Int64
	excluded      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		ListingPages:  c.listingPages.Load(),
		DetailPages:   c.detailPages.Load(),
		Records:       c.records.Load(),
		Ingested:      c.ingested.Load(),
		FetchErrors:   c.fetchErrors.Load(),
		IngestErrors:  c.ingestErrors.Load(),
		PricesSkipped: c.pricesSkipped.Load(),
		Capped:        c.capped.Load(),
		Excluded:      c.excluded.Load(),
	}
}
