// Package crawl walks retailer listing pages, follows pagination and product
// links, and turns detail pages into normalized records for ingestion. Each
// absolute URL is fetched at most once per run.
package crawl
