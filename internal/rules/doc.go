// Package rules holds the per-retailer extraction rule sets: which
// structural queries produce each product field, where a retailer's crawl
// starts, and how its category is derived. Rule sets are validated when
// they are built or registered, so a misconfigured retailer fails at startup
// instead of mid-crawl.
package rules
