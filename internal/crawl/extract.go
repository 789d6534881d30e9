package crawl

import (
	"time"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/normalize"
	"github.com/sells-group/shelf-crawler/internal/rules"
)

// ExtractDetail runs the retailer's rule set against a detail page and
// returns the normalized record. The product URL is the page's own URL.
func (e *Engine) ExtractDetail(rs *rules.RuleSet, doc Document, now time.Time) model.Record {
	return normalize.Record(ExtractRaw(rs, doc, now))
}

// ExtractRaw collects every rule's matches per field, joined with single
// spaces, without normalizing them.
func ExtractRaw(rs *rules.RuleSet, doc Document, now time.Time) model.RawRecord {
	raw := model.RawRecord{
		Retailer:           rs.Name(),
		ScrapedAt:          now,
		ProductName:        fieldValue(rs, doc, model.FieldProductName),
		Price:              fieldValue(rs, doc, model.FieldPrice),
		ImageURL:           fieldValue(rs, doc, model.FieldImageURL),
		ProductURL:         doc.URL(),
		ProductDescription: fieldValue(rs, doc, model.FieldProductDescription),
	}

	switch rs.Strategy() {
	case rules.CategoryBreadcrumb:
		raw.Category = rules.BreadcrumbCategory(allValues(rs, doc, model.FieldCategory))
	default:
		raw.Category = rules.PathCategory(doc.URL())
	}

	// Image links are often relative to the page.
	if abs, ok := doc.Resolve(raw.ImageURL); ok {
		raw.ImageURL = abs
	}
	return raw
}

func fieldValue(rs *rules.RuleSet, doc Document, field string) string {
	return normalize.JoinValues(allValues(rs, doc, field))
}

func allValues(rs *rules.RuleSet, doc Document, field string) []string {
	var vals []string
	for _, r := range rs.Rules(field) {
		vals = append(vals, doc.Values(r)...)
	}
	return vals
}
