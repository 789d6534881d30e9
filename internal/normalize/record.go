package normalize

import "github.com/sells-group/shelf-crawler/internal/model"

// Record applies the field normalizers to a raw detail-page record. The
// retailer and scrape timestamp pass through untouched.
func Record(raw model.RawRecord) model.Record {
	rec := model.Record{
		Retailer:  raw.Retailer,
		ScrapedAt: raw.ScrapedAt,
		Category:  CleanCategory(raw.Category),
	}
	if v, ok := CleanText(raw.ProductName); ok {
		rec.ProductName = &v
	}
	price := Absent()
	if raw.Price != "" {
		price = Text(raw.Price)
	}
	if v, ok := CleanPrice(price); ok {
		rec.Price = &v
	}
	if v, ok := CleanURL(raw.ImageURL); ok {
		rec.ImageURL = &v
	}
	if v, ok := CleanURL(raw.ProductURL); ok {
		rec.ProductURL = &v
	}
	if v, ok := CleanText(raw.ProductDescription); ok {
		rec.ProductDescription = &v
	}
	return rec
}
