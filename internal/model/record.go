package model

import "time"

// Field names used by extraction rule sets.
const (
	FieldProductName        = "product_name"
	FieldPrice              = "price"
	FieldImageURL           = "image_url"
	FieldProductURL         = "product_url"
	FieldProductDescription = "product_description"
	FieldPagination         = "pagination"
	FieldProductContainer   = "product_container"
	FieldCategory           = "category"
)

// RequiredFields lists the fields every retailer rule set must define.
func RequiredFields() []string {
	return []string{
		FieldProductName,
		FieldPrice,
		FieldImageURL,
		FieldProductURL,
		FieldProductDescription,
		FieldPagination,
		FieldProductContainer,
	}
}

// RawRecord holds the values pulled from a detail page before normalization.
// Multi-valued matches are already space-joined; an empty string means the
// rule matched nothing.
type RawRecord struct {
	Retailer           string
	ScrapedAt          time.Time
	ProductName        string
	Price              string
	ImageURL           string
	ProductURL         string
	Category           string
	ProductDescription string
}

// Record is a normalized product observation ready for ingestion. Nil
// pointers mark absent values.
type Record struct {
	Retailer           string    `json:"retailer"`
	ScrapedAt          time.Time `json:"scrape_timestamp"`
	ProductName        *string   `json:"product_name,omitempty"`
	Price              *float64  `json:"price,omitempty"`
	ImageURL           *string   `json:"image_url,omitempty"`
	ProductURL         *string   `json:"product_url,omitempty"`
	Category           string    `json:"category"`
	ProductDescription *string   `json:"product_description,omitempty"`
}

// Outcome reports what a single ingestion wrote.
type Outcome struct {
	RetailerID      int64 `json:"retailer_id"`
	CategoryID      int64 `json:"category_id"`
	ProductID       int64 `json:"product_id"`
	ProductInserted bool  `json:"product_inserted"`
	PriceID         int64 `json:"price_id,omitempty"`
	PriceRecorded   bool  `json:"price_recorded"`
}
