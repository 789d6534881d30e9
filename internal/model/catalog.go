package model

import "time"

// Retailer is a store whose catalogue is crawled. Rows are created the first
// time a retailer name is ingested and never modified afterwards.
type Retailer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a normalized product category name.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is keyed across crawl runs by ProductURL.
type Product struct {
	ID          int64     `json:"id"`
	Name        *string   `json:"name,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	ProductURL  string    `json:"product_url"`
	Description *string   `json:"description,omitempty"`
	CategoryID  int64     `json:"category_id"`
	RetailerID  int64     `json:"retailer_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Price is one append-only observation of a product's price.
type Price struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// CurrentPrice joins a product with its most recent price observation.
type CurrentPrice struct {
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	ProductURL  string    `json:"product_url"`
	Retailer    string    `json:"retailer"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	ObservedAt  time.Time `json:"observed_at"`
}
