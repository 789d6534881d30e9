package rules

import "github.com/sells-group/shelf-crawler/internal/model"

// Built-in retailer identifiers.
const (
	Shoprite = "shoprite"
	Checkers = "checkers"
	Clicks   = "clicks"
)

// DefaultSpecs returns the built-in rule set specs. Shoprite and Checkers
// share a storefront platform and differ only in the product link markup.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:             Shoprite,
			SeedURL:          "https://www.shoprite.co.za/c-2256/All-Departments",
			CategoryStrategy: CategoryURLPath,
			Fields: map[string][]string{
				model.FieldProductName:        {"h1.pdp__name::text"},
				model.FieldPrice:              {"div.special-price__price span.now::text", "div.special-price__price span.before::text"},
				model.FieldImageURL:           {"div.pdp__image__content img::attr(src)"},
				model.FieldProductURL:         {"h3.item-product__name a::attr(href)"},
				model.FieldProductDescription: {"div.pdp__tabs__tab::text", "div.pdp__tabs__tab p::text"},
				model.FieldPagination:         {"div.col-xs-12.col-sm-6.col-md-7 a::attr(href)"},
				model.FieldProductContainer:   {"div.item-product"},
			},
		},
		{
			Name:             Checkers,
			SeedURL:          "https://www.checkers.co.za/c-2256/All-Departments",
			CategoryStrategy: CategoryURLPath,
			Fields: map[string][]string{
				model.FieldProductName:        {"h1.pdp__name::text"},
				model.FieldPrice:              {"div.special-price__price span.now::text", "div.special-price__price span.before::text"},
				model.FieldImageURL:           {"div.pdp__image__content img::attr(src)"},
				model.FieldProductURL:         {"div.item-product__image.__image a::attr(href)"},
				model.FieldProductDescription: {"div.pdp__tabs__tab::text", "div.pdp__tabs__tab p::text"},
				model.FieldPagination:         {"div.col-xs-12.col-sm-6.col-md-7 a::attr(href)"},
				model.FieldProductContainer:   {"div.item-product"},
			},
		},
		{
			Name:             Clicks,
			SeedURL:          "https://www.clicks.co.za/all-brands",
			CategoryStrategy: CategoryBreadcrumb,
			Fields: map[string][]string{
				model.FieldProductName:        {"h1.product-name::text"},
				model.FieldPrice:              {"div.price.blue.typo-h2::text", "div.price.typo-h2::text"},
				model.FieldImageURL:           {"img#imageLink.productImagePrimaryLink::attr(href)"},
				model.FieldProductURL:         {"div.clickfunct_plp a::attr(href)"},
				model.FieldProductDescription: {"div.product-desc p::text"},
				model.FieldPagination:         {"div.pagination a::attr(href)"},
				model.FieldProductContainer:   {"div.productBlock"},
				model.FieldCategory:           {"ul#breadcrumb.breadcrumb li a::text"},
			},
		},
	}
}

// Default returns a registry holding the built-in retailers.
func Default() *Registry {
	reg := NewRegistry()
	for _, spec := range DefaultSpecs() {
		if err := reg.Register(MustNew(spec)); err != nil {
			panic(err)
		}
	}
	return reg
}
