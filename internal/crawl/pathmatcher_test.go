package crawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathMatcher_IsExcluded(t *testing.T) {
	t.Parallel()
	m := NewPathMatcher([]string{"/cart/*", "/account/*", "/*.pdf", " "})

	tests := []struct {
		name     string
		url      string
		excluded bool
	}{
		{"cart item", "https://shop.example/cart/add?sku=1", true},
		{"cart root", "https://shop.example/cart", true},
		{"account deep path", "https://shop.example/account/orders/42", true},
		{"root pdf", "https://shop.example/catalogue.pdf", true},
		{"nested pdf", "https://shop.example/docs/catalogue.pdf", false},
		{"product", "https://shop.example/dairy/milk-1l", false},
		{"listing", "https://shop.example/shop/all?page=2", false},
		{"homepage", "https://shop.example/", false},
		{"upper case", "https://shop.example/CART/view", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.excluded, m.IsExcluded(tt.url))
		})
	}
}

func TestPathMatcher_NoPatterns(t *testing.T) {
	m := NewPathMatcher(nil)

	assert.Empty(t, m.Patterns())
	assert.False(t, m.IsExcluded("https://shop.example/cart/view"))
	assert.False(t, m.IsExcluded("://invalid"), "nothing is excluded without patterns")
}

func TestPathMatcher_InvalidURL(t *testing.T) {
	m := NewPathMatcher([]string{"/cart/*"})

	assert.True(t, m.IsExcluded("://invalid"))
}

func TestPathMatcher_Patterns(t *testing.T) {
	m := NewPathMatcher([]string{"/Cart/*", "", "/account/*"})
	assert.Equal(t, []string{"/cart/*", "/account/*"}, m.Patterns())
}

func TestMatchSegmented(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		pattern string
		urlPath string
		match   bool
	}{
		{"exact glob", "/cart/*", "/cart/view", true},
		{"deep path", "/cart/*", "/cart/a/b", true},
		{"root match", "/cart/*", "/cart", true},
		{"trailing slash", "/cart/*", "/cart/", true},
		{"no match", "/cart/*", "/cartography", false},
		{"pdf glob", "/*.pdf", "/report.pdf", true},
		{"nested no match", "/*.pdf", "/docs/report.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.match, matchSegmented(tt.pattern, tt.urlPath))
		})
	}
}
