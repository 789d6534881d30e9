package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-crawler/internal/model"
)

func validSpec(name string) Spec {
	return Spec{
		Name:    name,
		SeedURL: "https://shop.example.com/c/all",
		Fields: map[string][]string{
			model.FieldProductName:        {"h1::text"},
			model.FieldPrice:              {"span.now::text", "span.was::text"},
			model.FieldImageURL:           {"img.main::attr(src)"},
			model.FieldProductURL:         {"a.item::attr(href)"},
			model.FieldProductDescription: {"div.desc p::text"},
			model.FieldPagination:         {"nav.pages a::attr(href)"},
			model.FieldProductContainer:   {"div.item"},
		},
	}
}

func TestNew_Valid(t *testing.T) {
	rs, err := New(validSpec("acme"))
	require.NoError(t, err)

	assert.Equal(t, "acme", rs.Name())
	assert.Equal(t, "https://shop.example.com/c/all", rs.SeedURL())
	assert.Equal(t, CategoryURLPath, rs.Strategy(), "strategy defaults to url_path")
	assert.Equal(t, []Rule{
		{Selector: "span.now", Text: true},
		{Selector: "span.was", Text: true},
	}, rs.Rules(model.FieldPrice))
	assert.Nil(t, rs.Rules(model.FieldCategory))
	assert.Len(t, rs.Fields(), 7)
}

func TestRuleSet_RulesReturnsCopy(t *testing.T) {
	rs, err := New(validSpec("acme"))
	require.NoError(t, err)

	got := rs.Rules(model.FieldPrice)
	got[0].Selector = "mutated"
	assert.Equal(t, "span.now", rs.Rules(model.FieldPrice)[0].Selector)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantMsg string
	}{
		{"no name", func(s *Spec) { s.Name = "" }, "no name"},
		{"relative seed", func(s *Spec) { s.SeedURL = "/c/all" }, "seed url"},
		{"ftp seed", func(s *Spec) { s.SeedURL = "ftp://shop.example.com/" }, "seed url"},
		{"missing price", func(s *Spec) { delete(s.Fields, model.FieldPrice) }, "field price"},
		{"empty container", func(s *Spec) { s.Fields[model.FieldProductContainer] = nil }, "field product_container"},
		{"bad rule", func(s *Spec) { s.Fields[model.FieldPrice] = []string{"span::html"} }, "unsupported"},
		{"breadcrumb without rule", func(s *Spec) { s.CategoryStrategy = CategoryBreadcrumb }, "breadcrumb strategy"},
		{"unknown strategy", func(s *Spec) { s.CategoryStrategy = "guess" }, "unknown category strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec("acme")
			tt.mutate(&spec)
			_, err := New(spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNew_BreadcrumbWithRule(t *testing.T) {
	spec := validSpec("acme")
	spec.CategoryStrategy = CategoryBreadcrumb
	spec.Fields[model.FieldCategory] = []string{"ol.crumbs li a::text"}

	rs, err := New(spec)
	require.NoError(t, err)
	assert.Equal(t, CategoryBreadcrumb, rs.Strategy())
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() { MustNew(Spec{Name: "broken"}) })
}
