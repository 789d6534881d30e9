package rules

import (
	"net/url"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-crawler/internal/model"
)

// CategoryStrategy selects how a retailer's product category is derived.
type CategoryStrategy string

const (
	// CategoryBreadcrumb reads the category rule as an ordered crumb trail.
	CategoryBreadcrumb CategoryStrategy = "breadcrumb"
	// CategoryURLPath takes a segment of the detail page's URL path.
	CategoryURLPath CategoryStrategy = "url_path"
)

// Spec is the declarative form of a rule set, as written in rule files.
type Spec struct {
	Name             string              `yaml:"name"`
	SeedURL          string              `yaml:"seed_url"`
	CategoryStrategy CategoryStrategy    `yaml:"category_strategy"`
	Fields           map[string][]string `yaml:"fields"`
}

// RuleSet is the immutable extraction configuration for one retailer.
type RuleSet struct {
	name     string
	seedURL  string
	strategy CategoryStrategy
	fields   map[string][]Rule
}

// New parses spec into a validated rule set.
func New(spec Spec) (*RuleSet, error) {
	rs := &RuleSet{
		name:     spec.Name,
		seedURL:  spec.SeedURL,
		strategy: spec.CategoryStrategy,
		fields:   make(map[string][]Rule, len(spec.Fields)),
	}
	if rs.strategy == "" {
		rs.strategy = CategoryURLPath
	}
	for field, exprs := range spec.Fields {
		parsed, err := ParseRules(exprs)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: %s field %s", spec.Name, field)
		}
		rs.fields[field] = parsed
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// MustNew is New for built-in rule sets; it panics on invalid input.
func MustNew(spec Spec) *RuleSet {
	rs, err := New(spec)
	if err != nil {
		panic(err)
	}
	return rs
}

// Validate checks that every required field has at least one rule, the
// seed URL is absolute http(s) and the category strategy is usable.
func (rs *RuleSet) Validate() error {
	if rs.name == "" {
		return eris.New("rules: rule set has no name")
	}
	u, err := url.Parse(rs.seedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return eris.Errorf("rules: %s: seed url %q is not an absolute http(s) url", rs.name, rs.seedURL)
	}
	for _, f := range model.RequiredFields() {
		if len(rs.fields[f]) == 0 {
			return eris.Errorf("rules: %s: missing rules for field %s", rs.name, f)
		}
	}
	switch rs.strategy {
	case CategoryURLPath:
	case CategoryBreadcrumb:
		if len(rs.fields[model.FieldCategory]) == 0 {
			return eris.Errorf("rules: %s: breadcrumb strategy needs a %s rule", rs.name, model.FieldCategory)
		}
	default:
		return eris.Errorf("rules: %s: unknown category strategy %q", rs.name, rs.strategy)
	}
	return nil
}

// Name returns the retailer identifier.
func (rs *RuleSet) Name() string { return rs.name }

// SeedURL returns the listing page the crawl starts from.
func (rs *RuleSet) SeedURL() string { return rs.seedURL }

// Strategy returns how categories are derived.
func (rs *RuleSet) Strategy() CategoryStrategy { return rs.strategy }

// Rules returns a copy of the ordered rules for field, or nil.
func (rs *RuleSet) Rules(field string) []Rule {
	src := rs.fields[field]
	if len(src) == 0 {
		return nil
	}
	out := make([]Rule, len(src))
	copy(out, src)
	return out
}

// Fields returns the names of all configured fields, sorted.
func (rs *RuleSet) Fields() []string {
	out := make([]string, 0, len(rs.fields))
	for f := range rs.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
