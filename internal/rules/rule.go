package rules

import (
	"strings"

	"github.com/rotisserie/eris"
)

const (
	textSuffix = "::text"
	attrPrefix = "::attr("
)

// Rule is one structural query against a parsed page. With Text set it
// selects the direct text nodes of each match; with Attr set it selects
// that attribute; with neither it selects the matched elements themselves
// (their full text when read as values).
type Rule struct {
	Selector string `yaml:"selector" json:"selector"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty"`
	Text     bool   `yaml:"text,omitempty" json:"text,omitempty"`
}

// ParseRule parses a rule written as "css::text", "css::attr(name)" or a
// bare CSS selector.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	var r Rule
	switch {
	case strings.HasSuffix(s, textSuffix):
		r.Selector = strings.TrimSpace(strings.TrimSuffix(s, textSuffix))
		r.Text = true
	case strings.Contains(s, attrPrefix):
		i := strings.LastIndex(s, attrPrefix)
		if !strings.HasSuffix(s, ")") {
			return Rule{}, eris.Errorf("rules: unterminated attr in %q", s)
		}
		r.Selector = strings.TrimSpace(s[:i])
		r.Attr = strings.TrimSpace(s[i+len(attrPrefix) : len(s)-1])
		if r.Attr == "" {
			return Rule{}, eris.Errorf("rules: empty attr name in %q", s)
		}
	case strings.Contains(s, "::"):
		return Rule{}, eris.Errorf("rules: unsupported pseudo-element in %q", s)
	default:
		r.Selector = s
	}
	if r.Selector == "" {
		return Rule{}, eris.Errorf("rules: empty selector in %q", s)
	}
	return r, nil
}

// ParseRules parses each expression in order.
func ParseRules(exprs []string) ([]Rule, error) {
	out := make([]Rule, 0, len(exprs))
	for _, e := range exprs {
		r, err := ParseRule(e)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// String renders the rule back into its expression form.
func (r Rule) String() string {
	switch {
	case r.Text:
		return r.Selector + textSuffix
	case r.Attr != "":
		return r.Selector + attrPrefix + r.Attr + ")"
	default:
		return r.Selector
	}
}
