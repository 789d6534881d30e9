package rules

import (
	"net/url"
	"strings"
)

// UnknownCategory is returned when no category can be derived.
const UnknownCategory = "Unknown"

const homeCrumb = "Home"

// BreadcrumbCategory picks the category from an ordered crumb trail. A
// leading "Home" crumb is skipped when another crumb follows; otherwise the
// first crumb is used as-is, so a trail of just "Home" yields "Home".
func BreadcrumbCategory(crumbs []string) string {
	trail := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		if c = strings.TrimSpace(c); c != "" {
			trail = append(trail, c)
		}
	}
	switch {
	case len(trail) == 0:
		return UnknownCategory
	case len(trail) > 1 && trail[0] == homeCrumb:
		return trail[1]
	default:
		return trail[0]
	}
}

// PathCategory returns the third "/"-separated element of the URL path
// (index 2, counting the empty element before the leading slash) when the
// path has more than three elements, and UnknownCategory otherwise.
func PathCategory(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return UnknownCategory
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) <= 3 {
		return UnknownCategory
	}
	seg := strings.TrimSpace(parts[2])
	if seg == "" {
		return UnknownCategory
	}
	return seg
}
