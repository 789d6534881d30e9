package crawl

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-crawler/internal/model"
	"github.com/sells-group/shelf-crawler/internal/rules"
)

// Document is a fetched and parsed page.
type Document interface {
	// URL is the page's final URL after redirects.
	URL() string
	// Resolve turns a possibly relative link into an absolute http(s) URL.
	Resolve(ref string) (string, bool)
	// Values returns the non-empty text or attribute values the rule selects.
	Values(r rules.Rule) []string
	// Scope returns one sub-document per element matching selector.
	Scope(selector string) []Document
}

// Fetcher retrieves and parses a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// Sink receives normalized records.
type Sink interface {
	Ingest(ctx context.Context, rec model.Record) (*model.Outcome, error)
}

// HTMLDocument is a Document backed by a goquery selection.
type HTMLDocument struct {
	url  string
	base *url.URL
	sel  *goquery.Selection
}

// NewHTMLDocument parses the HTML in r as the page at pageURL. A <base href>
// element, when present, overrides pageURL for link resolution.
func NewHTMLDocument(pageURL string, r io.Reader) (*HTMLDocument, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse page url %q", pageURL)
	}
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse html %s", pageURL)
	}
	if href, ok := gq.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}
	return &HTMLDocument{url: pageURL, base: base, sel: gq.Selection}, nil
}

// URL implements Document.
func (d *HTMLDocument) URL() string { return d.url }

// Resolve implements Document. Fragments are dropped so that anchors on the
// same page resolve to one URL.
func (d *HTMLDocument) Resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := d.base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}

// Values implements Document.
func (d *HTMLDocument) Values(r rules.Rule) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	d.sel.Find(r.Selector).Each(func(_ int, s *goquery.Selection) {
		switch {
		case r.Text:
			s.Contents().Each(func(_ int, c *goquery.Selection) {
				if goquery.NodeName(c) == "#text" {
					add(c.Text())
				}
			})
		case r.Attr != "":
			if v, ok := s.Attr(r.Attr); ok {
				add(v)
			}
		default:
			add(s.Text())
		}
	})
	return out
}

// Scope implements Document.
func (d *HTMLDocument) Scope(selector string) []Document {
	var out []Document
	d.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &HTMLDocument{url: d.url, base: d.base, sel: s})
	})
	return out
}
