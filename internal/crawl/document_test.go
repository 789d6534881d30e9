package crawl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-crawler/internal/rules"
)

const docHTML = `<html><head><title>t</title></head><body>
<div class="tab">Intro text <p>Paragraph one</p> tail</div>
<div class="tab"><p>Paragraph two</p></div>
<img class="hero" src="/img/a.png">
<img class="hero">
<ul class="list"><li><a href="one">One</a></li><li><a href="#top">Top</a></li><li><a href="mailto:x@example.com">Mail</a></li></ul>
</body></html>`

func mustDoc(t *testing.T, pageURL, body string) *HTMLDocument {
	t.Helper()
	doc, err := NewHTMLDocument(pageURL, strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestHTMLDocument_Values(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/a/b", docHTML)

	tests := []struct {
		name string
		rule rules.Rule
		want []string
	}{
		{"direct text nodes only", rules.Rule{Selector: "div.tab", Text: true}, []string{"Intro text", "tail"}},
		{"nested text", rules.Rule{Selector: "div.tab p", Text: true}, []string{"Paragraph one", "Paragraph two"}},
		{"attribute skips missing", rules.Rule{Selector: "img.hero", Attr: "src"}, []string{"/img/a.png"}},
		{"bare selector uses full text", rules.Rule{Selector: "ul.list li"}, []string{"One", "Top", "Mail"}},
		{"no match", rules.Rule{Selector: "span.none", Text: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, doc.Values(tt.rule))
		})
	}
}

func TestHTMLDocument_Scope(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/a/b", docHTML)

	scoped := doc.Scope("ul.list li")
	require.Len(t, scoped, 3)
	assert.Equal(t, []string{"one"}, scoped[0].Values(rules.Rule{Selector: "a", Attr: "href"}))
	assert.Equal(t, "https://shop.example.com/a/b", scoped[0].URL())

	resolved, ok := scoped[0].Resolve("one")
	require.True(t, ok)
	assert.Equal(t, "https://shop.example.com/a/one", resolved)

	assert.Empty(t, doc.Scope("table"))
}

func TestHTMLDocument_Resolve(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/c/all?page=1", docHTML)

	tests := []struct {
		ref    string
		want   string
		wantOK bool
	}{
		{"/p/1", "https://shop.example.com/p/1", true},
		{"p/2", "https://shop.example.com/c/p/2", true},
		{"?page=2", "https://shop.example.com/c/all?page=2", true},
		{"https://cdn.example.com/x.png", "https://cdn.example.com/x.png", true},
		{"//cdn.example.com/y.png", "https://cdn.example.com/y.png", true},
		{"/p/1#reviews", "https://shop.example.com/p/1", true},
		{"mailto:x@example.com", "", false},
		{"javascript:void(0)", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := doc.Resolve(tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTMLDocument_BaseHref(t *testing.T) {
	doc := mustDoc(t, "https://shop.example.com/c/all",
		`<html><head><base href="https://static.example.com/root/"></head><body></body></html>`)

	got, ok := doc.Resolve("p/9")
	require.True(t, ok)
	assert.Equal(t, "https://static.example.com/root/p/9", got)
	assert.Equal(t, "https://shop.example.com/c/all", doc.URL())
}

func TestNewHTMLDocument_BadURL(t *testing.T) {
	_, err := NewHTMLDocument("http://[::1", strings.NewReader("<html></html>"))
	require.Error(t, err)
}
