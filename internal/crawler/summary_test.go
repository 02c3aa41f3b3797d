package crawler

import (
	"net/url"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return u
}

func TestParseDocument(t *testing.T) {
	body := `<!DOCTYPE html>
<html>
<head>
	<title>Acme Widgets</title>
	<link rel="stylesheet" href="/css/main.css">
	<link rel="icon" href="/favicon.ico">
	<script src="/js/app.js"></script>
</head>
<body>
	<h1>Welcome</h1>
	<h2>Our Products</h2>
	<h3>Widgets</h3>
	<a href="/about">About</a>
	<a href="/products#widgets">Products</a>
	<a href="https://example.com/contact">Contact</a>
	<a href="mailto:hi@example.com">Email us</a>
	<a href="javascript:void(0)">Noop</a>
	<img src="/img/hero.png" alt="hero">
	<img src="https://cdn.example.com/banner.jpg">
	<form action="/subscribe"><input type="email"></form>
</body>
</html>`

	page := parseDocument(mustURL(t, "https://example.com/"), body)

	if page.Summary.Title != "Acme Widgets" {
		t.Errorf("expected title %q, got %q", "Acme Widgets", page.Summary.Title)
	}
	if len(page.Summary.Headings) != 3 {
		t.Fatalf("expected 3 headings, got %d: %v", len(page.Summary.Headings), page.Summary.Headings)
	}
	if page.Summary.Headings[0] != "Welcome" {
		t.Errorf("expected first heading %q, got %q", "Welcome", page.Summary.Headings[0])
	}
	if page.Summary.LinkCount != 5 {
		t.Errorf("expected link count 5, got %d", page.Summary.LinkCount)
	}
	if page.Summary.ImageCount != 2 {
		t.Errorf("expected image count 2, got %d", page.Summary.ImageCount)
	}
	if page.Summary.FormCount != 1 {
		t.Errorf("expected form count 1, got %d", page.Summary.FormCount)
	}

	// mailto: and javascript: links are counted but not crawlable.
	wantLinks := []string{
		"https://example.com/about",
		"https://example.com/products",
		"https://example.com/contact",
	}
	if len(page.Links) != len(wantLinks) {
		t.Fatalf("expected %d crawlable links, got %d: %v", len(wantLinks), len(page.Links), page.Links)
	}
	for i, want := range wantLinks {
		if page.Links[i] != want {
			t.Errorf("link %d: expected %q, got %q", i, want, page.Links[i])
		}
	}

	wantAssets := map[string]bool{
		"https://example.com/css/main.css":    true,
		"https://example.com/favicon.ico":     true,
		"https://example.com/js/app.js":       true,
		"https://example.com/img/hero.png":    true,
		"https://cdn.example.com/banner.jpg":  true,
	}
	if len(page.Assets) != len(wantAssets) {
		t.Fatalf("expected %d assets, got %d: %v", len(wantAssets), len(page.Assets), page.Assets)
	}
	for _, asset := range page.Assets {
		if !wantAssets[asset] {
			t.Errorf("unexpected asset %q", asset)
		}
	}
}

func TestParseDocumentHeadingCap(t *testing.T) {
	body := "<html><body>"
	for i := 0; i < 20; i++ {
		body += "<h2>Heading</h2>"
	}
	body += "</body></html>"

	page := parseDocument(mustURL(t, "https://example.com/"), body)
	if len(page.Summary.Headings) != maxHeadings {
		t.Errorf("expected headings capped at %d, got %d", maxHeadings, len(page.Summary.Headings))
	}
}

func TestParseDocumentBrokenMarkup(t *testing.T) {
	page := parseDocument(mustURL(t, "https://example.com/"), "<div><a href=/about>unclosed")
	if page.Summary.URL != "https://example.com/" {
		t.Errorf("expected URL preserved, got %q", page.Summary.URL)
	}
	if page.Summary.LinkCount != 1 {
		t.Errorf("expected 1 link in broken markup, got %d", page.Summary.LinkCount)
	}
}

func TestResolveRef(t *testing.T) {
	base := mustURL(t, "https://example.com/docs/guide")

	tests := []struct {
		ref      string
		expected string
	}{
		{"/about", "https://example.com/about"},
		{"intro", "https://example.com/docs/intro"},
		{"https://other.com/page", "https://other.com/page"},
		{"/page#section", "https://example.com/page"},
		{"mailto:hi@example.com", ""},
		{"javascript:void(0)", ""},
		{"data:image/png;base64,xyz", ""},
	}

	for _, tt := range tests {
		if got := resolveRef(base, tt.ref); got != tt.expected {
			t.Errorf("resolveRef(%q) = %q, want %q", tt.ref, got, tt.expected)
		}
	}
}
