package crawl

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPrepareHTMLKeepsBodyOnly(t *testing.T) {
	page := &Page{
		URL:         "https://example.org/jobs",
		FinalURL:    "https://example.org/jobs",
		ContentType: "text/html; charset=utf-8",
		Body: []byte(`<html><head><title>Jobs at Example</title><style>.a{}</style></head>
<body><script>track()</script><h1>Open roles</h1>
<div style="color:red"><a href="/apply/1">Data Engineer</a></div><noscript>enable js</noscript></body></html>`),
	}

	prepared := NewPreparer(0).Prepare(page, "")

	if strings.Contains(prepared.Markup, "track()") {
		t.Error("Expected script contents to be removed")
	}
	if strings.Contains(prepared.Markup, "enable js") {
		t.Error("Expected noscript contents to be removed")
	}
	if strings.Contains(prepared.Markup, "<title>") || strings.Contains(prepared.Markup, ".a{}") {
		t.Errorf("Expected head to be dropped, got %q", prepared.Markup)
	}
	if strings.Contains(prepared.Markup, "color:red") {
		t.Error("Expected inline styles to be removed")
	}
	if !strings.Contains(prepared.Markup, `<a href="/apply/1">Data Engineer</a>`) {
		t.Errorf("Expected link to survive, got %q", prepared.Markup)
	}
	if prepared.Title == "" {
		t.Error("Expected a page title")
	}
	if prepared.Feed {
		t.Error("Expected HTML page not to be treated as a feed")
	}
}

func TestPrepareFeed(t *testing.T) {
	page := &Page{
		URL:         "https://example.org/feed.xml",
		ContentType: "application/rss+xml",
		Body: []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example Opportunities</title><link>https://example.org</link>
<item><title>Research Grant</title><link>https://example.org/grant</link><description>Funding for research</description></item>
</channel></rss>`),
	}

	prepared := NewPreparer(0).Prepare(page, "")

	if !prepared.Feed {
		t.Fatal("Expected page to be rendered as a feed")
	}
	if prepared.Title != "Example Opportunities" {
		t.Errorf("Expected feed title, got '%s'", prepared.Title)
	}
	if !strings.Contains(prepared.Markup, `<a href="https://example.org/grant">Research Grant</a>`) {
		t.Errorf("Expected rendered item link, got %q", prepared.Markup)
	}
}

func TestPrepareBrokenFeedFallsBackToHTML(t *testing.T) {
	page := &Page{
		URL:  "https://example.org/feed",
		Body: []byte("<html><body><p>not a feed</p></body></html>"),
	}

	prepared := NewPreparer(0).Prepare(page, "rss")

	if prepared.Feed {
		t.Error("Expected fallback to HTML handling")
	}
	if !strings.Contains(prepared.Markup, "not a feed") {
		t.Errorf("Expected body text, got %q", prepared.Markup)
	}
}

func TestPrepareTruncatesMarkup(t *testing.T) {
	page := &Page{
		URL:  "https://example.org",
		Body: []byte("<html><body><p>" + strings.Repeat("é", 500) + "</p></body></html>"),
	}

	prepared := NewPreparer(101).Prepare(page, "")

	if len(prepared.Markup) > 101 {
		t.Errorf("Expected markup capped at 101 bytes, got %d", len(prepared.Markup))
	}
	if !utf8.ValidString(prepared.Markup) {
		t.Error("Expected truncation to keep valid UTF-8")
	}
	if !prepared.Truncated {
		t.Error("Expected prepared markup to be marked truncated")
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := truncateUTF8("abc", 10); got != "abc" {
		t.Errorf("Expected 'abc', got '%s'", got)
	}
	if got := truncateUTF8("aé", 2); got != "a" {
		t.Errorf("Expected 'a', got '%s'", got)
	}
}
