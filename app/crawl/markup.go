package crawl

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	feedPlatforms = map[string]bool{"rss": true, "atom": true, "feed": true}
)

// Preparer reduces a fetched page to the markup sent to the extraction prompt.
type Preparer struct {
	maxBytes   int
	feedParser *gofeed.Parser
}

func NewPreparer(maxBytes int) *Preparer {
	if maxBytes <= 0 {
		maxBytes = 200000
	}

	return &Preparer{
		maxBytes:   maxBytes,
		feedParser: gofeed.NewParser(),
	}
}

// Prepare never fails: markup that cannot be parsed is passed on as raw text.
func (p *Preparer) Prepare(page *Page, platform string) Prepared {
	var prepared Prepared

	if isFeed(page, platform) {
		if markup, title, err := p.renderFeed(page.Body); err == nil {
			prepared = Prepared{Markup: markup, Title: title, Feed: true}
		} else {
			slog.Debug("Feed parsing failed, treating page as HTML", "url", page.URL, "error", err)
		}
	}

	if !prepared.Feed {
		prepared = p.prepareHTML(page)
	}

	prepared.Markup = strings.TrimSpace(whitespaceRe.ReplaceAllString(prepared.Markup, " "))
	prepared.Title = strings.TrimSpace(whitespaceRe.ReplaceAllString(prepared.Title, " "))

	if len(prepared.Markup) > p.maxBytes {
		prepared.Markup = truncateUTF8(prepared.Markup, p.maxBytes)
		prepared.Truncated = true
	}
	prepared.Truncated = prepared.Truncated || page.Truncated

	return prepared
}

func isFeed(page *Page, platform string) bool {
	if feedPlatforms[strings.ToLower(platform)] {
		return true
	}

	ct := strings.ToLower(page.ContentType)
	return strings.Contains(ct, "rss") || strings.Contains(ct, "atom") ||
		strings.HasPrefix(ct, "application/xml") || strings.HasPrefix(ct, "text/xml")
}

func (p *Preparer) renderFeed(data []byte) (string, string, error) {
	feed, err := p.feedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse feed: %w", err)
	}

	var b strings.Builder
	b.WriteString("<ul>")
	for _, item := range feed.Items {
		b.WriteString("<li>")
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(item.Link), html.EscapeString(item.Title))
		if item.Published != "" {
			fmt.Fprintf(&b, "<time>%s</time>", html.EscapeString(item.Published))
		}
		if item.Image != nil && item.Image.URL != "" {
			fmt.Fprintf(&b, `<img src="%s">`, html.EscapeString(item.Image.URL))
		}
		if len(item.Categories) > 0 {
			fmt.Fprintf(&b, "<span>%s</span>", html.EscapeString(strings.Join(item.Categories, ", ")))
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		fmt.Fprintf(&b, "<p>%s</p>", desc)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")

	return b.String(), feed.Title, nil
}

func (p *Preparer) prepareHTML(page *Page) Prepared {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		slog.Debug("HTML parsing failed, using raw body", "url", page.URL, "error", err)
		return Prepared{Markup: string(page.Body)}
	}

	title := p.readableTitle(page)
	if title == "" {
		title = doc.Find("title").First().Text()
	}

	doc.Find("script, style, noscript, svg, iframe, template").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		s.RemoveAttr("style")
	})

	markup, err := doc.Find("body").First().Html()
	if err != nil || strings.TrimSpace(markup) == "" {
		markup, err = doc.Html()
		if err != nil {
			markup = string(page.Body)
		}
	}

	return Prepared{Markup: markup, Title: title}
}

func (p *Preparer) readableTitle(page *Page) string {
	pageURL, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		pageURL, _ = url.Parse(page.URL)
	}

	article, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		slog.Debug("Readability metadata unavailable", "url", page.URL, "error", err)
		return ""
	}

	return article.Title
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
