package collect

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/fetch"
)

const (
	defaultMaxEntries = 10
	// thinEntryLen is the text length under which an entry is treated as a
	// summary and its page is fetched when full content is enabled.
	thinEntryLen = 500
)

// FeedFetcher reads RSS/Atom feeds of blog primaries.
type FeedFetcher struct {
	parser     *gofeed.Parser
	maxEntries int
	pages      *fetch.PageFetcher
}

// NewFeedFetcher creates a FeedFetcher. pages may be nil, in which case only
// the feed's own content is used.
func NewFeedFetcher(maxEntries int, timeout time.Duration, pages *fetch.PageFetcher) *FeedFetcher {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "AIDiscovery/1.0 (source discovery)"
	return &FeedFetcher{parser: parser, maxEntries: maxEntries, pages: pages}
}

// Fetch implements Fetcher.
func (f *FeedFetcher) Fetch(ctx context.Context, src database.PrimarySource) ([]Content, error) {
	if src.URL == nil || *src.URL == "" {
		return nil, fmt.Errorf("blog %q has no feed url", src.Name)
	}

	feed, err := f.parser.ParseURLWithContext(*src.URL, ctx)
	if err != nil {
		return nil, err
	}

	var contents []Content
	for _, item := range feed.Items {
		if len(contents) >= f.maxEntries {
			break
		}
		c := f.parseItem(ctx, item)
		if c.Text == "" {
			continue
		}
		contents = append(contents, c)
	}
	return contents, nil
}

func (f *FeedFetcher) parseItem(ctx context.Context, item *gofeed.Item) Content {
	link := item.Link
	if link == "" {
		link = item.GUID
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	text := htmlToText(body)

	if f.pages != nil && link != "" && len(text) < thinEntryLen {
		page, err := f.pages.Fetch(ctx, link)
		if err != nil {
			log.Printf("Full content fetch failed for %s: %v", link, err)
		} else if page != nil {
			text = withLinks(page.Text, page.Links)
		}
	}

	if title := strings.TrimSpace(item.Title); title != "" && text != "" {
		text = title + "\n" + text
	}

	c := Content{Text: strings.TrimSpace(text), Link: link}
	switch {
	case item.PublishedParsed != nil:
		c.Published = item.PublishedParsed
	case item.UpdatedParsed != nil:
		c.Published = item.UpdatedParsed
	}
	return c
}

// htmlToText flattens feed HTML to text. Anchor hrefs are written after the
// anchor text so links survive as plain URLs, unless the text already shows
// the URL.
func htmlToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.Join(strings.Fields(body), " ")
	}
	doc.Find("script, style").Remove()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return
		}
		if text := s.Text(); !mentionsURL(text, href) {
			s.SetText(text + " " + href + " ")
		}
	})
	doc.Find("br, p, div, li, h1, h2, h3, h4, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// withLinks appends each link that text does not already show, once.
func withLinks(text string, links []string) string {
	parts := []string{text}
	for _, link := range links {
		if mentionsURL(strings.Join(parts, " "), link) {
			continue
		}
		parts = append(parts, link)
	}
	return strings.Join(parts, " ")
}

// mentionsURL reports whether text contains u as a whole URL, ignoring a
// trailing slash. https://a.example/x does not match inside https://a.example/xy.
func mentionsURL(text, u string) bool {
	u = strings.TrimRight(u, "/")
	if u == "" {
		return false
	}
	for rest := text; ; {
		i := strings.Index(rest, u)
		if i < 0 {
			return false
		}
		end := i + len(u)
		if end < len(rest) && rest[end] == '/' {
			end++
		}
		if urlEndsAt(rest, end) {
			return true
		}
		rest = rest[i+len(u):]
	}
}

// urlEndsAt reports whether a URL in s ends right before index i: at the end
// of s, at whitespace or a closing bracket or quote, or at sentence
// punctuation followed by whitespace.
func urlEndsAt(s string, i int) bool {
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || strings.IndexByte(")]\"'>", c) >= 0:
			return true
		case strings.IndexByte(".,;:!?", c) >= 0:
			continue
		default:
			return false
		}
	}
	return true
}
