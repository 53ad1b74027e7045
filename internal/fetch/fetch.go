// Package fetch retrieves full article pages for feed entries that only carry
// a summary.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	userAgent  = "AIDiscovery/1.0 (source discovery)"
	maxBody    = 5 << 20
	minTextLen = 100
)

// Page is the readable text of an article plus the outbound links found in it.
type Page struct {
	Text  string
	Links []string
}

// PageFetcher fetches pages and extracts readable text. A domain that returns
// an HTTP error is skipped for the rest of the fetcher's lifetime.
type PageFetcher struct {
	client *http.Client

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewPageFetcher creates a PageFetcher. A zero timeout uses 15 seconds.
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// HTTPError reports a 4xx/5xx page response.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Fetch downloads pageURL. A nil page with a nil error means the page had no
// extractable content or its domain was already marked as failing.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}
	domain := strings.ToLower(u.Host)
	if f.domainFailed(domain) {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.markFailed(domain)
		log.Printf("HTTP %d for %s, skipping remaining pages from %s", resp.StatusCode, pageURL, domain)
		return nil, &HTTPError{URL: pageURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}

	return extractPage(body, u), nil
}

func extractPage(body []byte, u *url.URL) *Page {
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return nil
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) < minTextLen {
		return nil
	}
	return &Page{Text: text, Links: Links(body, u)}
}

// Links returns the absolute http(s) hrefs in an HTML document, in order.
func Links(body []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme == "http" || ref.Scheme == "https" {
			links = append(links, ref.String())
		}
	})
	return links
}

func (f *PageFetcher) domainFailed(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, failed := f.failedDomains[domain]
	return failed
}

func (f *PageFetcher) markFailed(domain string) {
	if domain == "" {
		return
	}
	f.mu.Lock()
	f.failedDomains[domain] = struct{}{}
	f.mu.Unlock()
}
