package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

const (
	title         = "AI Discovery Recommendations"
	nothingNew    = "No new sources to recommend at this time."
	generatedTime = "2006-01-02 15:04:05"
)

type formatter func(recs []recommend.Recommendation, generated time.Time) (string, error)

var textFormats = map[string]formatter{
	"markdown": Markdown,
	"json":     JSON,
	"text":     Text,
	"html":     HTML,
}

// Render formats recs in one of the text formats.
func Render(format string, recs []recommend.Recommendation, generated time.Time) (string, error) {
	f, ok := textFormats[strings.ToLower(format)]
	if !ok {
		return "", fmt.Errorf("format %q has no text rendering", format)
	}
	return f(recs, generated)
}

// Markdown renders one section per source.
func Markdown(recs []recommend.Recommendation, generated time.Time) (string, error) {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	if len(recs) == 0 {
		b.WriteString(nothingNew + "\n")
		return b.String(), nil
	}

	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format(generatedTime))
	for _, r := range recs {
		src := r.Source
		fmt.Fprintf(&b, "## %s\n\n", src.Name)
		if u := deref(src.URL); u != "" {
			fmt.Fprintf(&b, "- **URL**: [%s](%s)\n", u, u)
		}
		if h := deref(src.Handle); h != "" {
			fmt.Fprintf(&b, "- **Social**: [@%s](%s)\n", h, profileURL(h))
		}
		fmt.Fprintf(&b, "- **Type**: %s\n", src.Kind)
		fmt.Fprintf(&b, "- **Relevance Score**: %s\n", percent(src.RelevanceScore))
		fmt.Fprintf(&b, "- **Citations**: %d times\n", src.CitationCount)
		fmt.Fprintf(&b, "- **Why recommend**: %s\n\n", r.Reason)
	}
	return b.String(), nil
}

type jsonRecommendation struct {
	Name           string  `json:"name"`
	URL            *string `json:"url"`
	Handle         *string `json:"handle"`
	Type           string  `json:"type"`
	RelevanceScore float64 `json:"relevance_score"`
	CitationCount  int     `json:"citation_count"`
	Strength       float64 `json:"strength"`
	Reasoning      string  `json:"reasoning"`
}

// JSON renders a document with a generated_at stamp, a count and the list.
func JSON(recs []recommend.Recommendation, generated time.Time) (string, error) {
	doc := struct {
		GeneratedAt     string               `json:"generated_at"`
		Count           int                  `json:"count"`
		Recommendations []jsonRecommendation `json:"recommendations"`
	}{
		GeneratedAt:     database.FormatTime(generated),
		Count:           len(recs),
		Recommendations: make([]jsonRecommendation, 0, len(recs)),
	}
	for _, r := range recs {
		doc.Recommendations = append(doc.Recommendations, jsonRecommendation{
			Name:           r.Source.Name,
			URL:            r.Source.URL,
			Handle:         r.Source.Handle,
			Type:           string(r.Source.Kind),
			RelevanceScore: r.Source.RelevanceScore,
			CitationCount:  r.Source.CitationCount,
			Strength:       r.Strength,
			Reasoning:      r.Reason,
		})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding recommendations: %w", err)
	}
	return string(out) + "\n", nil
}

// Text renders a numbered plain-text list.
func Text(recs []recommend.Recommendation, generated time.Time) (string, error) {
	var b strings.Builder
	b.WriteString(title + "\n")
	if len(recs) == 0 {
		b.WriteString("\n" + nothingNew + "\n")
		return b.String(), nil
	}

	fmt.Fprintf(&b, "Generated: %s\n", generated.Format(generatedTime))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	for i, r := range recs {
		src := r.Source
		fmt.Fprintf(&b, "%d. %s\n", i+1, src.Name)
		if u := deref(src.URL); u != "" {
			fmt.Fprintf(&b, "   URL: %s\n", u)
		}
		if h := deref(src.Handle); h != "" {
			fmt.Fprintf(&b, "   Social: @%s\n", h)
		}
		fmt.Fprintf(&b, "   Type: %s\n", src.Kind)
		fmt.Fprintf(&b, "   Relevance: %s\n", percent(src.RelevanceScore))
		fmt.Fprintf(&b, "   Citations: %d\n", src.CitationCount)
		fmt.Fprintf(&b, "   Why: %s\n\n", r.Reason)
	}
	return b.String(), nil
}

// HTML renders the markdown form as a standalone page.
func HTML(recs []recommend.Recommendation, generated time.Time) (string, error) {
	md, err := Markdown(recs, generated)
	if err != nil {
		return "", err
	}
	body, err := MarkdownToHTML(md)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{font-family:system-ui,sans-serif;max-width:46rem;margin:2rem auto;padding:0 1rem;line-height:1.5}h2{border-bottom:1px solid #ddd}</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body), nil
}

// MarkdownToHTML converts markdown with GitHub-flavoured extensions.
func MarkdownToHTML(md string) (string, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

func profileURL(handle string) string {
	return "https://x.com/" + handle
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
