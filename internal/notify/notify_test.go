package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

var generated = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func str(s string) *string { return &s }

func sampleRecs() []recommend.Recommendation {
	return []recommend.Recommendation{
		{
			Source: database.DiscoveredSource{
				ID: 1, Name: "https://safety.example", URL: str("https://safety.example"),
				Kind: database.KindBlog, RelevanceScore: 0.8, CitationCount: 3,
			},
			Reason:   "Good relevance: 0.80 | Cited 3 times by trusted sources",
			Strength: 0.55,
		},
		{
			Source: database.DiscoveredSource{
				ID: 2, Name: "@swyx", Handle: str("swyx"),
				Kind: database.KindSocial, RelevanceScore: 0.75, CitationCount: 2,
			},
			Reason:   "Good relevance: 0.75 | Cited 2 times by trusted sources",
			Strength: 0.475,
		},
	}
}

func TestMarkdown(t *testing.T) {
	md, err := Markdown(sampleRecs(), generated)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "# AI Discovery Recommendations\n\nGenerated: 2026-03-02 09:30:00"))
	assert.Contains(t, md, "## https://safety.example\n")
	assert.Contains(t, md, "- **URL**: [https://safety.example](https://safety.example)")
	assert.Contains(t, md, "- **Social**: [@swyx](https://x.com/swyx)")
	assert.Contains(t, md, "- **Relevance Score**: 80.00%")
	assert.Contains(t, md, "- **Citations**: 3 times")
	assert.Less(t, strings.Index(md, "safety.example"), strings.Index(md, "@swyx"), "ranking order is kept")
}

func TestMarkdownEmpty(t *testing.T) {
	md, _ := Markdown(nil, generated)
	assert.Equal(t, "# AI Discovery Recommendations\n\nNo new sources to recommend at this time.\n", md)
}

func TestJSON(t *testing.T) {
	out, err := JSON(sampleRecs(), generated)
	require.NoError(t, err)

	var doc struct {
		GeneratedAt     string `json:"generated_at"`
		Count           int    `json:"count"`
		Recommendations []struct {
			Name      string  `json:"name"`
			URL       *string `json:"url"`
			Handle    *string `json:"handle"`
			Type      string  `json:"type"`
			Reasoning string  `json:"reasoning"`
		} `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "2026-03-02T09:30:00Z", doc.GeneratedAt)
	assert.Equal(t, 2, doc.Count)
	assert.Equal(t, "social", doc.Recommendations[1].Type)
	assert.Nil(t, doc.Recommendations[1].URL)
	assert.Equal(t, "swyx", *doc.Recommendations[1].Handle)

	empty, _ := JSON(nil, generated)
	assert.Contains(t, empty, `"recommendations": []`)
}

func TestText(t *testing.T) {
	out, err := Text(sampleRecs(), generated)
	require.NoError(t, err)
	assert.Contains(t, out, "1. https://safety.example\n")
	assert.Contains(t, out, "2. @swyx\n   Social: @swyx\n")
	assert.Contains(t, out, "   Why: Good relevance: 0.75")
}

func TestHTML(t *testing.T) {
	out, err := HTML(sampleRecs(), generated)
	require.NoError(t, err)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<h2>@swyx</h2>")
	assert.Contains(t, out, `<a href="https://x.com/swyx">@swyx</a>`)
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render("yaml", nil, generated)
	assert.Error(t, err)
}

func TestFileNotifier(t *testing.T) {
	for _, format := range []string{"markdown", "json", "text", "html", "docx"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "recommendations."+format)
			n, err := NewFileNotifier(format, path)
			require.NoError(t, err)
			n.now = func() time.Time { return generated }

			require.NoError(t, n.Notify(context.Background(), sampleRecs()))
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}
}

func TestNewFileNotifierRejectsUnknownFormat(t *testing.T) {
	_, err := NewFileNotifier("pdf", "x.pdf")
	assert.Error(t, err)
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&ConsoleNotifier{Out: &buf}).Notify(context.Background(), sampleRecs()))
	out := buf.String()
	assert.Contains(t, out, "2 new source(s) to follow")
	assert.Contains(t, out, "@swyx")
	assert.Contains(t, out, "relevance 80%, 3 citations")

	buf.Reset()
	require.NoError(t, (&ConsoleNotifier{Out: &buf}).Notify(context.Background(), nil))
	assert.Contains(t, buf.String(), "No new sources")
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, []recommend.Recommendation) error {
	f.calls++
	return errors.New("disk full")
}

func TestMultiNotifiesAllAndAggregates(t *testing.T) {
	first, second := &failingNotifier{}, &failingNotifier{}
	var buf bytes.Buffer

	err := Multi{first, &ConsoleNotifier{Out: &buf}, second}.Notify(context.Background(), sampleRecs())
	require.Error(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.NotEmpty(t, buf.String())

	assert.NoError(t, Multi{}.Notify(context.Background(), nil))
}
