package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/llm"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

type mockProvider struct {
	response string
	err      error
	prompts  []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (llm.Completion, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return llm.Completion{}, m.err
	}
	return llm.Completion{Text: m.response, Model: "claude-3-5-haiku", InputTokens: 1000, OutputTokens: 200}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func recs() []recommend.Recommendation {
	return []recommend.Recommendation{
		{Source: database.DiscoveredSource{Name: "@swyx", Kind: database.KindSocial, RelevanceScore: 0.8, CitationCount: 3},
			Reason: "Good relevance: 0.80 | Cited 3 times by trusted sources"},
		{Source: database.DiscoveredSource{Name: "https://evals.example", Kind: database.KindBlog, RelevanceScore: 0.75, CitationCount: 2},
			Reason: "Good relevance: 0.75 | Cited 2 times by trusted sources"},
	}
}

func newWriter(p llm.Provider) *Writer {
	w := NewWriter(p, 0)
	w.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	return w
}

func TestWriteWithProvider(t *testing.T) {
	p := &mockProvider{response: "```json\n" + `{
		"introduction": "Both sources focus on agent evaluation.",
		"sources": [{"name": "@swyx", "why": "Writes about AI engineering."}]
	}` + "\n```"}

	r, usage, err := newWriter(p).Write(context.Background(), []string{"agents", "evals"}, recs())
	require.NoError(t, err)

	assert.Equal(t, "mock", r.Provider)
	assert.True(t, strings.HasPrefix(r.Markdown, "# Discovery Report, Mar 02, 2026\n\nBoth sources focus on agent evaluation."))
	assert.Contains(t, r.Markdown, "## @swyx\n\nWrites about AI engineering.")
	assert.Contains(t, r.Markdown, "## https://evals.example\n\nGood relevance: 0.75")

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "Their interests: agents, evals")
	assert.Contains(t, p.prompts[0], "- @swyx (social): relevance 0.80, cited 3 times")

	assert.Len(t, usage.Calls, 1)
	assert.Equal(t, int64(1000), usage.InputTokens)
	assert.Positive(t, usage.Cost)
}

func TestWriteFallsBackOnError(t *testing.T) {
	r, usage, err := newWriter(&mockProvider{err: errors.New("connection refused")}).Write(context.Background(), nil, recs())
	require.NoError(t, err)
	assert.Empty(t, r.Provider)
	assert.Contains(t, r.Markdown, "2 source(s) passed the recommendation thresholds.")
	assert.Empty(t, usage.Calls)
}

func TestWriteFallsBackOnUnparsableResponse(t *testing.T) {
	r, usage, err := newWriter(&mockProvider{response: "I cannot help with that."}).Write(context.Background(), nil, recs())
	require.NoError(t, err)
	assert.Empty(t, r.Provider)
	assert.Len(t, usage.Calls, 1, "tokens spent on a bad response still count")
}

func TestWriteWithoutProvider(t *testing.T) {
	r, _, err := newWriter(nil).Write(context.Background(), nil, recs())
	require.NoError(t, err)
	assert.Contains(t, r.Markdown, "## @swyx")
}

func TestWriteNoRecommendations(t *testing.T) {
	p := &mockProvider{}
	r, _, err := newWriter(p).Write(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Contains(t, r.Markdown, "No new sources met the recommendation thresholds")
	assert.Empty(t, p.prompts)
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newWriter(&mockProvider{err: context.Canceled}).Write(ctx, nil, recs())
	assert.ErrorIs(t, err, context.Canceled)
}
