// Package report writes the narrative discovery report for a pass.
package report

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/llm"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

const reportPrompt = `You are writing a short discovery report for someone who follows AI research and engineering closely.

Their interests: %s

These sources were cited repeatedly by people they already trust and are being recommended now:

%s

Write an introduction of 2-3 sentences on what these sources have in common, and one sentence per source saying why it is worth following. Use only the facts given above.

Respond with ONLY this JSON:
{
    "introduction": "Two or three sentences.",
    "sources": [
        {"name": "exact source name from the list", "why": "One sentence."}
    ]
}`

// Report is a rendered markdown report.
type Report struct {
	Markdown  string
	Generated time.Time
	// Provider is empty when the report was built without an LLM.
	Provider string
}

type llmReport struct {
	Introduction string `json:"introduction"`
	Sources      []struct {
		Name string `json:"name"`
		Why  string `json:"why"`
	} `json:"sources"`
}

// Writer builds reports. A nil provider always produces the plain report.
type Writer struct {
	provider  llm.Provider
	maxTokens int
	now       func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(provider llm.Provider, maxTokens int) *Writer {
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &Writer{provider: provider, maxTokens: maxTokens, now: time.Now}
}

// Write renders a report for recs. Generation failures fall back to the plain
// report and are only logged; the returned Usage covers every call made.
func (w *Writer) Write(ctx context.Context, interests []string, recs []recommend.Recommendation) (*Report, llm.Usage, error) {
	var usage llm.Usage
	r := &Report{Generated: w.now()}

	if len(recs) == 0 || w.provider == nil {
		r.Markdown = plain(recs, nil, r.Generated)
		return r, usage, nil
	}

	prompt := fmt.Sprintf(reportPrompt, strings.Join(interests, ", "), describe(recs))
	c, err := w.provider.Generate(ctx, prompt, w.maxTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, usage, ctx.Err()
		}
		log.Printf("Report generation failed, using plain report: %v", err)
		r.Markdown = plain(recs, nil, r.Generated)
		return r, usage, nil
	}
	usage.Record("report", c)

	var parsed llmReport
	if err := llm.ParseJSON(c.Text, &parsed); err != nil {
		log.Printf("Report response unusable, using plain report: %v", err)
		r.Markdown = plain(recs, nil, r.Generated)
		return r, usage, nil
	}

	r.Provider = w.provider.Name()
	r.Markdown = plain(recs, &parsed, r.Generated)
	return r, usage, nil
}

func describe(recs []recommend.Recommendation) string {
	var parts []string
	for _, rec := range recs {
		src := rec.Source
		line := fmt.Sprintf("- %s (%s): relevance %.2f, cited %d times", src.Name, src.Kind, src.RelevanceScore, src.CitationCount)
		if src.LastActive != nil {
			line += ", last active " + database.FormatDisplay(src.LastActive)
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

// plain assembles the markdown. Narrative pieces from the LLM are used when
// present and matched by source name.
func plain(recs []recommend.Recommendation, narrative *llmReport, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Discovery Report, %s\n\n", generated.Format("Jan 02, 2006"))

	if len(recs) == 0 {
		b.WriteString("No new sources met the recommendation thresholds in this pass.\n")
		return b.String()
	}

	why := map[string]string{}
	if narrative != nil {
		if intro := strings.TrimSpace(narrative.Introduction); intro != "" {
			b.WriteString(intro + "\n\n")
		}
		for _, s := range narrative.Sources {
			why[s.Name] = strings.TrimSpace(s.Why)
		}
	} else {
		fmt.Fprintf(&b, "%d source(s) passed the recommendation thresholds.\n\n", len(recs))
	}

	for _, rec := range recs {
		src := rec.Source
		fmt.Fprintf(&b, "## %s\n\n", src.Name)
		if w := why[src.Name]; w != "" {
			b.WriteString(w + "\n\n")
		}
		fmt.Fprintf(&b, "%s\n\n", rec.Reason)
	}
	return b.String()
}
