// Package pipeline runs discovery passes: fetch primary content, merge the
// sources it cites into the store, then recommend and notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/TobiSchelling/AIDiscovery/internal/collect"
	"github.com/TobiSchelling/AIDiscovery/internal/config"
	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/extract"
	"github.com/TobiSchelling/AIDiscovery/internal/llm"
	"github.com/TobiSchelling/AIDiscovery/internal/notify"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
	"github.com/TobiSchelling/AIDiscovery/internal/report"
	"github.com/TobiSchelling/AIDiscovery/internal/scoring"
)

const citationSnippetLen = 280

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the outcome of one pass.
type Result struct {
	RunID  string
	DryRun bool
	Steps  []StepResult

	SourcesChecked int
	FetchFailures  int
	Candidates     int
	NewSources     int

	Recommendations []recommend.Recommendation
	// FetchErrors aggregates per-source fetch failures. They never fail the pass.
	FetchErrors error
	Report      *report.Report
	Usage       llm.Usage
}

// Deps are the collaborators of a Pipeline. Reporter may be nil.
type Deps struct {
	Config   *config.Config
	DB       *database.DB
	Fetcher  collect.Fetcher
	Notifier notify.Notifier
	Reporter *report.Writer
}

// Pipeline orchestrates discovery passes.
type Pipeline struct {
	cfg       *config.Config
	db        *database.DB
	fetcher   collect.Fetcher
	notifier  notify.Notifier
	reporter  *report.Writer
	extractor *extract.Extractor
	engine    *recommend.Engine
	now       func() time.Time
}

// New creates a pipeline.
func New(d Deps) *Pipeline {
	t := d.Config.Thresholds
	return &Pipeline{
		cfg:       d.Config,
		db:        d.DB,
		fetcher:   d.Fetcher,
		notifier:  d.Notifier,
		reporter:  d.Reporter,
		extractor: extract.New(d.Config.Discovery.DenyDomains),
		engine: recommend.New(recommend.Thresholds{
			MinRelevance: t.MinRelevanceScore,
			MinCitations: t.MinCitationCount,
			MaxAgeDays:   t.MaxSourceAgeDays,
		}),
		now: time.Now,
	}
}

// RegisterPrimarySources stores every configured primary source. Existing
// rows are kept as they are; a kind mismatch is logged and skipped.
func (p *Pipeline) RegisterPrimarySources() error {
	register := func(name string, u *string, kind database.SourceKind, handle *string) error {
		_, err := p.db.UpsertPrimary(name, u, kind, handle)
		if errors.Is(err, database.ErrKindConflict) {
			log.Printf("Primary source %q is already registered with a different kind, keeping the stored one", name)
			return nil
		}
		if err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
		return nil
	}

	for _, b := range p.cfg.PrimarySources.Blogs {
		feedURL := b.URL
		if err := register(b.Name, &feedURL, database.KindBlog, nil); err != nil {
			return err
		}
	}
	for _, s := range p.cfg.PrimarySources.Social {
		handle := s.Handle
		if err := register(s.Name, nil, database.KindSocial, &handle); err != nil {
			return err
		}
	}
	return nil
}

// candidate is one extracted reference together with where it was seen.
type candidate struct {
	primary database.PrimarySource
	content collect.Content
	ref     extract.CandidateRef
}

// Run executes one discovery pass. Fetch failures of single sources are
// reported in the result; storage and notification failures end the pass.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := p.now()
	r := &Result{RunID: uuid.NewString()}

	sources, err := p.configuredPrimaries()
	if err != nil {
		return r, err
	}
	scorer, err := p.scorer()
	if err != nil {
		return r, err
	}

	// Step 1: Fetch
	log.Printf("Step 1/4: Fetching %d primary sources...", len(sources))
	batches, fetchErr := collect.Collect(ctx, p.fetcher, sources, p.cfg.Discovery.Concurrency)
	if err := ctx.Err(); err != nil {
		return r, err
	}
	r.SourcesChecked = len(sources)
	r.FetchErrors = fetchErr
	var merr *multierror.Error
	if errors.As(fetchErr, &merr) {
		r.FetchFailures = len(merr.Errors)
	}

	candidates := p.extractCandidates(batches)
	r.Candidates = len(candidates)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d sources (%d failed), found %d candidates", len(sources)-r.FetchFailures, r.FetchFailures, len(candidates)),
		Err:     fetchErr,
	})

	if len(candidates) == 0 {
		log.Println("No candidates found, nothing to merge")
		return r, nil
	}

	// Step 2: Merge
	log.Printf("Step 2/4: Merging %d candidates...", len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		res, err := p.db.RecordSighting(c.primary.ID, p.sighting(scorer, c))
		if err != nil {
			return r, fmt.Errorf("merging %s: %w", c.ref.Name(), err)
		}
		if res.New {
			r.NewSources++
		}
	}
	for _, b := range batches {
		if b.Err != nil {
			continue
		}
		if err := p.db.TouchPrimary(b.Source.ID); err != nil {
			return r, err
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("Recorded %d citations, %d new sources", len(candidates), r.NewSources),
	})

	// Step 3: Recommend
	log.Println("Step 3/4: Ranking eligible sources...")
	recs, err := p.rank()
	if err != nil {
		return r, err
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}
	if err := p.notifier.Notify(ctx, recs); err != nil {
		return r, fmt.Errorf("notifying: %w", err)
	}
	for _, rec := range recs {
		if err := p.db.MarkSent(rec.Source.ID, rec.Reason); err != nil {
			return r, fmt.Errorf("marking %s sent: %w", rec.Source.Name, err)
		}
	}
	r.Recommendations = recs
	r.Steps = append(r.Steps, StepResult{
		Name:    "Recommend",
		Summary: fmt.Sprintf("Recommended %d sources", len(recs)),
	})

	// Step 4: Report
	if p.reporter != nil {
		log.Println("Step 4/4: Writing report...")
		r.Steps = append(r.Steps, p.runReport(ctx, r, scorer.Vocabulary(), recs))
	}

	if err := p.db.InsertRun(database.Run{
		ID:             r.RunID,
		StartedAt:      database.FormatTime(started),
		FinishedAt:     database.FormatTime(p.now()),
		SourcesChecked: r.SourcesChecked,
		FetchFailures:  r.FetchFailures,
		Candidates:     r.Candidates,
		NewSources:     r.NewSources,
		Recommended:    len(recs),
	}); err != nil {
		return r, err
	}
	return r, nil
}

// DryRun reports what a pass would work on without fetching or writing.
func (p *Pipeline) DryRun(ctx context.Context) (*Result, error) {
	r := &Result{DryRun: true}

	blogs, social := len(p.cfg.PrimarySources.Blogs), len(p.cfg.PrimarySources.Social)
	r.SourcesChecked = blogs + social
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("[dry-run] Would fetch %d blogs and %d social accounts", blogs, social),
	})

	scorer, err := p.scorer()
	if err != nil {
		return r, err
	}
	stats, err := p.db.GetStats()
	if err != nil {
		return r, err
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("[dry-run] %d sources tracked, %d citations, scoring against %d interests", stats.DiscoveredSources, stats.Citations, len(scorer.Vocabulary())),
	})

	if err := ctx.Err(); err != nil {
		return r, err
	}
	recs, err := p.rank()
	if err != nil {
		return r, err
	}
	r.Recommendations = recs
	r.Steps = append(r.Steps, StepResult{
		Name:    "Recommend",
		Summary: fmt.Sprintf("[dry-run] %d sources currently eligible", len(recs)),
	})
	return r, nil
}

func (p *Pipeline) configuredPrimaries() ([]database.PrimarySource, error) {
	var names []string
	for _, b := range p.cfg.PrimarySources.Blogs {
		names = append(names, b.Name)
	}
	for _, s := range p.cfg.PrimarySources.Social {
		names = append(names, s.Name)
	}

	sources := make([]database.PrimarySource, 0, len(names))
	for _, name := range names {
		src, err := p.db.GetPrimaryByName(name)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, fmt.Errorf("primary source %q is not registered", name)
		}
		sources = append(sources, *src)
	}
	return sources, nil
}

func (p *Pipeline) scorer() (*scoring.Scorer, error) {
	stored, err := p.db.GetActiveInterestTerms()
	if err != nil {
		return nil, err
	}
	return scoring.New(scoring.MergeVocabulary(p.cfg.Interests, stored)), nil
}

func (p *Pipeline) rank() ([]recommend.Recommendation, error) {
	t := p.engine.Thresholds()
	eligible, err := p.db.QueryEligible(t.MinRelevance, t.MinCitations)
	if err != nil {
		return nil, err
	}
	return p.engine.Rank(eligible), nil
}

func (p *Pipeline) extractCandidates(batches []collect.Batch) []candidate {
	var out []candidate
	for _, b := range batches {
		for _, content := range b.Contents {
			for _, ref := range p.extractor.Extract(content.Text) {
				if selfReference(b.Source, ref) {
					continue
				}
				out = append(out, candidate{primary: b.Source, content: content, ref: ref})
			}
		}
	}
	return out
}

func (p *Pipeline) sighting(scorer *scoring.Scorer, c candidate) database.Sighting {
	name := c.ref.Name()
	score := scorer.ScoreName(name)
	if p.cfg.Scoring.UseContent {
		if combined := scorer.CombinedScore(name, c.content.Text); combined > score {
			score = combined
		}
	}

	s := database.Sighting{
		Name:  name,
		Kind:  c.ref.SourceKind(),
		Score: score,
	}
	switch c.ref.Kind {
	case extract.RefURL:
		s.URL = &name
	case extract.RefMention:
		handle := strings.TrimPrefix(name, "@")
		s.Handle = &handle
	}
	if c.content.Published != nil {
		published := database.FormatTime(*c.content.Published)
		s.LastActive = &published
	}
	if text := snippet(c.content.Text, c.ref.Value); text != "" {
		s.Text = &text
	}
	return s
}

func (p *Pipeline) runReport(ctx context.Context, r *Result, vocabulary []string, recs []recommend.Recommendation) StepResult {
	rep, usage, err := p.reporter.Write(ctx, vocabulary, recs)
	r.Usage.Merge(usage)
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	r.Report = rep

	runID := r.RunID
	if _, err := p.db.InsertReport(&runID, rep.Markdown); err != nil {
		return StepResult{Name: "Report", Err: err}
	}

	path := p.cfg.OutputPath(p.cfg.Report.OutputFile)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return StepResult{Name: "Report", Err: err}
		}
		if err := os.WriteFile(path, []byte(rep.Markdown), 0o644); err != nil {
			return StepResult{Name: "Report", Err: fmt.Errorf("writing report: %w", err)}
		}
	}

	via := "plain"
	if rep.Provider != "" {
		via = rep.Provider
	}
	return StepResult{
		Name:    "Report",
		Summary: fmt.Sprintf("Report written (%s, %d tokens, $%.4f)", via, usage.InputTokens+usage.OutputTokens, usage.Cost),
	}
}

// selfReference reports whether ref points back at the primary source that
// produced it: its own handle, or a link to its own host.
func selfReference(src database.PrimarySource, ref extract.CandidateRef) bool {
	switch ref.Kind {
	case extract.RefMention:
		return src.Handle != nil && strings.EqualFold(strings.TrimPrefix(*src.Handle, "@"), ref.Value)
	case extract.RefURL:
		if src.URL == nil {
			return false
		}
		own, err := url.Parse(*src.URL)
		if err != nil || own.Hostname() == "" {
			return false
		}
		cited, err := url.Parse(ref.Name())
		if err != nil {
			return false
		}
		return strings.EqualFold(trimWWW(own.Hostname()), trimWWW(cited.Hostname()))
	}
	return false
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// snippet returns up to citationSnippetLen characters of text around the
// first occurrence of value.
func snippet(text, value string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= citationSnippetLen {
		return text
	}
	start := 0
	if i := strings.Index(text, value); i >= 0 {
		start = len([]rune(text[:i])) - citationSnippetLen/2
	}
	if start < 0 {
		start = 0
	}
	end := start + citationSnippetLen
	if end > len(runes) {
		end = len(runes)
		start = end - citationSnippetLen
	}
	return strings.TrimSpace(string(runes[start:end]))
}
