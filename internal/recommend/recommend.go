// Package recommend applies threshold policy to discovered sources and ranks
// the ones worth recommending.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
)

// citationSaturation is the citation count at which the citation half of the
// ranking strength reaches its maximum.
const citationSaturation = 10

// Thresholds gate recommendation.
type Thresholds struct {
	MinRelevance float64
	MinCitations int
	MaxAgeDays   int
}

// DefaultThresholds returns 0.7 relevance, 2 citations, 90 days.
func DefaultThresholds() Thresholds {
	return Thresholds{MinRelevance: 0.7, MinCitations: 2, MaxAgeDays: 90}
}

// Recommendation is an accepted source with its reason and ranking strength.
type Recommendation struct {
	Source   database.DiscoveredSource
	Reason   string
	Strength float64
}

// Engine decides and ranks.
type Engine struct {
	thresholds Thresholds
	now        func() time.Time
}

// New creates an Engine using the wall clock.
func New(t Thresholds) *Engine {
	return &Engine{thresholds: t, now: time.Now}
}

// SetClock overrides the clock used for freshness checks.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Decide accepts or rejects a source. Checks run in order: relevance,
// citations, then freshness when last_active parses. The reason names the
// failing check, or lists the positive evidence on acceptance.
func (e *Engine) Decide(src database.DiscoveredSource) (bool, string) {
	t := e.thresholds

	if src.RelevanceScore < t.MinRelevance {
		return false, fmt.Sprintf("Relevance score too low: %s < %s", belowThreshold(src.RelevanceScore, t.MinRelevance), formatFloat(t.MinRelevance))
	}
	reasons := []string{fmt.Sprintf("Good relevance: %.2f", src.RelevanceScore)}

	if src.CitationCount < t.MinCitations {
		return false, fmt.Sprintf("Not enough citations: %d < %d", src.CitationCount, t.MinCitations)
	}
	reasons = append(reasons, fmt.Sprintf("Cited %d times by trusted sources", src.CitationCount))

	if age, ok := e.ageDays(src.LastActive); ok {
		if age > t.MaxAgeDays {
			return false, fmt.Sprintf("Source inactive for too long: %d days", age)
		}
		reasons = append(reasons, fmt.Sprintf("Actively posting (%d days ago)", age))
	}

	return true, strings.Join(reasons, " | ")
}

// Strength is 0.5·relevance + 0.5·min(citations/10, 1).
func Strength(src database.DiscoveredSource) float64 {
	cited := math.Min(float64(src.CitationCount)/citationSaturation, 1)
	return 0.5*src.RelevanceScore + 0.5*cited
}

// Rank decides every source, keeps the accepted ones and orders them by
// strength. Equal strengths keep their input order.
func (e *Engine) Rank(sources []database.DiscoveredSource) []Recommendation {
	var recs []Recommendation
	for _, src := range sources {
		ok, reason := e.Decide(src)
		if !ok {
			continue
		}
		recs = append(recs, Recommendation{Source: src, Reason: reason, Strength: Strength(src)})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Strength > recs[j].Strength
	})
	return recs
}

// ageDays returns whole days since lastActive. Missing or unparsable values
// report ok=false.
func (e *Engine) ageDays(lastActive *string) (int, bool) {
	if lastActive == nil || *lastActive == "" {
		return 0, false
	}
	t, err := database.ParseTime(*lastActive)
	if err != nil {
		return 0, false
	}
	return int(math.Floor(e.now().Sub(t).Hours() / 24)), true
}

// belowThreshold formats a rejected score with two decimals, or in full when
// rounding would make it read as meeting the threshold.
func belowThreshold(score, threshold float64) string {
	s := fmt.Sprintf("%.2f", score)
	if rounded, err := strconv.ParseFloat(s, 64); err == nil && rounded >= threshold {
		return formatFloat(score)
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
