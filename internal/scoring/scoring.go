// Package scoring computes lexical relevance of candidate sources against an
// interest vocabulary.
package scoring

import "strings"

const (
	// NameFloor is returned by ScoreName when no term matches.
	NameFloor = 0.3
	// Neutral is returned when the vocabulary is empty.
	Neutral = 0.5

	nameWeight    = 0.4
	contentWeight = 0.6
)

// Scorer holds the interest vocabulary for one run.
type Scorer struct {
	terms []string
}

// New creates a Scorer. Terms are lowercased; blanks and repeats are dropped.
func New(vocabulary []string) *Scorer {
	return &Scorer{terms: normalize(vocabulary)}
}

// Vocabulary returns the normalized terms in order.
func (s *Scorer) Vocabulary() []string {
	out := make([]string, len(s.terms))
	copy(out, s.terms)
	return out
}

// ScoreName scores a source name or handle.
func (s *Scorer) ScoreName(name string) float64 {
	if name == "" {
		return 0
	}
	if len(s.terms) == 0 {
		return Neutral
	}
	if m := s.matches(name); m > 0 {
		return s.fraction(m)
	}
	return NameFloor
}

// ScoreContent scores the text surrounding a reference. Empty content scores
// 0; an empty vocabulary scores Neutral, the same as ScoreName.
func (s *Scorer) ScoreContent(content string) float64 {
	if content == "" {
		return 0
	}
	if len(s.terms) == 0 {
		return Neutral
	}
	return s.fraction(s.matches(content))
}

// CombinedScore weights the name score at 40% and the content score at 60%.
// Missing content contributes 0.
func (s *Scorer) CombinedScore(name, content string) float64 {
	score := nameWeight * s.ScoreName(name)
	if content != "" {
		score += contentWeight * s.ScoreContent(content)
	}
	return clamp(score)
}

func (s *Scorer) matches(text string) int {
	text = strings.ToLower(text)
	n := 0
	for _, t := range s.terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func (s *Scorer) fraction(matches int) float64 {
	return clamp(float64(matches) / float64(len(s.terms)))
}

// MergeVocabulary joins configured interests with stored ones, keeping the
// first occurrence of each term.
func MergeVocabulary(configured, stored []string) []string {
	all := make([]string, 0, len(configured)+len(stored))
	all = append(all, configured...)
	all = append(all, stored...)
	return normalize(all)
}

func normalize(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
