package database

import (
	"fmt"
	"strings"
)

// SourceKind discriminates blogs from social accounts.
type SourceKind string

const (
	KindBlog   SourceKind = "blog"
	KindSocial SourceKind = "social"
)

// ParseSourceKind validates a kind name. "twitter" and "x" are accepted as
// aliases for social.
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blog", "rss":
		return KindBlog, nil
	case "social", "twitter", "x":
		return KindSocial, nil
	}
	return "", fmt.Errorf("invalid source kind %q", s)
}

// Valid reports whether k is one of the known kinds.
func (k SourceKind) Valid() bool {
	return k == KindBlog || k == KindSocial
}

// kindFromColumn maps stored source_type values, including legacy ones, to a kind.
func kindFromColumn(s string) SourceKind {
	if k, err := ParseSourceKind(s); err == nil {
		return k
	}
	return KindBlog
}

// Table selects which relation LookupByName searches.
type Table int

const (
	TableDiscovered Table = iota
	TablePrimary
)

// PrimarySource is a trusted, manually configured origin.
type PrimarySource struct {
	ID          int64
	Name        string
	URL         *string
	Handle      *string
	Kind        SourceKind
	LastChecked *string
	CreatedAt   *string
}

// DiscoveredSource is a candidate second-degree source.
type DiscoveredSource struct {
	ID                   int64
	Name                 string
	URL                  *string
	Handle               *string
	Kind                 SourceKind
	RelevanceScore       float64
	CitationCount        int
	LastActive           *string
	DiscoveredAt         *string
	RecommendationSent   bool
	RecommendationSentAt *string
}

// Citation records that a primary source referenced a discovered source.
type Citation struct {
	ID           int64
	PrimaryID    int64
	PrimaryName  string
	DiscoveredID int64
	Text         *string
	Date         *string
}

// Recommendation is a historical record of a sent recommendation.
type Recommendation struct {
	ID             int64
	SourceID       int64
	SourceName     string
	Date           *string
	RelevanceScore float64
	Reasoning      *string
}

// Sighting is one observation of a candidate source inside primary content.
type Sighting struct {
	Name       string
	URL        *string
	Handle     *string
	Kind       SourceKind
	Score      float64
	LastActive *string
	Text       *string
}

// SightingResult describes the stored state after RecordSighting.
type SightingResult struct {
	ID             int64
	New            bool
	RelevanceScore float64
	CitationCount  int
}

// Interest is a user-managed interest term.
type Interest struct {
	ID        int64
	Term      string
	IsActive  bool
	CreatedAt *string
}

// Run holds metadata about one discovery pass.
type Run struct {
	ID             string
	StartedAt      string
	FinishedAt     string
	SourcesChecked int
	FetchFailures  int
	Candidates     int
	NewSources     int
	Recommended    int
}

// Report is a narrative discovery report.
type Report struct {
	ID           int64
	RunID        *string
	BodyMarkdown string
	GeneratedAt  *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	PrimarySources    int
	DiscoveredSources int
	Citations         int
	Recommended       int
	Recommendations   int
	TotalInterests    int
	ActiveInterests   int
	Runs              int
}
