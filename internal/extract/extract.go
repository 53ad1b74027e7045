// Package extract pulls candidate source references out of raw text.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
)

// RefKind tags a CandidateRef.
type RefKind int

const (
	RefURL RefKind = iota
	RefMention
)

func (k RefKind) String() string {
	if k == RefMention {
		return "mention"
	}
	return "url"
}

// CandidateRef is an untyped reference found in content: a URL or a handle
// without the leading @.
type CandidateRef struct {
	Kind  RefKind
	Value string
}

// Name returns the key the Store deduplicates on.
func (r CandidateRef) Name() string {
	if r.Kind == RefMention {
		return "@" + strings.ToLower(r.Value)
	}
	return strings.TrimRight(r.Value, ".,;:!?'\"]}>")
}

// SourceKind maps URLs to blogs and mentions to social accounts.
func (r CandidateRef) SourceKind() database.SourceKind {
	if r.Kind == RefMention {
		return database.KindSocial
	}
	return database.KindBlog
}

// DefaultDenyDomains are link destinations that are never sources themselves.
var DefaultDenyDomains = []string{"facebook.com", "instagram.com"}

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s)]*`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// Extractor finds URLs and mentions in text, skipping denied domains.
type Extractor struct {
	deny []string
}

// New creates an Extractor. Domains match the host exactly or as a suffix.
func New(denyDomains []string) *Extractor {
	deny := make([]string, 0, len(denyDomains))
	for _, d := range denyDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			deny = append(deny, d)
		}
	}
	return &Extractor{deny: deny}
}

var defaultExtractor = New(DefaultDenyDomains)

// Extract runs the default Extractor over content.
func Extract(content string) []CandidateRef {
	return defaultExtractor.Extract(content)
}

// Extract returns every URL in order of appearance, then every mention.
// Repeated references are kept.
func (e *Extractor) Extract(content string) []CandidateRef {
	if content == "" {
		return nil
	}

	var refs []CandidateRef
	for _, u := range urlPattern.FindAllString(content, -1) {
		if e.denied(u) {
			continue
		}
		refs = append(refs, CandidateRef{Kind: RefURL, Value: u})
	}
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, CandidateRef{Kind: RefMention, Value: m[1]})
	}
	return refs
}

func (e *Extractor) denied(raw string) bool {
	if len(e.deny) == 0 {
		return false
	}
	host := hostOf(raw)
	for _, d := range e.deny {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	// Fall back to the text between the scheme and the first slash.
	rest := raw[strings.Index(raw, "://")+3:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}
