// Package notify delivers ranked recommendations to the user.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

// Notifier hands a ranked list to the user. Returning nil acknowledges
// delivery; the pipeline marks items sent only after that.
type Notifier interface {
	Notify(ctx context.Context, recs []recommend.Recommendation) error
}

// Multi notifies every member and fails if any member fails.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, recs []recommend.Recommendation) error {
	var errs *multierror.Error
	for _, n := range m {
		if err := n.Notify(ctx, recs); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// FileNotifier writes recommendations to a file in one of the supported formats.
type FileNotifier struct {
	Format string
	Path   string
	now    func() time.Time
}

// NewFileNotifier creates a FileNotifier.
func NewFileNotifier(format, path string) (*FileNotifier, error) {
	format = strings.ToLower(format)
	if _, ok := textFormats[format]; !ok && format != "docx" {
		return nil, fmt.Errorf("unknown notification format %q", format)
	}
	return &FileNotifier{Format: format, Path: path, now: time.Now}, nil
}

// Notify implements Notifier.
func (n *FileNotifier) Notify(ctx context.Context, recs []recommend.Recommendation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(n.Path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	generated := n.now()
	if n.Format == "docx" {
		if err := writeDocx(n.Path, recs, generated); err != nil {
			return fmt.Errorf("writing %s: %w", n.Path, err)
		}
		return nil
	}

	body, err := Render(n.Format, recs, generated)
	if err != nil {
		return err
	}
	if err := os.WriteFile(n.Path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", n.Path, err)
	}
	return nil
}

// ConsoleNotifier prints a colored summary.
type ConsoleNotifier struct {
	Out io.Writer
}

// Notify implements Notifier.
func (n *ConsoleNotifier) Notify(_ context.Context, recs []recommend.Recommendation) error {
	out := n.Out
	if out == nil {
		out = color.Output
	}

	bold := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if len(recs) == 0 {
		fmt.Fprintln(out, gray("No new sources to recommend at this time."))
		return nil
	}

	fmt.Fprintf(out, "\n%s\n\n", bold(fmt.Sprintf("%d new source(s) to follow", len(recs))))
	for i, r := range recs {
		src := r.Source
		fmt.Fprintf(out, "%2d. %s %s\n", i+1, green(src.Name), gray("("+string(src.Kind)+")"))
		if src.URL != nil && *src.URL != "" && *src.URL != src.Name {
			fmt.Fprintf(out, "    %s\n", *src.URL)
		}
		fmt.Fprintf(out, "    relevance %.0f%%, %d citations, strength %.2f\n", src.RelevanceScore*100, src.CitationCount, r.Strength)
		fmt.Fprintf(out, "    %s\n", gray(r.Reason))
	}
	fmt.Fprintln(out)
	return nil
}
