// Package collect fetches raw content from primary sources.
package collect

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/AIDiscovery/internal/config"
	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/fetch"
)

// Content is one raw blob from a primary source: a feed entry or a post.
type Content struct {
	Text      string
	Link      string
	Published *time.Time
}

// Fetcher returns the recent content of one primary source.
type Fetcher interface {
	Fetch(ctx context.Context, src database.PrimarySource) ([]Content, error)
}

// FetchError is a failed fetch for one primary source. It never aborts a pass.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Router dispatches to a Fetcher by source kind.
type Router struct {
	Blog   Fetcher
	Social Fetcher
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, src database.PrimarySource) ([]Content, error) {
	var f Fetcher
	switch src.Kind {
	case database.KindBlog:
		f = r.Blog
	case database.KindSocial:
		f = r.Social
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher configured for %s sources", src.Kind)
	}
	return f.Fetch(ctx, src)
}

// NewFetchers builds the fetchers the configuration needs. Social accounts
// without a bearer token are a configuration error, reported up front.
func NewFetchers(cfg *config.Config) (*Router, error) {
	timeout := time.Duration(cfg.Discovery.FetchTimeoutSeconds) * time.Second

	var pages *fetch.PageFetcher
	if cfg.Discovery.FullContent {
		pages = fetch.NewPageFetcher(timeout)
	}
	r := &Router{Blog: NewFeedFetcher(cfg.Discovery.MaxEntriesPerFeed, timeout, pages)}

	if len(cfg.PrimarySources.Social) > 0 {
		env := cfg.Discovery.SocialBearerTokenEnv
		token := os.Getenv(env)
		if token == "" {
			return nil, &config.ConfigError{
				Field:  "discovery.social_bearer_token_env",
				Reason: fmt.Sprintf("social accounts are configured but $%s is not set", env),
			}
		}
		r.Social = NewSocialFetcher(SocialOptions{
			Token:             token,
			MaxPosts:          cfg.Discovery.MaxPostsPerAccount,
			RequestsPerMinute: cfg.Discovery.SocialRequestsPerMinute,
			Timeout:           timeout,
		})
	}
	return r, nil
}

// Batch is the fetch outcome for one primary source.
type Batch struct {
	Source   database.PrimarySource
	Contents []Content
	Err      error
}

// Collect fetches every source with at most limit fetches in flight. Batches
// come back in source order. A failing source leaves its batch empty and is
// folded into the returned *multierror.Error; the other sources still run.
// Only cancellation of ctx stops the fan-out early.
func Collect(ctx context.Context, f Fetcher, sources []database.PrimarySource, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 1
	}
	batches := make([]Batch, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, src := range sources {
		batches[i].Source = src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				batches[i].Err = err
				return nil
			}
			contents, err := f.Fetch(gctx, src)
			if err != nil {
				batches[i].Err = &FetchError{Source: src.Name, Err: err}
				log.Printf("Failed to fetch %s: %v", src.Name, err)
				return nil
			}
			batches[i].Contents = contents
			log.Printf("Fetched %d items from %s", len(contents), src.Name)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return batches, err
	}

	var errs *multierror.Error
	for _, b := range batches {
		if b.Err != nil {
			errs = multierror.Append(errs, b.Err)
		}
	}
	return batches, errs.ErrorOrNil()
}
