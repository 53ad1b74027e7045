package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/httputil"
)

const (
	defaultSocialBaseURL = "https://api.twitter.com"
	defaultMaxPosts      = 15
	// The timeline endpoint accepts 5 to 100 results per page.
	minPageSize = 5
	maxPageSize = 100
)

// SocialOptions configures a SocialFetcher.
type SocialOptions struct {
	Token             string
	BaseURL           string
	MaxPosts          int
	RequestsPerMinute int
	Timeout           time.Duration
}

// SocialFetcher reads recent posts of social primaries through the X API v2.
type SocialFetcher struct {
	baseURL  string
	token    string
	maxPosts int
	client   *http.Client
	limiter  *rate.Limiter
}

// NewSocialFetcher creates a SocialFetcher. Requests are paced by a token
// bucket; RequestsPerMinute <= 0 disables pacing.
func NewSocialFetcher(opts SocialOptions) *SocialFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultSocialBaseURL
	}
	if opts.MaxPosts <= 0 {
		opts.MaxPosts = defaultMaxPosts
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return &SocialFetcher{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		maxPosts: opts.MaxPosts,
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  limiter,
	}
}

type apiUser struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiTimeline struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
		Entities  struct {
			URLs []struct {
				URL         string `json:"url"`
				ExpandedURL string `json:"expanded_url"`
			} `json:"urls"`
		} `json:"entities"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Fetch implements Fetcher.
func (f *SocialFetcher) Fetch(ctx context.Context, src database.PrimarySource) ([]Content, error) {
	if src.Handle == nil || *src.Handle == "" {
		return nil, fmt.Errorf("social account %q has no handle", src.Name)
	}
	handle := strings.TrimPrefix(*src.Handle, "@")

	var user apiUser
	if err := f.get(ctx, "/2/users/by/username/"+url.PathEscape(handle), nil, &user); err != nil {
		return nil, fmt.Errorf("looking up @%s: %w", handle, err)
	}
	if user.Data.ID == "" {
		return nil, fmt.Errorf("looking up @%s: %s", handle, describe(user.Errors))
	}

	params := url.Values{
		"max_results":  {strconv.Itoa(pageSize(f.maxPosts))},
		"tweet.fields": {"created_at,entities"},
	}
	var timeline apiTimeline
	if err := f.get(ctx, "/2/users/"+user.Data.ID+"/tweets", params, &timeline); err != nil {
		return nil, fmt.Errorf("timeline of @%s: %w", handle, err)
	}

	var contents []Content
	for _, post := range timeline.Data {
		if len(contents) >= f.maxPosts {
			break
		}
		text := post.Text
		for _, u := range post.Entities.URLs {
			if u.URL != "" && u.ExpandedURL != "" {
				text = strings.ReplaceAll(text, u.URL, u.ExpandedURL)
			}
		}
		c := Content{
			Text: text,
			Link: fmt.Sprintf("https://x.com/%s/status/%s", handle, post.ID),
		}
		if t, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
			c.Published = &t
		}
		contents = append(contents, c)
	}
	return contents, nil
}

func (f *SocialFetcher) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := f.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := httputil.DoWithRetry(ctx, f.client, req, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func pageSize(maxPosts int) int {
	switch {
	case maxPosts < minPageSize:
		return minPageSize
	case maxPosts > maxPageSize:
		return maxPageSize
	}
	return maxPosts
}

func describe(errs []apiError) string {
	if len(errs) == 0 {
		return "user not found"
	}
	if errs[0].Detail != "" {
		return errs[0].Detail
	}
	return errs[0].Title
}
