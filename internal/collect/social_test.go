package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
)

func socialServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/by/username/karpathy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"id":"42","username":"karpathy"}}`))
	})
	mux.HandleFunc("/2/users/by/username/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"title":"Not Found Error","detail":"Could not find user with username: [ghost]."}]}`))
	})
	mux.HandleFunc("/2/users/42/tweets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("max_results"))
		w.Write([]byte(`{"data":[
			{"id":"1","text":"great thread by @swyx https://t.co/abc","created_at":"2026-03-01T09:30:00.000Z",
			 "entities":{"urls":[{"url":"https://t.co/abc","expanded_url":"https://latent.example/p/1"}]}},
			{"id":"2","text":"second","created_at":"2026-02-27T09:30:00.000Z"},
			{"id":"3","text":"third","created_at":"not a date"}
		]}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestSocialFetcher(t *testing.T) {
	ts := socialServer(t)
	f := NewSocialFetcher(SocialOptions{Token: "token", BaseURL: ts.URL, MaxPosts: 2})

	contents, err := f.Fetch(context.Background(), database.PrimarySource{Name: "Karpathy", Handle: strPtr("@karpathy")})
	require.NoError(t, err)
	require.Len(t, contents, 2)

	assert.Equal(t, "great thread by @swyx https://latent.example/p/1", contents[0].Text)
	assert.Equal(t, "https://x.com/karpathy/status/1", contents[0].Link)
	require.NotNil(t, contents[0].Published)
	assert.Equal(t, 9, contents[0].Published.Hour())
}

func TestSocialFetcherUnknownUser(t *testing.T) {
	ts := socialServer(t)
	f := NewSocialFetcher(SocialOptions{Token: "token", BaseURL: ts.URL})

	_, err := f.Fetch(context.Background(), database.PrimarySource{Name: "Ghost", Handle: strPtr("ghost")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not find user")
}

func TestSocialFetcherUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"title":"Unauthorized"}`))
	}))
	defer ts.Close()

	f := NewSocialFetcher(SocialOptions{Token: "bad", BaseURL: ts.URL})
	_, err := f.Fetch(context.Background(), database.PrimarySource{Name: "K", Handle: strPtr("karpathy")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestSocialFetcherRequiresHandle(t *testing.T) {
	f := NewSocialFetcher(SocialOptions{Token: "t"})
	_, err := f.Fetch(context.Background(), database.PrimarySource{Name: "K"})
	assert.Error(t, err)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, 5, pageSize(2))
	assert.Equal(t, 15, pageSize(15))
	assert.Equal(t, 100, pageSize(500))
}
