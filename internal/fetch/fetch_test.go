package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><head><title>Evals</title></head><body>
<article>
<h1>On evaluating agents</h1>
<p>` + loremParagraph + `</p>
<p>Background reading: <a href="https://evals.example/post">this evals post</a> and
<a href="/archive">our archive</a>.</p>
<p>` + loremParagraph + `</p>
</article>
</body></html>`

const loremParagraph = "Agent evaluation is hard because the environment changes underneath the model, " +
	"tool calls fail in ways that are not visible in the transcript, and graders disagree about partial credit."

func TestFetchExtractsTextAndLinks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer ts.Close()

	page, err := NewPageFetcher(0).Fetch(context.Background(), ts.URL+"/post")
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Contains(t, page.Text, "Agent evaluation is hard")
	assert.Equal(t, []string{"https://evals.example/post", ts.URL + "/archive"}, page.Links)
}

func TestFetchMarksFailingDomain(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	f := NewPageFetcher(0)
	_, err := f.Fetch(context.Background(), ts.URL+"/a")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.Code)

	page, err := f.Fetch(context.Background(), ts.URL+"/b")
	assert.NoError(t, err)
	assert.Nil(t, page)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "failed domain is not requested again")
}

func TestFetchShortPageHasNoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>tiny</p></body></html>"))
	}))
	defer ts.Close()

	page, err := NewPageFetcher(0).Fetch(context.Background(), ts.URL)
	assert.NoError(t, err)
	assert.Nil(t, page)
}

func TestLinksSkipsNonHTTP(t *testing.T) {
	base, _ := url.Parse("https://blog.example/posts/1")
	body := `<a href="mailto:me@example.com">mail</a><a href="../about">about</a><a href="javascript:void(0)">x</a>`
	got := Links([]byte(body), base)
	assert.Equal(t, []string{"https://blog.example/about"}, got)
	assert.True(t, strings.HasPrefix(got[0], "https://"))
}
