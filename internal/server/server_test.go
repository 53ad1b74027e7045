package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func newServer(t *testing.T, db *database.DB) *Server {
	t.Helper()
	srv, err := New(db, recommend.New(recommend.DefaultThresholds()))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, srv *Server, path, form string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// seed stores one eligible source cited by two primaries and one that is not.
func seed(t *testing.T, db *database.DB) int64 {
	t.Helper()
	alpha, _ := db.UpsertPrimary("Alpha", ptr("https://alpha.example/feed"), database.KindBlog, nil)
	beta, _ := db.UpsertPrimary("Beta", ptr("https://beta.example/feed"), database.KindBlog, nil)

	var id int64
	for _, primary := range []int64{alpha, beta} {
		res, err := db.RecordSighting(primary, database.Sighting{
			Name:   "@swyx",
			Handle: ptr("swyx"),
			Kind:   database.KindSocial,
			Score:  0.9,
			Text:   ptr("a great thread by @swyx on agents"),
		})
		if err != nil {
			t.Fatalf("recording sighting: %v", err)
		}
		id = res.ID
	}
	if _, err := db.RecordSighting(alpha, database.Sighting{Name: "https://quiet.example", URL: ptr("https://quiet.example"), Kind: database.KindBlog, Score: 0.3}); err != nil {
		t.Fatalf("recording sighting: %v", err)
	}
	return id
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := newServer(t, db)

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Pending Recommendations") {
		t.Error("expected 'Pending Recommendations' in response body")
	}
	if !strings.Contains(body, "@swyx") {
		t.Error("expected eligible source in response")
	}
	if strings.Contains(body, "quiet.example") {
		t.Error("did not expect a source below the thresholds")
	}
	if !strings.Contains(body, "Cited 2 times by trusted sources") {
		t.Error("expected recommendation reason in response")
	}
}

func TestIndexEmpty(t *testing.T) {
	srv := newServer(t, openTestDB(t))
	rec := get(t, srv, "/")
	if !strings.Contains(rec.Body.String(), "No sources currently meet") {
		t.Error("expected empty state")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newServer(t, openTestDB(t))
	if rec := get(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSourcesRoute(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := newServer(t, db)

	body := get(t, srv, "/sources").Body.String()
	for _, want := range []string{"@swyx", "https://quiet.example", "90%"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in sources page", want)
		}
	}
}

func TestSourceDetailRoute(t *testing.T) {
	db := openTestDB(t)
	id := seed(t, db)
	srv := newServer(t, db)

	rec := get(t, srv, fmt.Sprintf("/sources/%d", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "https://x.com/swyx") {
		t.Error("expected profile link")
	}
	if !strings.Contains(body, "Alpha") || !strings.Contains(body, "Beta") {
		t.Error("expected both citing primaries")
	}
	if !strings.Contains(body, "a great thread by @swyx on agents") {
		t.Error("expected citation text")
	}

	if rec := get(t, srv, "/sources/999"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown source, got %d", rec.Code)
	}
	if rec := get(t, srv, "/sources/abc"); rec.Code != http.StatusFound {
		t.Errorf("expected redirect for bad id, got %d", rec.Code)
	}
}

func TestHistoryRoute(t *testing.T) {
	db := openTestDB(t)
	id := seed(t, db)
	if err := db.MarkSent(id, "Good relevance: 0.90"); err != nil {
		t.Fatal(err)
	}
	srv := newServer(t, db)

	body := get(t, srv, "/history").Body.String()
	if !strings.Contains(body, "Good relevance: 0.90") {
		t.Error("expected reasoning in history")
	}

	if strings.Contains(get(t, srv, "/").Body.String(), "Cited 2 times") {
		t.Error("sent sources should leave the pending list")
	}
}

func TestReportRoute(t *testing.T) {
	db := openTestDB(t)
	srv := newServer(t, db)

	if !strings.Contains(get(t, srv, "/report").Body.String(), "No report yet") {
		t.Error("expected empty report state")
	}

	if _, err := db.InsertReport(nil, "# Discovery Report\n\n| Source | Why |\n|---|---|\n| @swyx | agents |\n"); err != nil {
		t.Fatal(err)
	}
	body := get(t, srv, "/report").Body.String()
	if !strings.Contains(body, "<h1>Discovery Report</h1>") {
		t.Error("expected rendered markdown heading")
	}
	if !strings.Contains(body, "<table>") {
		t.Error("expected GFM table rendering")
	}
}

func TestInterestRoutes(t *testing.T) {
	db := openTestDB(t)
	srv := newServer(t, db)

	rec := post(t, srv, "/interests/add", "term=Evals")
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	interests, _ := db.GetAllInterests()
	if len(interests) != 1 || interests[0].Term != "evals" {
		t.Fatalf("expected stored interest 'evals', got %+v", interests)
	}
	id := interests[0].ID

	if !strings.Contains(get(t, srv, "/interests").Body.String(), "evals") {
		t.Error("expected interest in page")
	}

	post(t, srv, fmt.Sprintf("/interests/%d/toggle", id), "")
	got, _ := db.GetInterest(id)
	if got == nil || got.IsActive {
		t.Error("expected interest to be paused")
	}

	post(t, srv, fmt.Sprintf("/interests/%d/delete", id), "")
	if got, _ := db.GetInterest(id); got != nil {
		t.Error("expected interest to be deleted")
	}

	if rec := get(t, srv, "/interests/add"); rec.Code != http.StatusFound {
		t.Errorf("expected GET to redirect, got %d", rec.Code)
	}
}

func TestStaticRoute(t *testing.T) {
	srv := newServer(t, openTestDB(t))

	rec := get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-family") {
		t.Error("expected CSS content")
	}
}
