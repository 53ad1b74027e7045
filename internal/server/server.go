package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/TobiSchelling/AIDiscovery/internal/database"
	"github.com/TobiSchelling/AIDiscovery/internal/notify"
	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server is the HTTP server for browsing discovered sources.
type Server struct {
	db     *database.DB
	engine *recommend.Engine
	pages  map[string]*template.Template
	mux    *http.ServeMux
}

// New creates a new Server. The engine decides which tracked sources show
// up as pending recommendations.
func New(db *database.DB, engine *recommend.Engine) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatDate": func(s string) string { return database.FormatDisplay(&s) },
		"percent":    func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
		"profileURL": func(handle string) string { return "https://x.com/" + handle },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "sources.html", "source.html", "history.html", "interests.html", "report.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, engine: engine, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/sources", s.handleSources)
	s.mux.HandleFunc("/sources/", s.handleSource)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/report", s.handleReport)
	s.mux.HandleFunc("/interests", s.handleInterests)
	s.mux.HandleFunc("/interests/add", s.handleAddInterest)
	s.mux.HandleFunc("/interests/", s.handleInterestAction)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	t := s.engine.Thresholds()
	eligible, err := s.db.QueryEligible(t.MinRelevance, t.MinCitations)
	if err != nil {
		log.Printf("Error querying eligible sources: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	lastRun, _ := s.db.GetLastRun()

	s.render(w, "index.html", map[string]any{
		"Recommendations": s.engine.Rank(eligible),
		"Thresholds":      t,
		"Stats":           stats,
		"LastRun":         lastRun,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllDiscovered()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "sources.html", map[string]any{
		"Sources": sources,
	})
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/sources/"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/sources", http.StatusFound)
		return
	}

	src, err := s.db.GetDiscoveredByID(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if src == nil {
		http.NotFound(w, r)
		return
	}
	citations, _ := s.db.GetCitations(id)

	s.render(w, "source.html", map[string]any{
		"Source":    src,
		"Citations": citations,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.db.GetRecommendations(0)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "history.html", map[string]any{
		"Recommendations": recs,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, _ := s.db.GetLatestReport()
	s.render(w, "report.html", map[string]any{
		"Report": rep,
	})
}

func (s *Server) handleInterests(w http.ResponseWriter, r *http.Request) {
	interests, _ := s.db.GetAllInterests()
	s.render(w, "interests.html", map[string]any{
		"Interests": interests,
	})
}

func (s *Server) handleAddInterest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	if term := strings.TrimSpace(r.FormValue("term")); term != "" {
		if _, err := s.db.InsertInterest(term); err != nil {
			log.Printf("Error adding interest %q: %v", term, err)
		}
	}

	http.Redirect(w, r, "/interests", http.StatusFound)
}

func (s *Server) handleInterestAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/interests/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/interests", http.StatusFound)
		return
	}

	switch parts[1] {
	case "toggle":
		err = s.db.ToggleInterest(id)
	case "delete":
		err = s.db.DeleteInterest(id)
	}
	if err != nil {
		log.Printf("Error updating interest %d: %v", id, err)
	}

	http.Redirect(w, r, "/interests", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	out, err := notify.MarkdownToHTML(text)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(out) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, engine *recommend.Engine, port int) error {
	srv, err := New(db, engine)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
