package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
	"github.com/conorfennell/leitnerbox/internal/importer"
	"github.com/conorfennell/leitnerbox/internal/learning"
	"github.com/conorfennell/leitnerbox/internal/storage"
)

//go:embed all:templates
var templateFiles embed.FS

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	learner   *learning.Service
	importer  *importer.Importer
	router    *http.ServeMux
	templates *template.Template
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, learner *learning.Service, imp *importer.Importer) *Server {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	s := &Server{
		db:        db,
		learner:   learner,
		importer:  imp,
		router:    http.NewServeMux(),
		templates: tpl,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleIndex())
	s.router.HandleFunc("/learn/summary", s.handleSummary())
	s.router.HandleFunc("/learn/start", s.handleStart())
	s.router.HandleFunc("/learn/current", s.handleCurrent())
	s.router.HandleFunc("/learn/fact", s.handleRecordOutcome())
	s.router.HandleFunc("/sources", s.handleSources())
	s.router.HandleFunc("/sources/", s.handleDeleteSource())
	s.router.HandleFunc("/sync", s.handlePostSync())
}

// user resolves the acting user from the request. Identity is an
// external concern; a name parameter stands in for it here.
func (s *Server) user(r *http.Request) (*domain.User, error) {
	name := r.FormValue("user")
	if name == "" {
		name = "default"
	}
	return s.db.EnsureUser(name)
}

// scope reads the optional tag or deck filter off the request.
func scope(r *http.Request) (domain.Scope, error) {
	if deck := r.FormValue("deck"); deck != "" {
		id, err := strconv.ParseInt(deck, 10, 64)
		if err != nil {
			return domain.Scope{}, err
		}
		return domain.ByDeck(id), nil
	}
	if tags := r.FormValue("tags"); tags != "" {
		ids, err := parseIDList(tags)
		if err != nil {
			return domain.Scope{}, err
		}
		return domain.ByTags(ids...), nil
	}
	return domain.AllCards(), nil
}

// parseIDList splits a comma-joined id list. The client-side list
// builder emits a leading empty token (",1,2"), so empty tokens are
// skipped rather than rejected.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, token := range strings.Split(s, ",") {
		if token == "" {
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, learning.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, learning.ErrInvalidState), errors.Is(err, learning.ErrStaleBuild):
		http.Error(w, "Conflict", http.StatusConflict)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/learn/summary", http.StatusSeeOther)
	}
}

// handleSummary previews what a study session would look like right
// now without committing one.
func (s *Server) handleSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.user(r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		sc, err := scope(r)
		if err != nil {
			http.Error(w, "Invalid scope", http.StatusBadRequest)
			return
		}

		session, err := s.learner.LoadOrCreate(user, sc, false)
		if err != nil {
			s.renderError(w, err)
			return
		}
		data := map[string]interface{}{
			"User":    user.Username,
			"Session": session,
			"HasDue":  session.Stats.Remaining > 0,
		}
		s.templates.ExecuteTemplate(w, "summary", data)
	}
}

// handleStart commits a new session from the caller-selected card list.
func (s *Server) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user, err := s.user(r)
		if err != nil {
			s.renderError(w, err)
			return
		}

		ids, err := parseIDList(r.PostFormValue("cardsSelected"))
		if err != nil {
			http.Error(w, "Invalid card selection", http.StatusBadRequest)
			return
		}

		var cards []domain.Card
		if len(ids) > 0 {
			cards, err = s.learner.CardsByID(user, ids)
			if err != nil {
				s.renderError(w, err)
				return
			}
		}

		builder := s.learner.NewBuilder(user, cards)
		if err := builder.Build(); err != nil {
			s.renderError(w, err)
			return
		}
		if err := builder.Commit(); err != nil {
			s.renderError(w, err)
			return
		}

		http.Redirect(w, r, "/learn/current?user="+user.Username, http.StatusSeeOther)
	}
}

// handleCurrent shows the next card of the current session, or the
// completion page when nothing is left.
func (s *Server) handleCurrent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.user(r)
		if err != nil {
			s.renderError(w, err)
			return
		}
		if user.CurrentSessionID == nil {
			http.Redirect(w, r, "/learn/summary?user="+user.Username, http.StatusSeeOther)
			return
		}

		fact, err := s.learner.CurrentFact(user)
		if err != nil {
			s.renderError(w, err)
			return
		}
		if fact == nil {
			facts, err := s.db.SessionFacts(user.ID, *user.CurrentSessionID)
			if err != nil {
				s.renderError(w, err)
				return
			}
			passed := 0
			for _, f := range facts {
				if f.Outcome != nil && *f.Outcome {
					passed++
				}
			}
			s.templates.ExecuteTemplate(w, "done", map[string]interface{}{
				"User":   user.Username,
				"Total":  len(facts),
				"Passed": passed,
			})
			return
		}

		card, err := s.db.FindCard(fact.CardID)
		if err != nil {
			s.renderError(w, err)
			return
		}
		if card == nil {
			s.renderError(w, learning.ErrNotFound)
			return
		}
		s.templates.ExecuteTemplate(w, "card", map[string]interface{}{
			"User": user.Username,
			"Fact": fact,
			"Card": card,
		})
	}
}

// handleRecordOutcome is the answer endpoint: PUT with the fact id as
// lsf_id and the outcome as is_ok.
func (s *Server) handleRecordOutcome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		factID, err := strconv.ParseInt(r.FormValue("lsf_id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid fact id", http.StatusBadRequest)
			return
		}
		passed := r.FormValue("is_ok") == "1"

		fact, err := s.learner.RecordOutcome(factID, passed, time.Now().UTC())
		if err != nil {
			s.renderError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":           fact.ID,
			"session_id":   fact.SessionID,
			"card_id":      fact.CardID,
			"outcome":      *fact.Outcome,
			"completed_at": fact.CompletedAt,
		})
	}
}

// handleSources handles both GET and POST for the sources page.
func (s *Server) handleSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSources(w, r)
		case http.MethodPost:
			s.handlePostSource(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	user, err := s.user(r)
	if err != nil {
		s.renderError(w, err)
		return
	}
	sources, err := s.db.GetSources(user.ID)
	if err != nil {
		s.renderError(w, err)
		return
	}
	s.templates.ExecuteTemplate(w, "sources", map[string]interface{}{
		"User":    user.Username,
		"Sources": sources,
	})
}

func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	user, err := s.user(r)
	if err != nil {
		s.renderError(w, err)
		return
	}
	path := r.PostFormValue("path")
	if path == "" {
		http.Error(w, "Path cannot be empty", http.StatusBadRequest)
		return
	}

	if _, err := s.db.InsertSource(user.ID, path, importer.DetectSourceType(path)); err != nil {
		s.renderError(w, err)
		return
	}
	http.Redirect(w, r, "/sources?user="+user.Username, http.StatusSeeOther)
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		idStr := strings.TrimPrefix(r.URL.Path, "/sources/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid source ID", http.StatusBadRequest)
			return
		}
		if err := s.db.DeleteSource(id); err != nil {
			s.renderError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync reconciles all of the user's sources in the foreground.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user, err := s.user(r)
		if err != nil {
			s.renderError(w, err)
			return
		}

		res, err := s.importer.SyncUser(user)
		if err != nil {
			s.renderError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"parsed":   res.Parsed,
			"inserted": res.Inserted,
			"skipped":  res.Skipped,
			"errors":   len(res.Errors),
		})
	}
}
