package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/applyd/qa"
	"github.com/hazyhaar/applyd/session"
)

// Launcher builds a session for one request. The control layer mints the ID
// and the event sink; the launcher wires browser, recovery and stores, then
// starts the run.
type Launcher func(ctx context.Context, id string, sink session.Sink, req session.Request) (*session.Session, error)

// Service is the HTTP control surface.
type Service struct {
	registry *Registry
	launch   Launcher
	history  *session.History
	bank     *qa.Store
	log      *slog.Logger
}

// New wires the control service. history and bank may be nil; their
// endpoints then answer 404.
func New(launch Launcher, history *session.History, bank *qa.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: NewRegistry(),
		launch:   launch,
		history:  history,
		bank:     bank,
		log:      logger,
	}
}

// Registry exposes the session registry for host wiring.
func (s *Service) Registry() *Registry { return s.registry }

// RegisterHTTP mounts the control endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/api/sessions", s.handleStart)
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/sessions/{id}", s.handleSessionStatus)
	r.Post("/api/sessions/{id}/cancel", s.handleCancel)
	r.Post("/api/sessions/{id}/resume", s.handleResume)

	if s.history != nil {
		r.Get("/api/history", s.handleHistory)
		r.Get("/api/history/stats", s.handleHistoryStats)
	}
	if s.bank != nil {
		r.Get("/api/qa/questions", s.handleQuestions)
		r.Get("/api/qa/export", s.handleQuestionsExport)
	}
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req session.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}

	id := s.registry.NewID()
	sink := s.registry.Reserve(id)

	sess, err := s.launch(r.Context(), id, sink, req)
	if err != nil {
		s.registry.Drop(id)
		s.log.Error("control: session launch failed", "error", err)
		http.Error(w, "session launch failed", http.StatusInternalServerError)
		return
	}
	s.registry.Bind(sess)

	s.log.Info("control: session started", "id", id, "query", req.Query)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.registry.IDs()})
}

type sessionStatus struct {
	ID     string          `json:"id"`
	Done   bool            `json:"done"`
	Stats  session.Stats   `json:"stats"`
	Events []session.Event `json:"events"`
}

func (s *Service) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, events, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	st := sessionStatus{ID: sess.ID, Stats: sess.Stats(), Events: events}
	select {
	case <-sess.Done():
		st.Done = true
	default:
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	sess.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Service) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	sess.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.log.Error("control: history list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": recs})
}

func (s *Service) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.StatsSummary(r.Context())
	if err != nil {
		s.log.Error("control: history stats failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleQuestions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.bank.ListAll(r.Context())
	if err != nil {
		s.log.Error("control: question list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": entries})
}

func (s *Service) handleQuestionsExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.csv"`)
	if err := s.bank.ExportCSV(r.Context(), w); err != nil {
		s.log.Error("control: question export failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
