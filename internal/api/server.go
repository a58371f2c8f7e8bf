// Package api exposes the orchestrator over HTTP: the management surface
// (start, stop, match, result download) and the realtime worker's own query
// endpoint.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/uniframe-io/uniframe-backend/internal/dataset"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

const resultURLExpiry = 15 * time.Minute

type Server struct {
	orch     *Orchestrator
	datasets dataset.Store
	router   *chi.Mux
}

func NewServer(orch *Orchestrator, datasets dataset.Store) *Server {
	s := &Server{
		orch:     orch,
		datasets: datasets,
		router:   chi.NewRouter(),
	}

	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Get("/health", s.Health)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/api/task", s.CreateTask)
	s.router.Route("/api/task/{taskID}", func(r chi.Router) {
		r.Get("/", s.GetTask)
		r.Delete("/", s.DeleteTask)
		r.Post("/start", s.StartTask)
		r.Post("/stop", s.StopTask)
		r.Get("/match", s.Match)
		r.Get("/result", s.ResultURL)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	serveJson(w, map[string]string{"status": "ok"})
}

func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	task, err := s.orch.ownedTask(r.Context(), taskID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	serveJson(w, task)
}

type createTaskRequest struct {
	Name   string            `json:"name"`
	Type   models.TaskType   `json:"type"`
	Config models.TaskConfig `json:"config"`
}

func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identifyOwner(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := readJson(w, r, &req); err != nil {
		return
	}
	if req.Name == "" {
		http.Error(w, "task name is required", http.StatusBadRequest)
		return
	}
	if req.Type != models.TaskTypeBatch && req.Type != models.TaskTypeRealtime {
		http.Error(w, fmt.Sprintf("unknown task type %q", req.Type), http.StatusBadRequest)
		return
	}

	task := &models.Task{
		OwnerID: userID,
		Name:    req.Name,
		Type:    req.Type,
		Config:  req.Config,
	}
	if err := s.orch.Store.CreateTask(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	serveJson(w, task)
}

func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	if err := s.orch.DeleteTask(r.Context(), taskID, userID); err != nil {
		writeError(w, err)
		return
	}
	serveJson(w, map[string]string{"status": "deleted"})
}

func (s *Server) StartTask(w http.ResponseWriter, r *http.Request) {
	taskID, userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	if err := s.orch.StartTask(r.Context(), taskID, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	serveJson(w, map[string]string{"status": "accepted"})
}

func (s *Server) StopTask(w http.ResponseWriter, r *http.Request) {
	taskID, userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	if err := s.orch.StopTask(r.Context(), taskID, userID); err != nil {
		writeError(w, err)
		return
	}
	serveJson(w, map[string]string{"status": "stop requested"})
}

func (s *Server) Match(w http.ResponseWriter, r *http.Request) {
	taskID, userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	queries := r.URL.Query()["q"]
	if len(queries) == 0 {
		http.Error(w, "at least one q parameter is required", http.StatusBadRequest)
		return
	}

	result, err := s.orch.Match(r.Context(), taskID, userID, queries)
	if err != nil {
		writeError(w, err)
		return
	}
	serveJson(w, result)
}

// ResultURL hands out a time-limited download link for the latest batch
// result artifact of the task.
func (s *Server) ResultURL(w http.ResponseWriter, r *http.Request) {
	taskID, userID, ok := s.identify(w, r)
	if !ok {
		return
	}

	task, err := s.orch.ownedTask(r.Context(), taskID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if task.Config.ResultKey == "" {
		http.Error(w, "task has no result artifact yet", http.StatusNotFound)
		return
	}

	u, err := s.datasets.ResultURL(r.Context(), task.Config.ResultKey, resultURLExpiry)
	if err != nil {
		writeError(w, err)
		return
	}
	serveJson(w, map[string]string{"url": u})
}

// identify parses the task id from the route and the caller identity from
// the X-Owner-ID header the authenticating proxy sets.
func (s *Server) identify(w http.ResponseWriter, r *http.Request) (taskID, userID int64, ok bool) {
	taskID, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid task id", http.StatusBadRequest)
		return 0, 0, false
	}

	userID, ok = s.identifyOwner(w, r)
	if !ok {
		return 0, 0, false
	}
	return taskID, userID, true
}

func (s *Server) identifyOwner(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.Header.Get("X-Owner-ID"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid X-Owner-ID header", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case taskerr.IsKind(err, taskerr.KindTaskNotFound):
		status = http.StatusNotFound
	case taskerr.IsKind(err, taskerr.KindWorkerNotAvailable):
		status = http.StatusConflict
	case taskerr.IsKind(err, taskerr.KindTaskTypeMismatch),
		taskerr.IsKind(err, taskerr.KindConfigFingerprint):
		status = http.StatusBadRequest
	case taskerr.IsKind(err, taskerr.KindWorkerStart):
		status = http.StatusBadGateway
	case errors.Is(err, store.ErrIllegalTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), status)
}

func serveJson(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode payload", http.StatusInternalServerError)
		log.Error().Err(err).Msg("JSON encoding issue")
	}
}

func readJson(w http.ResponseWriter, r *http.Request, payload any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close request body")
		}
	}()

	err := json.NewDecoder(r.Body).Decode(payload)
	if err != nil {
		http.Error(w, "could not parse request body to payload", http.StatusBadRequest)
	}
	return err
}

// Listen serves the management API on the configured address.
func (s *Server) Listen(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Info().Str("addr", addr).Msg("Management API listening")
	return http.ListenAndServe(addr, s.router)
}
