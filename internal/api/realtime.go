package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/uniframe-io/uniframe-backend/internal/matching"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

// RealtimeServer is the HTTP surface a resident realtime worker serves
// inside its own process: a heartbeat probe and the query endpoint the
// management API proxies to.
type RealtimeServer struct {
	store   store.TaskStore
	matcher *matching.RealtimeMatcher
	router  *chi.Mux
}

func NewRealtimeServer(st store.TaskStore, matcher *matching.RealtimeMatcher) *RealtimeServer {
	s := &RealtimeServer{store: st, matcher: matcher, router: chi.NewRouter()}

	s.router.Use(middleware.Recoverer)
	s.router.Get("/api/v1/heartbeat", s.Heartbeat)
	s.router.Get("/api/v1/nm-realtime", s.Match)

	return s
}

func (s *RealtimeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *RealtimeServer) Heartbeat(w http.ResponseWriter, _ *http.Request) {
	serveJson(w, map[string]string{"status": "ok"})
}

func (s *RealtimeServer) Match(w http.ResponseWriter, r *http.Request) {
	queries := r.URL.Query()["q"]
	if len(queries) == 0 {
		http.Error(w, "at least one q parameter is required", http.StatusBadRequest)
		return
	}

	result, err := s.matcher.Query(r.Context(), queries)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := s.store.GetTask(r.Context(), s.matcher.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}

	serveJson(w, &MatchResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Search:  task.Config.Search,
	})
}

// Listen serves the worker endpoint until the process ends. The task is
// reported ready by the caller once the initial index fit succeeded, before
// Listen is entered.
func (s *RealtimeServer) Listen(port int) error {
	log.Info().Int("port", port).Msg("Realtime worker endpoint listening")
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.router)
}
