package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/izzyreal/fakeipa/internal/server/httpx"
)

func buildRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteHTTPError(w, http.StatusNotFound, "The requested URL was not found on the server.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteHTTPError(w, http.StatusMethodNotAllowed, "The method is not allowed for the requested URL.")
	})

	// Health
	r.Get("/healthz", s.healthzHandler)

	// BMC emulator notifications
	r.Put("/", s.notificationHandler)

	// Agent API, one per node
	r.Route("/{uuid}", func(r chi.Router) {
		r.Get("/", s.apiRootHandler)
		r.Get("/v1/", s.apiV1Handler)
		r.Get("/v1/commands/", s.listCommandsHandler)
		r.Post("/v1/commands/", s.runCommandHandler)
		r.Get("/v1/commands/{id}", s.getCommandHandler)
	})

	return r
}
