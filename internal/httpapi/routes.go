package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/hub"
	"github.com/DoyleJ11/alignment-sync/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/sessions", ListSessions(h))
	r.Route("/sessions/{gameID}", func(r chi.Router) {
		r.Get("/state", GameState(h))
		r.Get("/connection", Connection(h))
		r.Get("/session", Session(h))
		r.Post("/actions", SubmitAction(h, log))
		r.Get("/stream", ws.Handler(h, log.Named("ws")))
	})
	return r
}
