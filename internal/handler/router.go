package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/gchat-relay/internal/handler/webhook"
	"github.com/zhouzirui/gchat-relay/pkg/utils"
)

// NewRouter wires HTTP routes to the relay.
func NewRouter(webhookPath string, webhookHandler *webhook.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	webhookHandler.RegisterRoutes(r, webhookPath)

	return r
}
