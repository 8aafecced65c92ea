package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/sumi/internal/alert"
	"github.com/starford/sumi/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, rep *alert.Reporter, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, rep)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Store lifecycle.
	r.Get("/store", h.Status)
	r.Post("/store/create", h.Create)
	r.Post("/store/unlock", h.Unlock)
	r.Post("/store/lock", h.Lock)
	r.Post("/store/save", h.Save)
	r.Post("/store/sync", h.Sync)
	r.Post("/store/close", h.Close)
	r.Post("/store/password", h.ChangePassword)

	// Tree and nodes. The cabinet is addressed as "root".
	r.Get("/tree", h.Tree)
	r.Get("/nodes/{id}", h.GetNode)
	r.Patch("/nodes/{id}", h.UpdateNode)
	r.Delete("/nodes/{id}", h.DeleteNode)
	r.Post("/nodes/{id}/children", h.AddNode)
	r.Post("/nodes/{id}/move", h.MoveNode)

	r.Get("/search", h.Search)
	r.Get("/backlinks", h.Backlinks)
	r.Get("/tags", h.Tags)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
