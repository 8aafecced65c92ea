package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/sumi/internal/alert"
	"github.com/starford/sumi/internal/service"
	"github.com/starford/sumi/internal/tree"
)

const maxBodyBytes = 10 << 20

// RootID addresses the cabinet in node routes.
const RootID = "root"

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
	rep *alert.Reporter
}

// NewHandler creates a new Handler. A nil reporter logs through
// slog.Default and shows short messages.
func NewHandler(svc *service.Service, rep *alert.Reporter) *Handler {
	if rep == nil {
		rep = alert.New(nil, nil)
	}
	return &Handler{svc: svc, rep: rep}
}

// fail logs err and writes the mapped status with a user-facing message.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...slog.Attr) {
	writeJSON(w, statusFor(err), errorBody(h.rep.Report(msg, err, attrs...)))
}

// decode reads a JSON body into v. It writes a 400 and returns false on
// failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// nodeID maps the URL id to a service id. "root" is the cabinet.
func nodeID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if id == RootID {
		return ""
	}
	return id
}

func position(at *int) int {
	if at == nil {
		return -1
	}
	return *at
}

// Status handles GET /api/store.
//
//	@Summary		Store status
//	@Tags			store
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/store [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Create handles POST /api/store/create.
//
//	@Summary		Create a new store and unlock it
//	@Tags			store
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordRequest	true	"Password, empty for a plain store"
//	@Success		201		{object}	StatusResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/store/create [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Create(r.Context(), req.Password); err != nil {
		h.fail(w, "create store failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.svc.Status(r.Context()))
}

// Unlock handles POST /api/store/unlock.
//
//	@Summary		Unlock the store
//	@Tags			store
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordRequest	true	"Password"
//	@Success		200		{object}	StatusResponse
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/store/unlock [post]
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Unlock(r.Context(), req.Password); err != nil {
		h.fail(w, "unlock failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Lock handles POST /api/store/lock.
//
//	@Summary		Lock the store
//	@Tags			store
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/store/lock [post]
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.svc.Lock(r.Context())
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Save handles POST /api/store/save.
//
//	@Summary		Write pending changes
//	@Tags			store
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Failure		409	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/store/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Save(r.Context()); err != nil {
		h.fail(w, "save failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Sync handles POST /api/store/sync.
//
//	@Summary		Reconcile with changes made elsewhere
//	@Tags			store
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/store/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.Sync(r.Context())
	if err != nil {
		h.fail(w, "sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{OK: ok})
}

// Close handles POST /api/store/close.
//
//	@Summary		Close the store, optionally saving first
//	@Tags			store
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CloseRequest	false	"Save before closing"
//	@Success		200		{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/store/close [post]
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if err := h.svc.Close(r.Context(), req.Save); err != nil {
		h.fail(w, "close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// ChangePassword handles POST /api/store/password.
//
//	@Summary		Re-encrypt the store under a new password
//	@Tags			store
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{object}	StatusResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/store/password [post]
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), req.Current, req.Password); err != nil {
		h.fail(w, "change password failed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// Tree handles GET /api/tree.
//
//	@Summary		The visible tree
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	NodeResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Tree(r.Context())
	if err != nil {
		h.fail(w, "tree failed", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetNode handles GET /api/nodes/{id}.
//
//	@Summary		One node with its children
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id or root"
//	@Success		200	{object}	NodeResponse
//	@Failure		404	{object}	errResponse
//	@Failure		423	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	v, err := h.svc.Node(r.Context(), id)
	if err != nil {
		h.fail(w, "get node failed", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// AddNode handles POST /api/nodes/{id}/children.
//
//	@Summary		Add a child node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Parent id or root"
//	@Param			body	body		AddNodeRequest	true	"Node to add"
//	@Success		201		{object}	NodeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/children [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := tree.ParseKind(req.Kind)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown kind"))
		return
	}
	parent := nodeID(r)
	v, err := h.svc.AddNode(r.Context(), parent, kind, req.Label, req.Content, position(req.At))
	if err != nil {
		h.fail(w, "add node failed", err, slog.String("parent", parent))
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// UpdateNode handles PATCH /api/nodes/{id}.
//
//	@Summary		Change a node's label or content
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Node id or root"
//	@Param			body	body		UpdateNodeRequest	true	"Fields to change"
//	@Success		200		{object}	NodeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [patch]
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Label == nil && req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("label or content is required"))
		return
	}
	id := nodeID(r)
	v, err := h.svc.UpdateNode(r.Context(), id, service.NodeChange{Label: req.Label, Content: req.Content})
	if err != nil {
		h.fail(w, "update node failed", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteNode handles DELETE /api/nodes/{id}.
//
//	@Summary		Delete a node and its subtree
//	@Tags			nodes
//	@Param			id	path	string	true	"Node id"
//	@Success		204	"Node deleted"
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	if err := h.svc.DeleteNode(r.Context(), id); err != nil {
		h.fail(w, "delete node failed", err, slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNode handles POST /api/nodes/{id}/move.
//
//	@Summary		Move a node under another parent
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Node id"
//	@Param			body	body		MoveNodeRequest	true	"Target parent"
//	@Success		200		{object}	NodeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/move [post]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req MoveNodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Parent == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("parent is required"))
		return
	}
	parent := req.Parent
	if parent == RootID {
		parent = ""
	}
	id := nodeID(r)
	v, err := h.svc.MoveNode(r.Context(), id, parent, position(req.At))
	if err != nil {
		h.fail(w, "move node failed", err, slog.String("id", id), slog.String("parent", req.Parent))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across cards
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		h.fail(w, "search failed", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Backlinks handles GET /api/backlinks.
//
//	@Summary		Cards linking to a label
//	@Tags			search
//	@Produce		json
//	@Param			target	query		string	true	"Card label"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), target)
	if err != nil {
		h.fail(w, "backlinks failed", err, slog.String("target", target))
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Target: target, Backlinks: bl})
}

// Tags handles GET /api/tags.
//
//	@Summary		Tags in use
//	@Tags			search
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		h.fail(w, "tags failed", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}
