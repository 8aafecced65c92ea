package api

import (
	"github.com/starford/sumi/internal/index"
	"github.com/starford/sumi/internal/service"
)

// PasswordRequest is the body of create and unlock.
type PasswordRequest struct {
	Password string `json:"password" example:"s3cret!!"`
}

// ChangePasswordRequest is the body of POST /store/password.
type ChangePasswordRequest struct {
	Current  string `json:"current" example:"s3cret!!"`
	Password string `json:"password" example:"n3wpass!" validate:"required"`
}

// CloseRequest is the body of POST /store/close.
type CloseRequest struct {
	Save bool `json:"save"`
}

// AddNodeRequest is the body of POST /nodes/{id}/children.
type AddNodeRequest struct {
	Kind    string `json:"kind" example:"card" validate:"required"`
	Label   string `json:"label" example:"Bank" validate:"required"`
	Content string `json:"content,omitempty"`
	At      *int   `json:"at,omitempty"`
}

// UpdateNodeRequest is the body of PATCH /nodes/{id}. Absent fields stay
// unchanged.
type UpdateNodeRequest struct {
	Label   *string `json:"label,omitempty"`
	Content *string `json:"content,omitempty"`
}

// MoveNodeRequest is the body of POST /nodes/{id}/move.
type MoveNodeRequest struct {
	Parent string `json:"parent" example:"root" validate:"required"`
	At     *int   `json:"at,omitempty"`
}

// SyncResponse reports whether the store was reconciled.
type SyncResponse struct {
	OK bool `json:"ok"`
}

// StatusResponse is the store status (aliased from the domain layer).
type StatusResponse = service.Status

// NodeResponse is a node with its children (aliased from the domain layer).
type NodeResponse = service.NodeView

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse lists the cards linking to a label.
type BacklinksResponse struct {
	Target    string   `json:"target"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// TagsResponse lists tags with card counts.
type TagsResponse struct {
	Tags []index.TagCount `json:"tags" validate:"required"`
}
