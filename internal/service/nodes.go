package service

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/sumi/internal/apperr"
	"github.com/starford/sumi/internal/index"
	"github.com/starford/sumi/internal/storage"
	"github.com/starford/sumi/internal/tree"
)

// Status is a snapshot of the store state.
type Status struct {
	State     string `json:"state"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Dirty     bool   `json:"dirty"`
	Encrypted bool   `json:"encrypted"`
	InSync    bool   `json:"in_sync"`
	Cards     int    `json:"cards"`
}

// NodeView is the serializable form of a node.
type NodeView struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Label     string     `json:"label"`
	Content   string     `json:"content,omitempty"`
	Created   time.Time  `json:"created"`
	Modified  time.Time  `json:"modified"`
	Dirty     bool       `json:"dirty"`
	Path      []string   `json:"path,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Backlinks []string   `json:"backlinks,omitempty"`
	Children  []NodeView `json:"children,omitempty"`
}

// NodeChange carries optional attribute updates.
type NodeChange struct {
	Label   *string
	Content *string
}

func view(n *tree.Node, depth int) NodeView {
	v := NodeView{
		ID:       n.ID(),
		Kind:     n.Kind().String(),
		Label:    n.Label(),
		Content:  n.Content(),
		Created:  n.Created(),
		Modified: n.Modified(),
		Dirty:    n.Dirty(),
	}
	if depth == 0 {
		return v
	}
	for _, c := range n.Children() {
		v.Children = append(v.Children, view(c, depth-1))
	}
	return v
}

// Tree returns the visible tree. A locked store shows its empty
// placeholder.
func (s *Service) Tree(_ context.Context) (*NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.engine.Root()
	if root == nil {
		return nil, apperr.ErrNotInitialized
	}
	v := view(root, -1)
	return &v, nil
}

// Node returns one node with its direct children. Cards also carry their
// tags and the cards linking to them.
func (s *Service) Node(_ context.Context, id string) (*NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	v := view(n, 1)
	v.Path = n.Path()
	if n.Kind() == tree.KindCard {
		row, _, _ := index.Document(n)
		v.Tags = row.Tags
		bl, err := s.db.Backlinks(n.Label())
		if err != nil {
			return nil, err
		}
		v.Backlinks = bl
	}
	return &v, nil
}

// AddNode creates a node of kind under parentID. at < 0 appends.
func (s *Service) AddNode(ctx context.Context, parentID string, kind tree.Kind, label, content string, at int) (*NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.find(parentID)
	if err != nil {
		return nil, err
	}
	n, err := tree.New(kind, label, content)
	if err != nil {
		return nil, err
	}
	var opts []tree.Option
	if at >= 0 {
		opts = append(opts, tree.At(at))
	}
	if err := parent.Attach(n, opts...); err != nil {
		return nil, err
	}
	v := view(n, 0)
	return &v, s.afterMutation(ctx)
}

// UpdateNode applies the non-nil fields of change.
func (s *Service) UpdateNode(ctx context.Context, id string, change NodeChange) (*NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if change.Label != nil {
		if err := n.SetLabel(*change.Label); err != nil {
			return nil, err
		}
	}
	if change.Content != nil {
		if err := n.SetContent(*change.Content); err != nil {
			return nil, err
		}
	}
	v := view(n, 1)
	return &v, s.afterMutation(ctx)
}

// DeleteNode detaches a node and its subtree. The cabinet cannot be
// deleted.
func (s *Service) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return err
	}
	parent := n.Parent()
	if parent == nil {
		return fmt.Errorf("service: delete cabinet: %w", apperr.ErrInvalidOperation)
	}
	parent.Detach(n)
	return s.afterMutation(ctx)
}

// MoveNode reattaches a node under newParentID. at < 0 appends.
func (s *Service) MoveNode(ctx context.Context, id, newParentID string, at int) (*NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.find(id)
	if err != nil {
		return nil, err
	}
	target, err := s.find(newParentID)
	if err != nil {
		return nil, err
	}
	old := n.Parent()
	if old == nil {
		return nil, fmt.Errorf("service: move cabinet: %w", apperr.ErrInvalidOperation)
	}
	if !target.Accepts(n.Kind()) {
		return nil, fmt.Errorf("service: %s cannot hold %s: %w", target.Kind(), n.Kind(), apperr.ErrInvalidOperation)
	}
	for p := target; p != nil; p = p.Parent() {
		if p == n {
			return nil, fmt.Errorf("service: move into own subtree: %w", apperr.ErrInvalidOperation)
		}
	}

	// Nothing is marked dirty until the new position is known to be valid,
	// so a refused move leaves the store as it was.
	pos := old.IndexOf(n)
	old.Detach(n, tree.Quietly())
	var opts []tree.Option
	if at >= 0 {
		opts = append(opts, tree.At(at))
	}
	if err := target.Attach(n, opts...); err != nil {
		_ = old.Attach(n, tree.At(pos), tree.Quietly())
		return nil, err
	}
	old.MarkDirty()
	v := view(n, 0)
	return &v, s.afterMutation(ctx)
}

// Search runs a full-text query over the cards of the unlocked store.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.unlockedRoot(); err != nil {
		return nil, err
	}
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []index.SearchResult{}
	}
	return res, nil
}

// Backlinks returns the ids of cards linking to the card labeled target.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.unlockedRoot(); err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(target)
	if bl == nil {
		bl = []string{}
	}
	return bl, err
}

// Tags lists the tags in use with their card counts.
func (s *Service) Tags(_ context.Context) ([]index.TagCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.unlockedRoot(); err != nil {
		return nil, err
	}
	tags, err := s.db.Tags()
	if tags == nil {
		tags = []index.TagCount{}
	}
	return tags, err
}

// find looks id up in the real tree. An empty id means the cabinet.
func (s *Service) find(id string) (*tree.Node, error) {
	root, err := s.unlockedRoot()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return root, nil
	}
	n, ok := root.Find(id)
	if !ok {
		return nil, fmt.Errorf("service: node %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

func storeName(path string) string {
	if path == "" {
		return ""
	}
	return storage.DisplayName(path)
}
