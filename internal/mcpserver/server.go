// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes sumi tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sumi/internal/alert"
	"github.com/starford/sumi/internal/service"
	"github.com/starford/sumi/internal/tree"
)

const formatURI = "sumi://content-format"

// Server wraps the MCP server with sumi tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
	rep *alert.Reporter
}

// New creates a new MCP server with all sumi tools registered.
func New(svc *service.Service, rep *alert.Reporter) *Server {
	if rep == nil {
		rep = alert.New(nil, nil)
	}
	s := &Server{svc: svc, rep: rep}

	s.mcp = server.NewMCPServer(
		"sumi",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("store_status",
		mcp.WithDescription("Report whether the store is open, locked or unlocked, and whether it has unsaved changes."),
	), s.storeStatus)

	s.mcp.AddTool(mcp.NewTool("unlock_store",
		mcp.WithDescription("Unlock the store with its password. Required before reading or changing cards."),
		mcp.WithString("password", mcp.Required(), mcp.Description("Store password (empty for a plain store)")),
	), s.unlockStore)

	s.mcp.AddTool(mcp.NewTool("lock_store",
		mcp.WithDescription("Lock the store, hiding its content until the next unlock."),
	), s.lockStore)

	s.mcp.AddTool(mcp.NewTool("save_store",
		mcp.WithDescription("Write pending changes to disk."),
	), s.saveStore)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Return the whole tree of folders, cards and entries as JSON."),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Return one node with its children. Cards include tags and backlinks."),
		mcp.WithString("id", mcp.Description("Node id (empty for the cabinet)")),
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a folder, card or entry. Read the content format first via the "+
			"get_content_format tool or the "+formatURI+" resource."),
		mcp.WithString("parent", mcp.Description("Parent id (empty for the cabinet)")),
		mcp.WithString("kind", mcp.Required(), mcp.Description("folder, card, line or text")),
		mcp.WithString("label", mcp.Required(), mcp.Description("Node label")),
		mcp.WithString("content", mcp.Description("Entry text (entries only)")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("update_node",
		mcp.WithDescription("Change a node's label, or an entry's text."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("label", mcp.Description("New label")),
		mcp.WithString("content", mcp.Description("New entry text")),
	), s.updateNode)

	s.mcp.AddTool(mcp.NewTool("delete_node",
		mcp.WithDescription("Delete a node and everything under it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id")),
	), s.deleteNode)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through card labels and entry text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all cards that link to the card with the given label."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Label of the linked card")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List tags in use with their card counts."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_content_format",
		mcp.WithDescription("Returns how entry text is written: tags, links and the optional YAML header."),
	), s.getContentFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Content Format",
			mcp.WithResourceDescription("How the store tree and entry markup are structured."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContentFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) failure(tool string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(s.rep.Report("mcp tool failed", err, slog.String("tool", tool)))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) storeStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status(ctx)), nil
}

func (s *Server) unlockStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pw := req.GetString("password", "")
	if err := s.svc.Unlock(ctx, pw); err != nil {
		return s.failure("unlock_store", err), nil
	}
	return mcp.NewToolResultText("unlocked"), nil
}

func (s *Server) lockStore(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.svc.Lock(ctx)
	return mcp.NewToolResultText("locked"), nil
}

func (s *Server) saveStore(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Save(ctx); err != nil {
		return s.failure("save_store", err), nil
	}
	return mcp.NewToolResultText("saved"), nil
}

func (s *Server) getTree(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.svc.Tree(ctx)
	if err != nil {
		return s.failure("get_tree", err), nil
	}
	return jsonResult(v), nil
}

func (s *Server) getNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, err := s.svc.Node(ctx, req.GetString("id", ""))
	if err != nil {
		return s.failure("get_node", err), nil
	}
	return jsonResult(v), nil
}

func (s *Server) addNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kindName, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := tree.ParseKind(kindName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q: use folder, card, line or text", kindName)), nil
	}
	v, err := s.svc.AddNode(ctx, req.GetString("parent", ""), kind, label, req.GetString("content", ""), -1)
	if err != nil {
		return s.failure("add_node", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created %s %s", v.Kind, v.ID)), nil
}

func (s *Server) updateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var change service.NodeChange
	args := req.GetArguments()
	if v, ok := args["label"].(string); ok {
		change.Label = &v
	}
	if v, ok := args["content"].(string); ok {
		change.Content = &v
	}
	if change.Label == nil && change.Content == nil {
		return mcp.NewToolResultError("label or content is required"), nil
	}
	if _, err := s.svc.UpdateNode(ctx, id, change); err != nil {
		return s.failure("update_node", err), nil
	}
	return mcp.NewToolResultText("updated " + id), nil
}

func (s *Server) deleteNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNode(ctx, id); err != nil {
		return s.failure("delete_node", err), nil
	}
	return mcp.NewToolResultText("deleted " + id), nil
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return s.failure("search_cards", err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, label)
	if err != nil {
		return s.failure("get_backlinks", err), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return s.failure("list_tags", err), nil
	}
	lines := make([]string, 0, len(tags))
	for _, t := range tags {
		lines = append(lines, fmt.Sprintf("%s (%d)", t.Tag, t.Count))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getContentFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ContentFormat), nil
}

func (s *Server) readContentFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ContentFormat,
		},
	}, nil
}
