// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the webring directory and moderation tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/moderation"
	"github.com/starford/webring/internal/photos"
)

const entryFormatURI = "webring://entry-format"

// Server wraps the MCP server with webring tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *moderation.Service
	guard  *moderation.Guard
	photos *photos.Store
}

// New creates a new MCP server with all webring tools registered. store
// may be nil, in which case upload_photo is not offered.
func New(svc *moderation.Service, guard *moderation.Guard, store *photos.Store) *Server {
	s := &Server{svc: svc, guard: guard, photos: store}

	s.mcp = server.NewMCPServer(
		"Webring",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_members",
		mcp.WithDescription("List every member of the ring in registry order."),
	), s.listMembers)

	s.mcp.AddTool(mcp.NewTool("get_member",
		mcp.WithDescription("Get one member and the ids of members that connect to it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Member id (e.g. jane-doe)")),
	), s.getMember)

	s.mcp.AddTool(mcp.NewTool("search_members",
		mcp.WithDescription("Search members by id, name, website or program."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchMembers)

	s.mcp.AddTool(mcp.NewTool("list_submissions",
		mcp.WithDescription("List pending submissions in arrival order. Requires the moderator secret."),
		mcp.WithString("secret", mcp.Required(), mcp.Description("Moderator secret")),
	), s.listSubmissions)

	s.mcp.AddTool(mcp.NewTool("resolve_submission",
		mcp.WithDescription("Promote a pending submission into the registry or reject it. "+
			"Requires the moderator secret."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Submission id")),
		mcp.WithString("action", mcp.Required(), mcp.Description("promote (or approve) or reject")),
		mcp.WithString("secret", mcp.Required(), mcp.Description("Moderator secret")),
	), s.resolveSubmission)

	s.mcp.AddTool(mcp.NewTool("get_entry_format",
		mcp.WithDescription("Returns how member entries are written in the registry document. "+
			"Call this before preparing a submission or member edit."),
	), s.getEntryFormat)

	if store != nil {
		s.mcp.AddTool(mcp.NewTool("upload_photo",
			mcp.WithDescription("Store a profile photo from a base64 data URI or an http(s) URL. "+
				"Returns the /photos/ path to use as profilePic. Requires the moderator secret."),
			mcp.WithString("url", mcp.Required(), mcp.Description("data:image/...;base64,... or http(s) URL")),
			mcp.WithString("id", mcp.Description("Member id to name the file after")),
			mcp.WithString("secret", mcp.Required(), mcp.Description("Moderator secret")),
		), s.uploadPhoto)
	}

	s.mcp.AddResource(
		mcp.NewResource(entryFormatURI, "Entry Format",
			mcp.WithResourceDescription("How member entries are written in the registry document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) authorize(req mcp.CallToolRequest) *mcp.CallToolResult {
	if err := s.guard.Check(req.GetString("secret", "")); err != nil {
		return mcp.NewToolResultError("unauthorized")
	}
	return nil
}

func (s *Server) listMembers(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.svc.ListMembers(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if snap.Records == nil {
		snap.Records = []models.Member{}
	}
	return jsonResult(snap.Records)
}

func (s *Server) getMember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetMember(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) searchMembers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.SearchMembers(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hits == nil {
		hits = []models.Member{}
	}
	return jsonResult(hits)
}

func (s *Server) listSubmissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied := s.authorize(req); denied != nil {
		return denied, nil
	}
	subs, err := s.svc.ListSubmissions(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	return jsonResult(subs)
}

func (s *Server) resolveSubmission(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if denied := s.authorize(req); denied != nil {
		return denied, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	decision, err := models.ParseDecision(action)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Resolve(ctx, id, decision)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s (%d pending)", res.Action, res.ID, res.Remaining)), nil
}

func (s *Server) getEntryFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormat), nil
}

func (s *Server) readEntryFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      entryFormatURI,
			MIMEType: "text/markdown",
			Text:     EntryFormat,
		},
	}, nil
}
