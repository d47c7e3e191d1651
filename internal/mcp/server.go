package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"oxinot/internal/domain"
	"oxinot/internal/engine"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the outliner.
// It exposes tools so AI agents can read and restructure pages. Every
// mutation goes through an Engine so drafts, focus, and the in-memory
// tree stay consistent with what an interactive client would see.
type Server struct {
	mcp     *server.MCPServer
	emitter engine.EventEmitter
	pages   domain.PageStore
	gateway domain.Gateway

	// One engine per opened page, created lazily.
	mu           sync.Mutex
	engines      map[string]*engine.Engine
	activePageID string
}

// Deps holds the dependencies passed from the entry point to the MCP server.
type Deps struct {
	Emitter engine.EventEmitter
	Pages   domain.PageStore
	Gateway domain.Gateway
}

// New creates and configures a new MCP server with all tools registered.
func New(ctx context.Context, deps Deps) *Server {
	s := &Server{
		emitter: deps.Emitter,
		pages:   deps.Pages,
		gateway: deps.Gateway,
		engines: make(map[string]*engine.Engine),
	}

	s.mcp = server.NewMCPServer(
		"oxinot-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerPageTools()
	s.registerOutlineTools()
	s.registerMarkdownTools()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// resolvePageID returns the pageID from tool args or falls back to the
// active page set by open_page.
func (s *Server) resolvePageID(args map[string]any) (string, error) {
	if pid, ok := args["pageId"].(string); ok && pid != "" {
		return pid, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePageID != "" {
		return s.activePageID, nil
	}
	return "", fmt.Errorf("no pageId provided and no active page set (use open_page first)")
}

// engineFor returns the engine for pageID, loading the page on first use.
func (s *Server) engineFor(ctx context.Context, pageID string) (*engine.Engine, error) {
	s.mu.Lock()
	if e, ok := s.engines[pageID]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	if _, err := s.pages.GetPage(pageID); err != nil {
		return nil, fmt.Errorf("resolve page: %w", err)
	}
	e := engine.New(pageID, s.gateway, s.emitter)
	if err := e.Load(ctx); err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another call may have raced us here; keep the first one.
	if prior, ok := s.engines[pageID]; ok {
		return prior, nil
	}
	s.engines[pageID] = e
	return e, nil
}

// engineForArgs resolves the page from tool args and returns its engine.
func (s *Server) engineForArgs(ctx context.Context, args map[string]any) (*engine.Engine, error) {
	pageID, err := s.resolvePageID(args)
	if err != nil {
		return nil, err
	}
	return s.engineFor(ctx, pageID)
}
