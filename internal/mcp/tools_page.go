package mcpserver

import (
	"context"
	"fmt"

	"oxinot/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPageTools() {
	// ── list_pages ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages in the workspace"),
	), s.handleListPages)

	// ── create_page ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a new page with an empty first block"),
		mcp.WithString("name",
			mcp.Description("Name of the new page"),
			mcp.Required(),
		),
	), s.handleCreatePage)

	// ── open_page ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_page",
		mcp.WithDescription("Open a page and make it the active page for subsequent tool calls. Tools that accept pageId will default to this."),
		mcp.WithString("pageId",
			mcp.Description("ID of the page to open"),
			mcp.Required(),
		),
	), s.handleOpenPage)
}

func (s *Server) handleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.pages.ListPages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return jsonResult(pages)
}

func (s *Server) handleCreatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	page := &domain.Page{Name: name}
	if err := s.pages.CreatePage(page); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	// A page is never shown empty; seed the first block.
	e, err := s.engineFor(ctx, page.ID)
	if err != nil {
		return nil, err
	}
	if _, err := e.EnsureFirstBlock(ctx); err != nil {
		return nil, fmt.Errorf("seed first block: %w", err)
	}

	s.mu.Lock()
	s.activePageID = page.ID
	s.mu.Unlock()
	return jsonResult(page)
}

func (s *Server) handleOpenPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID := req.GetString("pageId", "")
	if pageID == "" {
		return nil, fmt.Errorf("pageId is required")
	}
	e, err := s.engineFor(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if _, err := e.EnsureFirstBlock(ctx); err != nil {
		return nil, fmt.Errorf("seed first block: %w", err)
	}

	s.mu.Lock()
	s.activePageID = pageID
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Page %s opened (%d blocks)", pageID, len(e.Blocks()))), nil
}
