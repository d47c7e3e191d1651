package mcpserver

import (
	"context"
	"fmt"

	"oxinot/internal/engine"
	"oxinot/internal/outline"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerMarkdownTools() {
	// ── import_markdown ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("import_markdown",
		mcp.WithDescription("Import a markdown bullet list as blocks below a reference block. Nested bullets become child blocks."),
		mcp.WithString("markdown", mcp.Description("Markdown document with bullet lists"), mcp.Required()),
		mcp.WithString("refId", mcp.Description("Reference block to import below (optional, defaults to the last root block)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleImportMarkdown)

	// ── export_markdown ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("export_markdown",
		mcp.WithDescription("Export a page's outline as a markdown bullet list"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleExportMarkdown)
}

func (s *Server) handleImportMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, err := s.engineForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	md, _ := args["markdown"].(string)
	if md == "" {
		return nil, fmt.Errorf("markdown is required")
	}
	nodes := outline.Parse([]byte(md))
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no bullet list found in markdown")
	}

	refID, _ := args["refId"].(string)
	if refID == "" {
		refID = lastRootID(e)
	}
	if refID == "" {
		return nil, fmt.Errorf("page has no blocks to import below")
	}

	created, err := e.ImportOutline(ctx, refID, nodes)
	if err != nil {
		return nil, fmt.Errorf("import markdown: %w", err)
	}
	return textResult(fmt.Sprintf("Imported %d blocks below %s", len(created), refID)), nil
}

func (s *Server) handleExportMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, err := s.engineForArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	return textResult(outline.Render(outline.FromBlocks(e.Blocks()))), nil
}

// lastRootID returns the id of the last root-level block in sibling order,
// or "". Roots are always visible, so the visible projection carries them
// in order regardless of collapse state.
func lastRootID(e *engine.Engine) string {
	var last string
	for _, b := range e.VisibleBlocks() {
		if b.ParentID == nil {
			last = b.ID
		}
	}
	return last
}
