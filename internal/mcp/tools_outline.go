package mcpserver

import (
	"context"
	"fmt"

	"oxinot/internal/domain"
	"oxinot/internal/engine"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
)

// blockSummary is the compact block view returned by outline tools.
type blockSummary struct {
	ID        string `json:"id"`
	ParentID  string `json:"parentId,omitempty"`
	Depth     int    `json:"depth"`
	Content   string `json:"content"`
	Collapsed bool   `json:"collapsed,omitempty"`
	Type      string `json:"type,omitempty"`
}

func (s *Server) registerOutlineTools() {
	// ── outline ────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("outline",
		mcp.WithDescription("Show a page's outline in depth-first order. Set includeCollapsed to also show blocks hidden under collapsed parents."),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithBoolean("includeCollapsed", mcp.Description("Include blocks hidden under collapsed parents (default false)")),
	), s.handleOutline)

	// ── create_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_block",
		mcp.WithDescription("Create a new block below a reference block. If the reference has children it becomes their first child, otherwise its next sibling."),
		mcp.WithString("refId", mcp.Description("Reference block ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("Initial content (optional)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleCreateBlock)

	// ── update_block_content ───────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block_content",
		mcp.WithDescription("Replace the content of an existing block"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("New content"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleUpdateBlockContent)

	// ── split_block ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("split_block",
		mcp.WithDescription("Split a block at a character offset. Text before the offset stays, text after moves into a new block placed by the create_block rule."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("offset", mcp.Description("Rune offset to split at"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleSplitBlock)

	// ── merge_block ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("merge_block",
		mcp.WithDescription("Merge a block into the visible block above it. The block's content is appended to the target and its children are adopted."),
		mcp.WithString("blockId", mcp.Description("Block ID to merge upward"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleMergeBlock)

	// ── indent_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("indent_block",
		mcp.WithDescription("Indent a block under its previous sibling. No-op when the block has no previous sibling."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleIndentBlock)

	// ── outdent_block ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("outdent_block",
		mcp.WithDescription("Outdent a block one level, placing it after its former parent. No-op at root level."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleOutdentBlock)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Move a block (and its subtree) under a new parent. Omit newParentId for root level; omit afterId to place first among siblings."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("newParentId", mcp.Description("New parent block ID (omit for root level)")),
		mcp.WithString("afterId", mcp.Description("Sibling to place after (omit to place first)")),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleMoveBlock)

	// ── toggle_collapse ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("toggle_collapse",
		mcp.WithDescription("Toggle whether a block's children are hidden"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleToggleCollapse)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a block and all its descendants."),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)
}

func boolPtr(v bool) *bool { return &v }

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, err := s.engineForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	blocks := e.VisibleBlocks()
	if include, _ := args["includeCollapsed"].(bool); include {
		blocks = e.BlocksDepthFirst()
	}
	summaries := lo.Map(blocks, func(b domain.Block, _ int) blockSummary {
		return summarizeBlock(e, b)
	})
	return jsonResult(summaries)
}

func (s *Server) handleCreateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, err := s.engineForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	refID, _ := args["refId"].(string)
	if refID == "" {
		return nil, fmt.Errorf("refId is required")
	}
	content, _ := args["content"].(string)

	block, err := e.CreateBelow(ctx, refID, content)
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return jsonResult(block)
}

func (s *Server) handleUpdateBlockContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	content, _ := args["content"].(string)
	if err := e.UpdateContent(ctx, blockID, content); err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}
	return textResult(fmt.Sprintf("Block %s content updated", blockID)), nil
}

func (s *Server) handleSplitBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	offset, ok := args["offset"].(float64)
	if !ok || offset < 0 {
		return nil, fmt.Errorf("offset must be a non-negative number")
	}
	tail, err := e.SplitAtCursor(ctx, blockID, int(offset), nil)
	if err != nil {
		return nil, fmt.Errorf("split block: %w", err)
	}
	return jsonResult(tail)
}

func (s *Server) handleMergeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := e.MergeWithPrevious(ctx, blockID, nil); err != nil {
		return nil, fmt.Errorf("merge block: %w", err)
	}
	return textResult(fmt.Sprintf("Block %s merged into the block above", blockID)), nil
}

func (s *Server) handleIndentBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := e.Indent(ctx, blockID); err != nil {
		return nil, fmt.Errorf("indent block: %w", err)
	}
	return textResult(fmt.Sprintf("Block %s indented", blockID)), nil
}

func (s *Server) handleOutdentBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := e.Outdent(ctx, blockID); err != nil {
		return nil, fmt.Errorf("outdent block: %w", err)
	}
	return textResult(fmt.Sprintf("Block %s outdented", blockID)), nil
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	var newParentID, afterID *string
	if v, ok := args["newParentId"].(string); ok && v != "" {
		newParentID = &v
	}
	if v, ok := args["afterId"].(string); ok && v != "" {
		afterID = &v
	}
	if err := e.Move(ctx, blockID, newParentID, afterID); err != nil {
		return nil, fmt.Errorf("move block: %w", err)
	}
	return textResult(fmt.Sprintf("Block %s moved", blockID)), nil
}

func (s *Server) handleToggleCollapse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := e.ToggleCollapse(ctx, blockID); err != nil {
		return nil, fmt.Errorf("toggle collapse: %w", err)
	}
	b := e.Block(blockID)
	if b == nil {
		return textResult(fmt.Sprintf("Block %s collapse toggled", blockID)), nil
	}
	return textResult(fmt.Sprintf("Block %s collapsed=%v", blockID, b.Collapsed)), nil
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	e, blockID, err := s.blockForArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	if err := e.Delete(ctx, blockID); err != nil {
		return nil, fmt.Errorf("delete block: %w", err)
	}
	return textResult(fmt.Sprintf("Block %s deleted", blockID)), nil
}

// blockForArgs resolves the engine and the required blockId argument.
func (s *Server) blockForArgs(ctx context.Context, args map[string]any) (*engine.Engine, string, error) {
	e, err := s.engineForArgs(ctx, args)
	if err != nil {
		return nil, "", err
	}
	blockID, _ := args["blockId"].(string)
	if blockID == "" {
		return nil, "", fmt.Errorf("blockId is required")
	}
	if e.Block(blockID) == nil {
		return nil, "", fmt.Errorf("block %s not found on page %s", blockID, e.PageID())
	}
	return e, blockID, nil
}

func summarizeBlock(e *engine.Engine, b domain.Block) blockSummary {
	sum := blockSummary{
		ID:        b.ID,
		Depth:     e.Depth(b.ID),
		Content:   b.Content,
		Collapsed: b.Collapsed,
	}
	if b.ParentID != nil {
		sum.ParentID = *b.ParentID
	}
	if b.Type != domain.BlockTypeBullet {
		sum.Type = string(b.Type)
	}
	return sum
}
