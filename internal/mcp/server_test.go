package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"oxinot/internal/domain"
	"oxinot/internal/engine"
	"oxinot/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(context.Background(), Deps{
		Emitter: engine.NoopEmitter{},
		Pages:   storage.NewPageStore(db),
		Gateway: storage.NewBlockGateway(db),
	})
}

func toolReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestCreatePage_SeedsFirstBlockAndSetsActive(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	res, err := s.handleCreatePage(ctx, toolReq(map[string]any{"name": "Inbox"}))
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if s.activePageID == "" {
		t.Fatal("expected active page to be set")
	}

	e, err := s.engineFor(ctx, s.activePageID)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if len(e.Blocks()) != 1 {
		t.Fatalf("expected 1 seed block, got %d", len(e.Blocks()))
	}
}

func TestResolvePageID_FallsBackToActive(t *testing.T) {
	s := newServer(t)

	if _, err := s.resolvePageID(map[string]any{}); err == nil {
		t.Fatal("expected error with no active page")
	}

	s.activePageID = "p1"
	pid, err := s.resolvePageID(map[string]any{})
	if err != nil || pid != "p1" {
		t.Fatalf("expected active page fallback, got %q, %v", pid, err)
	}
	pid, _ = s.resolvePageID(map[string]any{"pageId": "p2"})
	if pid != "p2" {
		t.Fatalf("explicit pageId should win, got %q", pid)
	}
}

func TestCreateBlock_PlacedBelowReference(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	if _, err := s.handleCreatePage(ctx, toolReq(map[string]any{"name": "Notes"})); err != nil {
		t.Fatalf("create page: %v", err)
	}
	e, _ := s.engineFor(ctx, s.activePageID)
	refID := e.Blocks()[0].ID

	if _, err := s.handleCreateBlock(ctx, toolReq(map[string]any{
		"refId":   refID,
		"content": "second",
	})); err != nil {
		t.Fatalf("create block: %v", err)
	}

	blocks := e.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	var second *domain.Block
	for i := range blocks {
		if blocks[i].Content == "second" {
			second = &blocks[i]
		}
	}
	if second == nil {
		t.Fatal("new block not found")
	}
	if second.ParentID != nil {
		t.Fatal("childless reference should get a sibling, not a child")
	}
}

func TestImportExportMarkdown(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	if _, err := s.handleCreatePage(ctx, toolReq(map[string]any{"name": "Docs"})); err != nil {
		t.Fatalf("create page: %v", err)
	}

	md := "- alpha\n  - beta\n- gamma\n"
	if _, err := s.handleImportMarkdown(ctx, toolReq(map[string]any{"markdown": md})); err != nil {
		t.Fatalf("import: %v", err)
	}

	res, err := s.handleExportMarkdown(ctx, toolReq(map[string]any{}))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	text := res.Content[0].(mcp.TextContent).Text
	for _, want := range []string{"- alpha", "  - beta", "- gamma"} {
		if !strings.Contains(text, want) {
			t.Errorf("export missing %q:\n%s", want, text)
		}
	}
}

func TestImportMarkdown_DefaultsToLastRoot(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	if _, err := s.handleCreatePage(ctx, toolReq(map[string]any{"name": "Roots"})); err != nil {
		t.Fatalf("create page: %v", err)
	}
	e, _ := s.engineFor(ctx, s.activePageID)
	firstID := e.Blocks()[0].ID
	if _, err := s.handleUpdateBlockContent(ctx, toolReq(map[string]any{
		"blockId": firstID, "content": "first",
	})); err != nil {
		t.Fatalf("update content: %v", err)
	}
	// Several more roots so a misordered walk has somewhere wrong to land.
	prev := firstID
	for _, c := range []string{"second", "third", "last"} {
		res, err := s.handleCreateBlock(ctx, toolReq(map[string]any{
			"refId": prev, "content": c,
		}))
		if err != nil {
			t.Fatalf("create root %s: %v", c, err)
		}
		var created domain.Block
		if err := json.Unmarshal([]byte(res.Content[0].(mcp.TextContent).Text), &created); err != nil {
			t.Fatalf("decode created block: %v", err)
		}
		prev = created.ID
	}
	lastID := prev

	if _, err := s.handleImportMarkdown(ctx, toolReq(map[string]any{
		"markdown": "- imported\n",
	})); err != nil {
		t.Fatalf("import: %v", err)
	}

	// The import goes below the last root: since "last" is childless the
	// imported block becomes its next sibling, at the end of the page.
	visible := e.VisibleBlocks()
	tail := visible[len(visible)-1]
	if tail.Content != "imported" {
		t.Fatalf("expected imported block at the end of the page, got %q", tail.Content)
	}
	if tail.ParentID != nil {
		t.Fatalf("expected imported block at root level, got parent %v", *tail.ParentID)
	}
	prevVis := e.PreviousVisible(tail.ID)
	if prevVis == nil || prevVis.ID != lastID {
		t.Fatalf("expected import below the last root %s, got %+v", lastID, prevVis)
	}
}

func TestOutline_IncludeCollapsedKeepsDepthFirstOrder(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	if _, err := s.handleCreatePage(ctx, toolReq(map[string]any{"name": "Tree"})); err != nil {
		t.Fatalf("create page: %v", err)
	}
	e, _ := s.engineFor(ctx, s.activePageID)
	rootID := e.Blocks()[0].ID
	if _, err := s.handleUpdateBlockContent(ctx, toolReq(map[string]any{
		"blockId": rootID, "content": "root",
	})); err != nil {
		t.Fatalf("update content: %v", err)
	}
	if _, err := s.handleImportMarkdown(ctx, toolReq(map[string]any{
		"markdown": "- parent\n  - kid1\n  - kid2\n- uncle\n",
		"refId":    rootID,
	})); err != nil {
		t.Fatalf("import: %v", err)
	}
	var parentID string
	for _, b := range e.VisibleBlocks() {
		if b.Content == "parent" {
			parentID = b.ID
		}
	}
	if _, err := s.handleToggleCollapse(ctx, toolReq(map[string]any{"blockId": parentID})); err != nil {
		t.Fatalf("collapse: %v", err)
	}

	res, err := s.handleOutline(ctx, toolReq(map[string]any{"includeCollapsed": true}))
	if err != nil {
		t.Fatalf("outline: %v", err)
	}
	var summaries []blockSummary
	if err := json.Unmarshal([]byte(res.Content[0].(mcp.TextContent).Text), &summaries); err != nil {
		t.Fatalf("decode outline: %v", err)
	}
	want := []string{"root", "parent", "kid1", "kid2", "uncle"}
	if len(summaries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(summaries))
	}
	for i, content := range want {
		if summaries[i].Content != content {
			t.Fatalf("position %d: expected %q, got %q", i, content, summaries[i].Content)
		}
	}
	if summaries[2].Depth != 1 {
		t.Fatalf("kid1 should be at depth 1, got %d", summaries[2].Depth)
	}
}

func TestBlockForArgs_UnknownBlock(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	if _, err := s.handleCreatePage(ctx, toolReq(map[string]any{"name": "P"})); err != nil {
		t.Fatalf("create page: %v", err)
	}
	if _, _, err := s.blockForArgs(ctx, map[string]any{"blockId": "nope"}); err == nil {
		t.Fatal("expected error for unknown block")
	}
}
