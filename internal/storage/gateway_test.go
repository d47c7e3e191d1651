package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"oxinot/internal/domain"
	"oxinot/internal/storage"
)

func newGateway(t *testing.T) (*storage.BlockGateway, string) {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "outline.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pages := storage.NewPageStore(db)
	page := &domain.Page{Name: "Test Page"}
	if err := pages.CreatePage(page); err != nil {
		t.Fatalf("create page: %v", err)
	}
	return storage.NewBlockGateway(db), page.ID
}

func mustCreate(t *testing.T, g *storage.BlockGateway, pageID string, parentID, afterID *string, content string) *domain.Block {
	t.Helper()
	b, err := g.CreateBlock(context.Background(), pageID, parentID, afterID, content)
	if err != nil {
		t.Fatalf("create block %q: %v", content, err)
	}
	return b
}

func TestCreateBlock_Ordering(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	a := mustCreate(t, g, pageID, nil, nil, "a")
	// afterID nil → head of the list, so b sorts before a.
	b := mustCreate(t, g, pageID, nil, nil, "b")
	// c goes right after b, between b and a.
	c := mustCreate(t, g, pageID, nil, &b.ID, "c")

	blocks, err := g.LoadPageBlocks(ctx, pageID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	order := []string{blocks[0].Content, blocks[1].Content, blocks[2].Content}
	if order[0] != "b" || order[1] != "c" || order[2] != "a" {
		t.Fatalf("unexpected order: %v", order)
	}
	_ = a
	_ = c
}

func TestCreateBlock_RespreadOnExhaustedGap(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	first := mustCreate(t, g, pageID, nil, nil, "first")
	mustCreate(t, g, pageID, nil, &first.ID, "last")

	// Repeatedly insert right after "first": each insert bisects the same
	// gap, eventually forcing a respread.
	for i := 0; i < 60; i++ {
		mustCreate(t, g, pageID, nil, &first.ID, "mid")
	}

	blocks, err := g.LoadPageBlocks(ctx, pageID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(blocks) != 62 {
		t.Fatalf("expected 62 blocks, got %d", len(blocks))
	}
	if blocks[0].Content != "first" || blocks[len(blocks)-1].Content != "last" {
		t.Fatalf("endpoints moved: %q ... %q", blocks[0].Content, blocks[len(blocks)-1].Content)
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i-1].OrderWeight >= blocks[i].OrderWeight {
			t.Fatalf("weights not strictly ascending at %d", i)
		}
	}
}

func TestIndentOutdent(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	a := mustCreate(t, g, pageID, nil, nil, "a")
	b := mustCreate(t, g, pageID, nil, &a.ID, "b")
	c := mustCreate(t, g, pageID, nil, &b.ID, "c")

	indented, err := g.IndentBlock(ctx, b.ID)
	if err != nil {
		t.Fatalf("indent: %v", err)
	}
	if indented.ParentID == nil || *indented.ParentID != a.ID {
		t.Fatalf("b should be parented under a, got %v", indented.ParentID)
	}

	// Outdent returns b to root level, positioned right after a (before c).
	outdented, err := g.OutdentBlock(ctx, b.ID)
	if err != nil {
		t.Fatalf("outdent: %v", err)
	}
	if outdented.ParentID != nil {
		t.Fatalf("b should be back at root, got parent %v", outdented.ParentID)
	}
	aRec, _ := g.LoadPageBlocks(ctx, pageID)
	var wa, wb, wc float64
	for _, blk := range aRec {
		switch blk.ID {
		case a.ID:
			wa = blk.OrderWeight
		case b.ID:
			wb = blk.OrderWeight
		case c.ID:
			wc = blk.OrderWeight
		}
	}
	if !(wa < wb && wb < wc) {
		t.Fatalf("expected a < b < c after outdent, got %v %v %v", wa, wb, wc)
	}
}

func TestIndent_FirstSiblingFails(t *testing.T) {
	g, pageID := newGateway(t)
	a := mustCreate(t, g, pageID, nil, nil, "a")
	if _, err := g.IndentBlock(context.Background(), a.ID); err == nil {
		t.Fatal("indenting a first sibling must fail at the gateway")
	}
}

func TestMergeBlocks(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	p := mustCreate(t, g, pageID, nil, nil, "Foo")
	q := mustCreate(t, g, pageID, &p.ID, nil, "Bar")
	qChild := mustCreate(t, g, pageID, &q.ID, nil, "child")

	changed, err := g.MergeBlocks(ctx, q.ID, p.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if changed[0].ID != p.ID || changed[0].Content != "FooBar" {
		t.Fatalf("target not first/merged: %+v", changed[0])
	}
	if len(changed) != 2 || changed[1].ID != qChild.ID {
		t.Fatalf("expected reparented child in response, got %+v", changed)
	}
	if changed[1].ParentID == nil || *changed[1].ParentID != p.ID {
		t.Fatalf("child not reparented under target: %+v", changed[1])
	}

	blocks, _ := g.LoadPageBlocks(ctx, pageID)
	for _, b := range blocks {
		if b.ID == q.ID {
			t.Fatal("source block must be destroyed")
		}
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 surviving blocks, got %d", len(blocks))
	}
}

func TestDeleteBlock_Cascades(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	a := mustCreate(t, g, pageID, nil, nil, "a")
	a1 := mustCreate(t, g, pageID, &a.ID, nil, "a1")
	a1x := mustCreate(t, g, pageID, &a1.ID, nil, "a1x")
	b := mustCreate(t, g, pageID, nil, &a.ID, "b")

	destroyed, err := g.DeleteBlock(ctx, a.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	want := map[string]bool{a.ID: true, a1.ID: true, a1x.ID: true}
	if len(destroyed) != 3 {
		t.Fatalf("expected 3 destroyed ids, got %v", destroyed)
	}
	for _, id := range destroyed {
		if !want[id] {
			t.Fatalf("unexpected destroyed id %s", id)
		}
	}

	blocks, _ := g.LoadPageBlocks(ctx, pageID)
	if len(blocks) != 1 || blocks[0].ID != b.ID {
		t.Fatalf("only b should survive, got %+v", blocks)
	}
}

func TestMoveBlock_RejectsOwnSubtree(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	a := mustCreate(t, g, pageID, nil, nil, "a")
	a1 := mustCreate(t, g, pageID, &a.ID, nil, "a1")

	if _, err := g.MoveBlock(ctx, a.ID, &a1.ID, nil); err == nil {
		t.Fatal("moving a block under its own descendant must fail")
	}
	if _, err := g.MoveBlock(ctx, a.ID, &a.ID, nil); err == nil {
		t.Fatal("moving a block under itself must fail")
	}
}

func TestUpdateBlock_Patch(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	b := mustCreate(t, g, pageID, nil, nil, "hello")
	content := "edited"
	lang := "go"
	codeType := domain.BlockTypeCode
	updated, err := g.UpdateBlock(ctx, b.ID, domain.BlockPatch{
		Content:  &content,
		Type:     &codeType,
		Language: &lang,
		Metadata: map[string]string{"pinned": "true"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "edited" || updated.Type != domain.BlockTypeCode || updated.Language != "go" {
		t.Fatalf("patch not applied: %+v", updated)
	}

	blocks, _ := g.LoadPageBlocks(ctx, pageID)
	if blocks[0].Metadata["pinned"] != "true" {
		t.Fatalf("metadata not persisted: %+v", blocks[0].Metadata)
	}
}

func TestToggleCollapse(t *testing.T) {
	g, pageID := newGateway(t)
	ctx := context.Background()

	b := mustCreate(t, g, pageID, nil, nil, "a")
	toggled, err := g.ToggleCollapse(ctx, b.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Collapsed {
		t.Fatal("expected collapsed after first toggle")
	}
	toggled, err = g.ToggleCollapse(ctx, b.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.Collapsed {
		t.Fatal("expected expanded after second toggle")
	}
}
