package index_test

import (
	"errors"
	"fmt"
	"testing"

	"oxinot/internal/domain"
	"oxinot/internal/index"
)

func ptr(s string) *string { return &s }

// outline builds blocks from (id, parentID, weight) triples.
func outline(rows ...[3]string) []domain.Block {
	var blocks []domain.Block
	for i, r := range rows {
		b := domain.Block{
			ID:          r[0],
			PageID:      "page-1",
			Content:     r[0],
			Type:        domain.BlockTypeBullet,
			OrderWeight: float64((i + 1) * 1024),
		}
		if r[1] != "" {
			b.ParentID = ptr(r[1])
		}
		if r[2] != "" {
			fmt.Sscanf(r[2], "%f", &b.OrderWeight)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func TestBuild_GroupsAndSorts(t *testing.T) {
	x := index.New()
	x.Build(outline(
		[3]string{"a", "", "2048"},
		[3]string{"b", "", "1024"},
		[3]string{"a1", "a", "1024"},
		[3]string{"a2", "a", "512"},
	))

	roots := x.Roots()
	if len(roots) != 2 || roots[0] != "b" || roots[1] != "a" {
		t.Fatalf("roots not sorted by weight: %v", roots)
	}
	kids := x.Children("a")
	if len(kids) != 2 || kids[0] != "a2" || kids[1] != "a1" {
		t.Fatalf("children of a not sorted: %v", kids)
	}
	if err := x.Validate(); err != nil {
		t.Fatalf("valid tree failed validation: %v", err)
	}
}

func TestRebuildFor_AgreesWithFullBuild(t *testing.T) {
	blocks := outline(
		[3]string{"a", "", "1024"},
		[3]string{"b", "", "2048"},
		[3]string{"a1", "a", "1024"},
	)
	x := index.New()
	x.Build(blocks)

	// Reparent a1 under b, then rebuild only the two affected groups.
	a1 := x.Get("a1")
	a1.ParentID = ptr("b")
	a1.OrderWeight = 1024
	x.RebuildFor("a", "b")

	full := index.New()
	full.Build(x.All())

	for _, key := range []string{index.RootKey, "a", "b"} {
		got, want := x.Children(key), full.Children(key)
		if len(got) != len(want) {
			t.Fatalf("group %s differs: %v vs %v", key, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("group %s differs at %d: %v vs %v", key, i, got, want)
			}
		}
	}
	if err := x.Validate(); err != nil {
		t.Fatalf("incremental rebuild broke invariants: %v", err)
	}
}

func TestNavigation_VisibleOrder(t *testing.T) {
	// a
	//   a1
	//     a1x
	// b
	x := index.New()
	x.Build(outline(
		[3]string{"a", "", "1024"},
		[3]string{"a1", "a", "1024"},
		[3]string{"a1x", "a1", "1024"},
		[3]string{"b", "", "2048"},
	))

	if prev := x.PreviousVisible("b"); prev == nil || prev.ID != "a1x" {
		t.Fatalf("previous of b should be deepest descendant a1x, got %+v", prev)
	}
	if prev := x.PreviousVisible("a1"); prev == nil || prev.ID != "a" {
		t.Fatalf("previous of a1 should be parent a, got %+v", prev)
	}
	if prev := x.PreviousVisible("a"); prev != nil {
		t.Fatalf("previous of first root should be nil, got %+v", prev)
	}
	if next := x.Next("a"); next == nil || next.ID != "a1" {
		t.Fatalf("next of a should be first child a1, got %+v", next)
	}
	if next := x.Next("a1x"); next == nil || next.ID != "b" {
		t.Fatalf("next of a1x should climb to b, got %+v", next)
	}
	if next := x.Next("b"); next != nil {
		t.Fatalf("next of last block should be nil, got %+v", next)
	}
}

func TestNavigation_SkipsCollapsed(t *testing.T) {
	x := index.New()
	x.Build(outline(
		[3]string{"a", "", "1024"},
		[3]string{"a1", "a", "1024"},
		[3]string{"b", "", "2048"},
	))
	x.Get("a").Collapsed = true

	if prev := x.PreviousVisible("b"); prev == nil || prev.ID != "a" {
		t.Fatalf("collapsed subtree must not be descended into, got %+v", prev)
	}
	if next := x.Next("a"); next == nil || next.ID != "b" {
		t.Fatalf("next of collapsed a should skip children, got %+v", next)
	}

	visible := x.Visible()
	for _, b := range visible {
		if b.ID == "a1" {
			t.Fatal("a1 must be hidden from the visible projection")
		}
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible blocks, got %d", len(visible))
	}
	// Storage unaffected: a1 is still indexed.
	if x.Get("a1") == nil {
		t.Fatal("collapse must not remove children from the index")
	}
}

func TestDepthFirst_DescendsIntoCollapsed(t *testing.T) {
	x := index.New()
	x.Build(outline(
		[3]string{"a", "", "1024"},
		[3]string{"a1", "a", "1024"},
		[3]string{"a2", "a", "2048"},
		[3]string{"b", "", "2048"},
		[3]string{"b1", "b", "1024"},
	))
	x.Get("a").Collapsed = true

	got := x.DepthFirst()
	want := []string{"a", "a1", "a2", "b", "b1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestDescendants(t *testing.T) {
	x := index.New()
	x.Build(outline(
		[3]string{"a", "", "1024"},
		[3]string{"a1", "a", "1024"},
		[3]string{"a1x", "a1", "1024"},
		[3]string{"b", "", "2048"},
	))
	ds := x.Descendants("a")
	if len(ds) != 2 || ds[0] != "a1" || ds[1] != "a1x" {
		t.Fatalf("unexpected descendants: %v", ds)
	}
	if len(x.Descendants("b")) != 0 {
		t.Fatal("leaf must have no descendants")
	}
}

func TestValidate_DetectsDangler(t *testing.T) {
	x := index.New()
	x.Build(outline(
		[3]string{"a", "", "1024"},
		[3]string{"a1", "a", "1024"},
	))
	// Simulate a missed rebuild: drop the block but keep the child list.
	x.Put(&domain.Block{ID: "a1", PageID: "page-1", ParentID: ptr("a"), OrderWeight: 1024})
	x.Remove("a1")

	err := x.Validate()
	if err == nil {
		t.Fatal("expected validation failure for dangling child reference")
	}
	var iv *domain.InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolation, got %T", err)
	}
}
