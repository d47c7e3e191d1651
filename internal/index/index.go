package index

import (
	"fmt"
	"sort"

	"oxinot/internal/domain"
	"oxinot/internal/ordering"
)

// RootKey groups root-level blocks (nil ParentID) in the children map.
const RootKey = "__root__"

// ─────────────────────────────────────────────────────────────
// Index — normalized in-memory block tree
// ─────────────────────────────────────────────────────────────

// Index holds a page's blocks as a block-by-id map plus children-by-parent
// adjacency lists. The children map is derived, never authoritative: it is
// always reconstructible from the block map by grouping on parent and
// sorting by order weight.
type Index struct {
	byID     map[string]*domain.Block
	children map[string][]string
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byID:     make(map[string]*domain.Block),
		children: make(map[string][]string),
	}
}

// Build replaces the whole index from a flat block list.
func (x *Index) Build(blocks []domain.Block) {
	x.byID = make(map[string]*domain.Block, len(blocks))
	x.children = make(map[string][]string)
	for i := range blocks {
		b := blocks[i]
		x.byID[b.ID] = &b
	}
	keys := make(map[string]struct{})
	for _, b := range x.byID {
		keys[ParentKeyOf(b)] = struct{}{}
	}
	for key := range keys {
		x.rebuildGroup(key)
	}
}

// RebuildFor recomputes only the named parent groups, bounding the cost of a
// structural edit to the affected subtree roots.
func (x *Index) RebuildFor(parentKeys ...string) {
	for _, key := range parentKeys {
		x.rebuildGroup(key)
	}
}

func (x *Index) rebuildGroup(key string) {
	var ids []string
	for id, b := range x.byID {
		if ParentKeyOf(b) == key {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		delete(x.children, key)
		return
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := x.byID[ids[i]], x.byID[ids[j]]
		return ordering.Less(a.OrderWeight, b.OrderWeight, a.ID, b.ID)
	})
	x.children[key] = ids
}

// ParentKeyOf returns the children-map key for a block's parent.
func ParentKeyOf(b *domain.Block) string {
	if b.ParentID == nil {
		return RootKey
	}
	return *b.ParentID
}

// Put inserts or replaces a block. The caller is responsible for rebuilding
// the affected parent groups afterwards.
func (x *Index) Put(b *domain.Block) {
	x.byID[b.ID] = b
}

// Remove deletes a block from the id map. As with Put, the caller rebuilds
// the affected groups.
func (x *Index) Remove(id string) {
	delete(x.byID, id)
	delete(x.children, id)
}

// Get returns a block by id, or nil.
func (x *Index) Get(id string) *domain.Block {
	return x.byID[id]
}

// Len returns the number of indexed blocks.
func (x *Index) Len() int { return len(x.byID) }

// All returns every indexed block in unspecified order.
func (x *Index) All() []domain.Block {
	out := make([]domain.Block, 0, len(x.byID))
	for _, b := range x.byID {
		out = append(out, *b)
	}
	return out
}

// Children returns the ordered child ids under a parent key.
func (x *Index) Children(parentKey string) []string {
	return x.children[parentKey]
}

// Roots returns the ordered root-level block ids.
func (x *Index) Roots() []string {
	return x.children[RootKey]
}

// siblings returns the ordered sibling list containing id, plus id's
// position within it. pos is -1 when the block is unknown.
func (x *Index) siblings(id string) ([]string, int) {
	b := x.byID[id]
	if b == nil {
		return nil, -1
	}
	sibs := x.children[ParentKeyOf(b)]
	for i, sid := range sibs {
		if sid == id {
			return sibs, i
		}
	}
	return sibs, -1
}

// PreviousSibling returns the id of the sibling immediately before id, or ""
// when id is first (or unknown).
func (x *Index) PreviousSibling(id string) string {
	sibs, pos := x.siblings(id)
	if pos <= 0 {
		return ""
	}
	return sibs[pos-1]
}

// NextSibling returns the id of the sibling immediately after id, or "".
func (x *Index) NextSibling(id string) string {
	sibs, pos := x.siblings(id)
	if pos < 0 || pos+1 >= len(sibs) {
		return ""
	}
	return sibs[pos+1]
}

// Descendants returns every id in id's subtree, excluding id itself, in
// depth-first order.
func (x *Index) Descendants(id string) []string {
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, child := range x.children[cur] {
			out = append(out, child)
			walk(child)
		}
	}
	walk(id)
	return out
}

// ─────────────────────────────────────────────────────────────
// Visible-order navigation
// ─────────────────────────────────────────────────────────────

// PreviousVisible returns the block preceding id in depth-first visible
// order: the previous sibling's deepest visible last descendant, else the
// parent, else nil at the top of the page.
func (x *Index) PreviousVisible(id string) *domain.Block {
	b := x.byID[id]
	if b == nil {
		return nil
	}
	if prev := x.PreviousSibling(id); prev != "" {
		return x.byID[x.lastVisibleDescendant(prev)]
	}
	if b.ParentID != nil {
		return x.byID[*b.ParentID]
	}
	return nil
}

// lastVisibleDescendant descends into id's last child while each level is
// expanded and has children.
func (x *Index) lastVisibleDescendant(id string) string {
	cur := id
	for {
		b := x.byID[cur]
		kids := x.children[cur]
		if b == nil || b.Collapsed || len(kids) == 0 {
			return cur
		}
		cur = kids[len(kids)-1]
	}
}

// Next returns the block following id in depth-first visible order: the
// first child when expanded, else the next sibling of the nearest ancestor
// that has one, else nil at the bottom of the page.
func (x *Index) Next(id string) *domain.Block {
	b := x.byID[id]
	if b == nil {
		return nil
	}
	if !b.Collapsed {
		if kids := x.children[id]; len(kids) > 0 {
			return x.byID[kids[0]]
		}
	}
	cur := b
	for cur != nil {
		if next := x.NextSibling(cur.ID); next != "" {
			return x.byID[next]
		}
		if cur.ParentID == nil {
			return nil
		}
		cur = x.byID[*cur.ParentID]
	}
	return nil
}

// Visible returns the page's visible blocks in depth-first order, skipping
// the children of collapsed blocks. Collapse hides children from this
// projection only; storage is unaffected.
func (x *Index) Visible() []domain.Block {
	var out []domain.Block
	var walk func(key string)
	walk = func(key string) {
		for _, id := range x.children[key] {
			b := x.byID[id]
			out = append(out, *b)
			if !b.Collapsed {
				walk(id)
			}
		}
	}
	walk(RootKey)
	return out
}

// DepthFirst returns every block of the page in depth-first sibling order,
// descending into collapsed subtrees. This is the full-tree counterpart of
// Visible.
func (x *Index) DepthFirst() []domain.Block {
	var out []domain.Block
	var walk func(key string)
	walk = func(key string) {
		for _, id := range x.children[key] {
			out = append(out, *x.byID[id])
			walk(id)
		}
	}
	walk(RootKey)
	return out
}

// Depth returns how many ancestors a block has (0 for root level).
func (x *Index) Depth(id string) int {
	depth := 0
	b := x.byID[id]
	for b != nil && b.ParentID != nil {
		depth++
		b = x.byID[*b.ParentID]
	}
	return depth
}

// ─────────────────────────────────────────────────────────────
// Invariant check
// ─────────────────────────────────────────────────────────────

// Validate checks the index invariants: every child reference resolves,
// every block sits in exactly the group matching its parent at the position
// matching its weight, and no block is orphaned from the children map.
func (x *Index) Validate() error {
	seen := make(map[string]string, len(x.byID))
	for key, ids := range x.children {
		for i, id := range ids {
			b := x.byID[id]
			if b == nil {
				return &domain.InvariantViolation{Detail: fmt.Sprintf("dangling child %s under %s", id, key)}
			}
			if ParentKeyOf(b) != key {
				return &domain.InvariantViolation{Detail: fmt.Sprintf("block %s grouped under %s but parented to %s", id, key, ParentKeyOf(b))}
			}
			if prev, dup := seen[id]; dup {
				return &domain.InvariantViolation{Detail: fmt.Sprintf("block %s in groups %s and %s", id, prev, key)}
			}
			seen[id] = key
			if i > 0 {
				a := x.byID[ids[i-1]]
				if !ordering.Less(a.OrderWeight, b.OrderWeight, a.ID, b.ID) {
					return &domain.InvariantViolation{Detail: fmt.Sprintf("group %s not ascending at %s", key, id)}
				}
			}
		}
	}
	for id := range x.byID {
		if _, ok := seen[id]; !ok {
			return &domain.InvariantViolation{Detail: fmt.Sprintf("block %s missing from children map", id)}
		}
	}
	return nil
}
