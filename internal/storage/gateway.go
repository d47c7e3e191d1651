package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"oxinot/internal/domain"
	"oxinot/internal/ordering"
)

// ─────────────────────────────────────────────────────────────
// BlockGateway — domain.Gateway over SQLite
// ─────────────────────────────────────────────────────────────

// BlockGateway implements domain.Gateway. Every operation runs in a single
// transaction: either the change lands and canonical records are returned,
// or nothing is written. Order weights are computed here, next to the data,
// including respreading a sibling list when a gap is exhausted.
type BlockGateway struct {
	db *DB
}

func NewBlockGateway(db *DB) *BlockGateway {
	return &BlockGateway{db: db}
}

const blockColumns = `id, page_id, parent_id, content, order_weight, collapsed, block_type, language, metadata_json, created_at, updated_at`

func scanBlock(row interface{ Scan(...any) error }) (*domain.Block, error) {
	b := &domain.Block{}
	var parentID sql.NullString
	var collapsed int
	var metaJSON string
	err := row.Scan(&b.ID, &b.PageID, &parentID, &b.Content, &b.OrderWeight,
		&collapsed, &b.Type, &b.Language, &metaJSON, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		b.ParentID = &parentID.String
	}
	b.Collapsed = collapsed != 0
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &b.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", b.ID, err)
		}
	}
	return b, nil
}

func getBlockTx(tx *sql.Tx, id string) (*domain.Block, error) {
	b, err := scanBlock(tx.QueryRow(`SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", id, err)
	}
	return b, nil
}

// siblingRef is the minimal sibling view needed for weight computation.
type siblingRef struct {
	id     string
	weight float64
}

func siblingsTx(tx *sql.Tx, pageID string, parentID *string) ([]siblingRef, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = tx.Query(`SELECT id, order_weight FROM blocks WHERE page_id = ? AND parent_id IS NULL ORDER BY order_weight ASC, id ASC`, pageID)
	} else {
		rows, err = tx.Query(`SELECT id, order_weight FROM blocks WHERE page_id = ? AND parent_id = ? ORDER BY order_weight ASC, id ASC`, pageID, *parentID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sibs []siblingRef
	for rows.Next() {
		var s siblingRef
		if err := rows.Scan(&s.id, &s.weight); err != nil {
			return nil, err
		}
		sibs = append(sibs, s)
	}
	return sibs, rows.Err()
}

// insertWeight computes the weight for a block entering the sibling list of
// parentID right after afterID (nil afterID = head of the list). When the
// target gap is exhausted the whole list is respread first, inside the same
// transaction. excludeID is left out of the computation so a moved block
// does not collide with its own old position.
func insertWeight(tx *sql.Tx, pageID string, parentID *string, afterID *string, excludeID string) (float64, error) {
	sibs, err := siblingsTx(tx, pageID, parentID)
	if err != nil {
		return 0, err
	}
	if excludeID != "" {
		kept := sibs[:0]
		for _, s := range sibs {
			if s.id != excludeID {
				kept = append(kept, s)
			}
		}
		sibs = kept
	}

	w, ok := weightBetweenNeighbors(sibs, afterID)
	if ok {
		return w, nil
	}

	// Gap exhausted — respread the sibling list and recompute.
	weights := ordering.Spread(len(sibs))
	for i, s := range sibs {
		if _, err := tx.Exec(`UPDATE blocks SET order_weight = ? WHERE id = ?`, weights[i], s.id); err != nil {
			return 0, fmt.Errorf("respread sibling %s: %w", s.id, err)
		}
		sibs[i].weight = weights[i]
	}
	w, ok = weightBetweenNeighbors(sibs, afterID)
	if !ok {
		return 0, fmt.Errorf("sibling gap exhausted even after respread")
	}
	return w, nil
}

func weightBetweenNeighbors(sibs []siblingRef, afterID *string) (float64, bool) {
	if len(sibs) == 0 {
		return ordering.Initial(), true
	}
	if afterID == nil {
		return ordering.Before(sibs[0].weight), true
	}
	for i, s := range sibs {
		if s.id != *afterID {
			continue
		}
		if i+1 < len(sibs) {
			return ordering.Between(s.weight, sibs[i+1].weight)
		}
		return ordering.After(s.weight), true
	}
	// afterID not among the siblings — append at the end.
	return ordering.After(sibs[len(sibs)-1].weight), true
}

func (g *BlockGateway) begin() (*sql.Tx, error) {
	tx, err := g.db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// CreateBlock inserts a new block under parentID, positioned after afterID
// (or at the head of the sibling list when afterID is nil), and returns the
// canonical record with its server-assigned id.
func (g *BlockGateway) CreateBlock(ctx context.Context, pageID string, parentID, afterID *string, content string) (*domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if parentID != nil {
		if _, err := getBlockTx(tx, *parentID); err != nil {
			return nil, fmt.Errorf("create block: parent: %w", err)
		}
	}
	weight, err := insertWeight(tx, pageID, parentID, afterID, "")
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	now := time.Now()
	id := uuid.New().String()
	_, err = tx.Exec(
		`INSERT INTO blocks (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?, '', '{}', ?, ?)`,
		id, pageID, nullable(parentID), content, weight, domain.BlockTypeBullet, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	b, err := getBlockTx(tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create block: commit: %w", err)
	}
	return b, nil
}

// UpdateBlock applies a partial content/metadata patch and returns the
// updated record.
func (g *BlockGateway) UpdateBlock(ctx context.Context, id string, patch domain.BlockPatch) (*domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := getBlockTx(tx, id)
	if err != nil {
		return nil, err
	}
	if patch.Content != nil {
		b.Content = *patch.Content
	}
	if patch.Type != nil {
		b.Type = *patch.Type
	}
	if patch.Language != nil {
		b.Language = *patch.Language
	}
	if patch.Metadata != nil {
		b.Metadata = patch.Metadata
	}
	metaJSON, err := encodeMetadata(b.Metadata)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now()
	_, err = tx.Exec(
		`UPDATE blocks SET content = ?, block_type = ?, language = ?, metadata_json = ?, updated_at = ? WHERE id = ?`,
		b.Content, b.Type, b.Language, metaJSON, b.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update block %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update block: commit: %w", err)
	}
	return b, nil
}

// DeleteBlock removes the block and every descendant, returning all
// destroyed ids.
func (g *BlockGateway) DeleteBlock(ctx context.Context, id string) ([]string, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := getBlockTx(tx, id); err != nil {
		return nil, err
	}
	ids, err := subtreeIDs(tx, id)
	if err != nil {
		return nil, fmt.Errorf("delete block %s: %w", id, err)
	}
	for _, did := range ids {
		if _, err := tx.Exec(`DELETE FROM blocks WHERE id = ?`, did); err != nil {
			return nil, fmt.Errorf("delete block %s: %w", did, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete block: commit: %w", err)
	}
	return ids, nil
}

// subtreeIDs returns id plus all its descendants.
func subtreeIDs(tx *sql.Tx, id string) ([]string, error) {
	rows, err := tx.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM blocks WHERE id = ?
			UNION ALL
			SELECT b.id FROM blocks b JOIN subtree s ON b.parent_id = s.id
		)
		SELECT id FROM subtree`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var bid string
		if err := rows.Scan(&bid); err != nil {
			return nil, err
		}
		ids = append(ids, bid)
	}
	return ids, rows.Err()
}

// MoveBlock reparents/reorders a block. Moving a block into its own subtree
// is refused.
func (g *BlockGateway) MoveBlock(ctx context.Context, id string, newParentID, afterID *string) (*domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := getBlockTx(tx, id)
	if err != nil {
		return nil, err
	}
	if newParentID != nil {
		if *newParentID == id {
			return nil, fmt.Errorf("move block %s: cannot parent to itself", id)
		}
		subtree, err := subtreeIDs(tx, id)
		if err != nil {
			return nil, fmt.Errorf("move block %s: %w", id, err)
		}
		for _, sid := range subtree {
			if sid == *newParentID {
				return nil, fmt.Errorf("move block %s: target parent %s is inside its subtree", id, *newParentID)
			}
		}
	}

	b, err = reparentTx(tx, b, newParentID, afterID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("move block: commit: %w", err)
	}
	return b, nil
}

// reparentTx writes a block's new parent and weight and returns the fresh
// record.
func reparentTx(tx *sql.Tx, b *domain.Block, newParentID, afterID *string) (*domain.Block, error) {
	weight, err := insertWeight(tx, b.PageID, newParentID, afterID, b.ID)
	if err != nil {
		return nil, fmt.Errorf("move block %s: %w", b.ID, err)
	}
	_, err = tx.Exec(
		`UPDATE blocks SET parent_id = ?, order_weight = ?, updated_at = ? WHERE id = ?`,
		nullable(newParentID), weight, time.Now(), b.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("move block %s: %w", b.ID, err)
	}
	return getBlockTx(tx, b.ID)
}

// IndentBlock reparents a block under its immediately preceding sibling,
// appended as that sibling's last child. The subtree travels with it.
func (g *BlockGateway) IndentBlock(ctx context.Context, id string) (*domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := getBlockTx(tx, id)
	if err != nil {
		return nil, err
	}
	sibs, err := siblingsTx(tx, b.PageID, b.ParentID)
	if err != nil {
		return nil, fmt.Errorf("indent block %s: %w", id, err)
	}
	prev := ""
	for i, s := range sibs {
		if s.id == id && i > 0 {
			prev = sibs[i-1].id
		}
	}
	if prev == "" {
		return nil, fmt.Errorf("indent block %s: no preceding sibling", id)
	}

	// Append as the last child of the previous sibling.
	kids, err := siblingsTx(tx, b.PageID, &prev)
	if err != nil {
		return nil, fmt.Errorf("indent block %s: %w", id, err)
	}
	var afterID *string
	if len(kids) > 0 {
		afterID = &kids[len(kids)-1].id
	}
	b, err = reparentTx(tx, b, &prev, afterID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("indent block: commit: %w", err)
	}
	return b, nil
}

// OutdentBlock reparents a block to its grandparent, positioned immediately
// after its former parent.
func (g *BlockGateway) OutdentBlock(ctx context.Context, id string) (*domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := getBlockTx(tx, id)
	if err != nil {
		return nil, err
	}
	if b.ParentID == nil {
		return nil, fmt.Errorf("outdent block %s: already at root", id)
	}
	parent, err := getBlockTx(tx, *b.ParentID)
	if err != nil {
		return nil, err
	}

	b, err = reparentTx(tx, b, parent.ParentID, &parent.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("outdent block: commit: %w", err)
	}
	return b, nil
}

// MergeBlocks appends the source block's content to the target, reparents
// the source's children to the end of the target's child list (preserving
// their order), and destroys the source — all in one transaction. Returns
// the changed blocks: the target first, then the reparented children.
func (g *BlockGateway) MergeBlocks(ctx context.Context, sourceID, targetID string) ([]domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	source, err := getBlockTx(tx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := getBlockTx(tx, targetID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	target.Content += source.Content
	target.UpdatedAt = now
	if _, err := tx.Exec(
		`UPDATE blocks SET content = ?, updated_at = ? WHERE id = ?`,
		target.Content, target.UpdatedAt, targetID,
	); err != nil {
		return nil, fmt.Errorf("merge blocks: append content: %w", err)
	}

	// Reparent source's children after the target's existing children.
	targetKids, err := siblingsTx(tx, target.PageID, &target.ID)
	if err != nil {
		return nil, fmt.Errorf("merge blocks: %w", err)
	}
	weight := ordering.Initial()
	if len(targetKids) > 0 {
		weight = ordering.After(targetKids[len(targetKids)-1].weight)
	}
	sourceKids, err := siblingsTx(tx, source.PageID, &source.ID)
	if err != nil {
		return nil, fmt.Errorf("merge blocks: %w", err)
	}
	changed := []domain.Block{*target}
	for _, kid := range sourceKids {
		if _, err := tx.Exec(
			`UPDATE blocks SET parent_id = ?, order_weight = ?, updated_at = ? WHERE id = ?`,
			targetID, weight, now, kid.id,
		); err != nil {
			return nil, fmt.Errorf("merge blocks: reparent child %s: %w", kid.id, err)
		}
		moved, err := getBlockTx(tx, kid.id)
		if err != nil {
			return nil, err
		}
		changed = append(changed, *moved)
		weight = ordering.After(weight)
	}

	if _, err := tx.Exec(`DELETE FROM blocks WHERE id = ?`, sourceID); err != nil {
		return nil, fmt.Errorf("merge blocks: delete source: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("merge blocks: commit: %w", err)
	}
	return changed, nil
}

// ToggleCollapse flips the collapsed flag and returns the updated record.
func (g *BlockGateway) ToggleCollapse(ctx context.Context, id string) (*domain.Block, error) {
	tx, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := getBlockTx(tx, id)
	if err != nil {
		return nil, err
	}
	b.Collapsed = !b.Collapsed
	b.UpdatedAt = time.Now()
	collapsed := 0
	if b.Collapsed {
		collapsed = 1
	}
	if _, err := tx.Exec(
		`UPDATE blocks SET collapsed = ?, updated_at = ? WHERE id = ?`,
		collapsed, b.UpdatedAt, id,
	); err != nil {
		return nil, fmt.Errorf("toggle collapse %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("toggle collapse: commit: %w", err)
	}
	return b, nil
}

// LoadPageBlocks returns every block of a page as a flat list.
func (g *BlockGateway) LoadPageBlocks(ctx context.Context, pageID string) ([]domain.Block, error) {
	rows, err := g.db.conn.Query(
		`SELECT `+blockColumns+` FROM blocks WHERE page_id = ? ORDER BY order_weight ASC, id ASC`, pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("load page blocks: %w", err)
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("load page blocks: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

// ── helpers ────────────────────────────────────────────────

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}
