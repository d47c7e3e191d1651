package domain

import (
	"context"
	"time"
)

type BlockType string

const (
	BlockTypeBullet BlockType = "bullet"
	BlockTypeCode   BlockType = "code"
)

// Block is a single node in a page's outline tree. ParentID is nil for
// root-level blocks; OrderWeight establishes the order among siblings.
type Block struct {
	ID          string            `json:"id"`
	PageID      string            `json:"pageId"`
	ParentID    *string           `json:"parentId"`
	Content     string            `json:"content"`
	OrderWeight float64           `json:"orderWeight"`
	Collapsed   bool              `json:"isCollapsed"`
	Type        BlockType         `json:"type"`
	Language    string            `json:"language,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// BlockPatch is a partial update for UpdateBlock. Nil fields are left
// untouched; Metadata replaces the whole mapping when non-nil.
type BlockPatch struct {
	Content  *string           `json:"content,omitempty"`
	Type     *BlockType        `json:"type,omitempty"`
	Language *string           `json:"language,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// BlocksChanged is the payload broadcast after every successful mutation so
// external listeners (projections, caches, activity trackers) can mirror
// state. Listeners must tolerate duplicate delivery.
type BlocksChanged struct {
	UpdatedOrCreated []Block  `json:"updatedOrCreated"`
	DeletedIDs       []string `json:"deletedIds"`
}

// Gateway is the authoritative persistence service for blocks. Every call is
// atomic: either the change lands and canonical records return, or an error
// is raised and no partial local state may be trusted. A nil afterID places
// the new or moved block at the head of the target sibling list.
type Gateway interface {
	CreateBlock(ctx context.Context, pageID string, parentID, afterID *string, content string) (*Block, error)
	UpdateBlock(ctx context.Context, id string, patch BlockPatch) (*Block, error)
	// DeleteBlock removes the block and its descendants, returning every
	// destroyed id.
	DeleteBlock(ctx context.Context, id string) ([]string, error)
	MoveBlock(ctx context.Context, id string, newParentID, afterID *string) (*Block, error)
	IndentBlock(ctx context.Context, id string) (*Block, error)
	OutdentBlock(ctx context.Context, id string) (*Block, error)
	// MergeBlocks appends sourceID's text to targetID and reparents the
	// source's children under the target; the source is destroyed. Returns
	// the changed blocks (target plus reparented children).
	MergeBlocks(ctx context.Context, sourceID, targetID string) ([]Block, error)
	ToggleCollapse(ctx context.Context, id string) (*Block, error)
	LoadPageBlocks(ctx context.Context, pageID string) ([]Block, error)
}
