package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Block is a unit of content inside a page. Blocks may nest under other
// blocks of the same page; PageID never changes after creation.
type Block struct {
	ID        string
	Type      BlockType
	Content   Content
	ParentID  Ref
	PageID    string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

// GroupKey returns the block's secondary index key: its owning page.
func (b Block) GroupKey() Ref { return RefTo(b.PageID) }

// SortOrder returns the block's position among the blocks of its page.
func (b Block) SortOrder() int { return b.Order }

// Key returns the block id.
func (b Block) Key() string { return b.ID }

// Validate checks the block's type and content agree.
func (b Block) Validate() error {
	return ValidateContent(b.Type, b.Content)
}

type blockJSON struct {
	ID        string          `json:"id"`
	Type      BlockType       `json:"type"`
	Content   json.RawMessage `json:"content"`
	ParentID  Ref             `json:"parentId"`
	PageID    string          `json:"pageId"`
	Order     int             `json:"order"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	CreatedBy string          `json:"createdBy"`
	UpdatedBy string          `json:"updatedBy"`
}

// MarshalJSON implements json.Marshaler.
func (b Block) MarshalJSON() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	content, err := json.Marshal(b.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockJSON{
		ID:        b.ID,
		Type:      b.Type,
		Content:   content,
		ParentID:  b.ParentID,
		PageID:    b.PageID,
		Order:     b.Order,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		CreatedBy: b.CreatedBy,
		UpdatedBy: b.UpdatedBy,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Content is decoded into the
// variant selected by type.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw blockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("block %s: %w", raw.ID, err)
	}
	*b = Block{
		ID:        raw.ID,
		Type:      raw.Type,
		Content:   content,
		ParentID:  raw.ParentID,
		PageID:    raw.PageID,
		Order:     raw.Order,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
		CreatedBy: raw.CreatedBy,
		UpdatedBy: raw.UpdatedBy,
	}
	return nil
}

// BlockDraft is the body of a block creation request. The type is taken from
// the content.
type BlockDraft struct {
	Content   Content
	ParentID  Ref
	PageID    string
	CreatedBy string
}

// Validate checks the draft can be sent.
func (d BlockDraft) Validate() error {
	if d.PageID == "" {
		return fmt.Errorf("%w: block draft without page", ErrInvalidContent)
	}
	if d.Content == nil {
		return fmt.Errorf("%w: block draft without content", ErrInvalidContent)
	}
	return ValidateContent(d.Content.BlockType(), d.Content)
}

type blockDraftJSON struct {
	Type      BlockType       `json:"type"`
	Content   json.RawMessage `json:"content"`
	ParentID  Ref             `json:"parentId"`
	PageID    string          `json:"pageId"`
	CreatedBy string          `json:"createdBy"`
	UpdatedBy string          `json:"updatedBy"`
}

// MarshalJSON implements json.Marshaler.
func (d BlockDraft) MarshalJSON() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	content, err := json.Marshal(d.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockDraftJSON{
		Type:      d.Content.BlockType(),
		Content:   content,
		ParentID:  d.ParentID,
		PageID:    d.PageID,
		CreatedBy: d.CreatedBy,
		UpdatedBy: d.CreatedBy,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *BlockDraft) UnmarshalJSON(data []byte) error {
	var raw blockDraftJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return err
	}
	*d = BlockDraft{Content: content, ParentID: raw.ParentID, PageID: raw.PageID, CreatedBy: raw.CreatedBy}
	return nil
}

// BlockPatch is a partial block update. A nil Content leaves type and content
// unchanged. Structural changes go through move, never through a patch.
type BlockPatch struct {
	Content   Content
	UpdatedBy *string
}

type blockPatchJSON struct {
	Type      BlockType       `json:"type,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	UpdatedBy *string         `json:"updatedBy,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p BlockPatch) MarshalJSON() ([]byte, error) {
	out := blockPatchJSON{UpdatedBy: p.UpdatedBy}
	if p.Content != nil {
		if err := ValidateContent(p.Content.BlockType(), p.Content); err != nil {
			return nil, err
		}
		content, err := json.Marshal(p.Content)
		if err != nil {
			return nil, err
		}
		out.Type = p.Content.BlockType()
		out.Content = content
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *BlockPatch) UnmarshalJSON(data []byte) error {
	var raw blockPatchJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = BlockPatch{UpdatedBy: raw.UpdatedBy}
	if raw.Type == "" {
		return nil
	}
	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return err
	}
	p.Content = content
	return nil
}

// Apply returns b with the patch applied.
func (p BlockPatch) Apply(b Block) Block {
	if p.Content != nil {
		b.Content = p.Content
		b.Type = p.Content.BlockType()
	}
	if p.UpdatedBy != nil {
		b.UpdatedBy = *p.UpdatedBy
	}
	return b
}
