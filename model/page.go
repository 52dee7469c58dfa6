package model

import (
	"encoding/json"
	"time"
)

// Page is a node in the page forest.
type Page struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Icon         string    `json:"icon,omitempty"`
	Cover        string    `json:"cover,omitempty"`
	ParentID     Ref       `json:"parentId"`
	Order        int       `json:"order"`
	IsPublic     bool      `json:"isPublic"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	CreatedBy    string    `json:"createdBy"`
	UpdatedBy    string    `json:"updatedBy"`
	LastEditedBy string    `json:"lastEditedBy"`
	LastEditedAt time.Time `json:"lastEditedAt"`
}

// GroupKey returns the page's secondary index key.
func (p Page) GroupKey() Ref { return p.ParentID }

// SortOrder returns the page's position among its siblings.
func (p Page) SortOrder() int { return p.Order }

// Key returns the page id.
func (p Page) Key() string { return p.ID }

// PageDraft is the body of a page creation request. Order is assigned by the
// server and therefore absent.
type PageDraft struct {
	Title        string    `json:"title"`
	Icon         string    `json:"icon,omitempty"`
	Cover        string    `json:"cover,omitempty"`
	ParentID     Ref       `json:"parentId"`
	IsPublic     bool      `json:"isPublic"`
	CreatedBy    string    `json:"createdBy"`
	UpdatedBy    string    `json:"updatedBy"`
	LastEditedBy string    `json:"lastEditedBy"`
	LastEditedAt time.Time `json:"lastEditedAt"`
}

// PagePatch is a partial page update. Nil fields are left unchanged.
// A non-nil ParentID holding Null moves the page to the root.
type PagePatch struct {
	Title        *string    `json:"title,omitempty"`
	Icon         *string    `json:"icon,omitempty"`
	Cover        *string    `json:"cover,omitempty"`
	ParentID     *Ref       `json:"parentId,omitempty"`
	IsPublic     *bool      `json:"isPublic,omitempty"`
	UpdatedBy    *string    `json:"updatedBy,omitempty"`
	LastEditedBy *string    `json:"lastEditedBy,omitempty"`
	LastEditedAt *time.Time `json:"lastEditedAt,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. A present "parentId": null is
// kept as a pointer to Null so that moving to the root survives a round trip.
func (patch *PagePatch) UnmarshalJSON(data []byte) error {
	type plain PagePatch
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["parentId"]; ok {
		var ref Ref
		if err := ref.UnmarshalJSON(raw); err != nil {
			return err
		}
		p.ParentID = &ref
	}
	*patch = PagePatch(p)
	return nil
}

// ChangesParent reports whether the patch moves the page away from current.
func (patch PagePatch) ChangesParent(current Ref) bool {
	return patch.ParentID != nil && *patch.ParentID != current
}

// Apply returns p with the patch applied. Server-maintained fields are left
// alone.
func (patch PagePatch) Apply(p Page) Page {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Icon != nil {
		p.Icon = *patch.Icon
	}
	if patch.Cover != nil {
		p.Cover = *patch.Cover
	}
	if patch.ParentID != nil {
		p.ParentID = *patch.ParentID
	}
	if patch.IsPublic != nil {
		p.IsPublic = *patch.IsPublic
	}
	if patch.UpdatedBy != nil {
		p.UpdatedBy = *patch.UpdatedBy
	}
	if patch.LastEditedBy != nil {
		p.LastEditedBy = *patch.LastEditedBy
	}
	if patch.LastEditedAt != nil {
		p.LastEditedAt = *patch.LastEditedAt
	}
	return p
}

// PageView is a page together with the blocks it owns.
type PageView struct {
	Page
	Blocks []Block `json:"blocks"`
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T { return &v }
