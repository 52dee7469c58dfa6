package dynamo

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/model"
)

// maxDepth bounds the ancestor walk when a page changes parent.
const maxDepth = 256

// pageTable implements transport.Pages over the pages table.
type pageTable struct{ b *Backend }

func (t pageTable) GetByID(ctx context.Context, id string) (*model.Page, error) {
	item, err := t.b.getItem(ctx, t.b.config.PagesTable, id)
	if err != nil || item == nil {
		return nil, err
	}
	p, err := unmarshalPage(item)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t pageTable) ListByParent(ctx context.Context, parent model.Ref) ([]model.Page, error) {
	items, err := t.b.queryGroup(ctx, t.b.config.PagesTable, t.b.config.PageParentIndex, "parent_id", parent.QueryValue())
	if err != nil {
		return nil, fmt.Errorf("list pages under %s: %w", parent, err)
	}
	pages := make([]model.Page, 0, len(items))
	for _, item := range items {
		p, err := unmarshalPage(item)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	slices.SortStableFunc(pages, func(a, b model.Page) int { return a.Order - b.Order })
	return pages, nil
}

// nextOrder returns the order that places a new member after every page
// under parent.
func (t pageTable) nextOrder(ctx context.Context, parent model.Ref) (int, error) {
	siblings, err := t.ListByParent(ctx, parent)
	if err != nil {
		return 0, err
	}
	if len(siblings) == 0 {
		return 0, nil
	}
	return siblings[len(siblings)-1].Order + 1, nil
}

// Create writes the page, checks its parent and records the relationship in
// one transaction.
func (t pageTable) Create(ctx context.Context, draft model.PageDraft) (*model.Page, error) {
	order, err := t.nextOrder(ctx, draft.ParentID)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	now := t.b.now()
	page := model.Page{
		ID:           t.b.newID(),
		Title:        draft.Title,
		Icon:         draft.Icon,
		Cover:        draft.Cover,
		ParentID:     draft.ParentID,
		Order:        order,
		IsPublic:     draft.IsPublic,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    draft.CreatedBy,
		UpdatedBy:    draft.UpdatedBy,
		LastEditedBy: draft.LastEditedBy,
		LastEditedAt: draft.LastEditedAt,
	}
	rec := newPageRecord(page)
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}

	var items []types.TransactWriteItem
	parentCheckIndex := -1
	if !draft.ParentID.IsNull() {
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{
			ConditionCheck: t.b.existsCheck(t.b.config.PagesTable, draft.ParentID.ID()),
		})
	}
	entityPutIndex := len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(t.b.config.PagesTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	})
	if rec.ParentRef != "" {
		items = append(items, types.TransactWriteItem{
			Put: t.b.relationshipPut(rec.ParentRef, rec.EntityRef, TypePage, page.ID),
		})
	}

	if err := t.b.transact(ctx, items); err != nil {
		if i, ok := failedCondition(err); ok {
			switch i {
			case parentCheckIndex:
				return nil, fmt.Errorf("create page under %s: %w", draft.ParentID, ErrParentNotFound)
			case entityPutIndex:
				return nil, fmt.Errorf("create page %s: %w", page.ID, ErrAlreadyExists)
			}
		}
		return nil, fmt.Errorf("create page: %w", err)
	}
	t.b.logger.Debug("page stored", "pageID", page.ID, "parentID", page.ParentID, "order", page.Order)
	return &page, nil
}

// Update applies the patch. A parent change moves the page to the end of its
// new sibling group and moves its relationship record in the same
// transaction.
func (t pageTable) Update(ctx context.Context, id string, patch model.PagePatch) (*model.Page, error) {
	current, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update page %s: %w", id, err)
	}
	if current == nil {
		return nil, fmt.Errorf("update page %s: %w", id, ErrNotFound)
	}

	updated := patch.Apply(*current)
	updated.UpdatedAt = t.b.now()

	set := map[string]types.AttributeValue{
		"title":          stringValue(updated.Title),
		"icon":           stringValue(updated.Icon),
		"cover":          stringValue(updated.Cover),
		"is_public":      boolValue(updated.IsPublic),
		"updated_by":     stringValue(updated.UpdatedBy),
		"last_edited_by": stringValue(updated.LastEditedBy),
		"last_edited_at": timeValue(updated.LastEditedAt),
		"updated_at":     timeValue(updated.UpdatedAt),
	}

	if !patch.ChangesParent(current.ParentID) {
		_, err := t.b.client.UpdateItem(ctx, updateItemInput(t.b.update(t.b.config.PagesTable, id, set)))
		if isConditionFailed(err) {
			return nil, fmt.Errorf("update page %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("update page %s: %w", id, err)
		}
		return &updated, nil
	}

	if err := t.checkParent(ctx, id, updated.ParentID); err != nil {
		return nil, fmt.Errorf("update page %s: %w", id, err)
	}
	order, err := t.nextOrder(ctx, updated.ParentID)
	if err != nil {
		return nil, fmt.Errorf("update page %s: %w", id, err)
	}
	updated.Order = order

	rec := newPageRecord(updated)
	set["parent_id"] = stringValue(rec.ParentID)
	set["order"] = numberValue(order)
	var remove []string
	if rec.ParentRef != "" {
		set["parent_ref"] = stringValue(rec.ParentRef)
	} else {
		remove = append(remove, "parent_ref")
	}

	var items []types.TransactWriteItem
	parentCheckIndex := -1
	if !updated.ParentID.IsNull() {
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{
			ConditionCheck: t.b.existsCheck(t.b.config.PagesTable, updated.ParentID.ID()),
		})
	}
	entityIndex := len(items)
	items = append(items, types.TransactWriteItem{Update: t.b.update(t.b.config.PagesTable, id, set, remove...)})
	if !current.ParentID.IsNull() {
		items = append(items, types.TransactWriteItem{
			Delete: t.b.relationshipDelete(EntityRef(TypePage, current.ParentID.ID()), rec.EntityRef),
		})
	}
	if rec.ParentRef != "" {
		items = append(items, types.TransactWriteItem{
			Put: t.b.relationshipPut(rec.ParentRef, rec.EntityRef, TypePage, id),
		})
	}

	if err := t.b.transact(ctx, items); err != nil {
		if i, ok := failedCondition(err); ok {
			switch i {
			case parentCheckIndex:
				return nil, fmt.Errorf("move page %s under %s: %w", id, updated.ParentID, ErrParentNotFound)
			case entityIndex:
				return nil, fmt.Errorf("update page %s: %w", id, ErrNotFound)
			}
		}
		return nil, fmt.Errorf("update page %s: %w", id, err)
	}
	t.b.logger.Debug("page moved", "pageID", id, "from", current.ParentID, "to", updated.ParentID)
	return &updated, nil
}

// checkParent rejects a parent that is the page itself or one of its
// descendants.
func (t pageTable) checkParent(ctx context.Context, id string, parent model.Ref) error {
	for depth, cur := 0, parent; !cur.IsNull(); depth++ {
		if cur.ID() == id {
			return ErrInvalidParent
		}
		if depth == maxDepth {
			return fmt.Errorf("ancestor chain deeper than %d: %w", maxDepth, ErrInvalidParent)
		}
		p, err := t.GetByID(ctx, cur.ID())
		if err != nil {
			return err
		}
		if p == nil {
			if cur == parent {
				return ErrParentNotFound
			}
			return nil
		}
		cur = p.ParentID
	}
	return nil
}

// Delete marks the page deleted. Its sub-pages and blocks are expired by the
// cascade stream handler.
func (t pageTable) Delete(ctx context.Context, id string) error {
	if err := t.b.setTTL(ctx, t.b.config.PagesTable, id); err != nil {
		return fmt.Errorf("delete page %s: %w", id, err)
	}
	return nil
}

// Reorder sets order = index for every listed page. Each update is
// conditioned on the page still being an active child of parent.
func (t pageTable) Reorder(ctx context.Context, parent model.Ref, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := t.b.reorder(ctx, t.b.config.PagesTable, "parent_id", parent.QueryValue(), ids); err != nil {
		return fmt.Errorf("reorder pages under %s: %w", parent, err)
	}
	return nil
}
