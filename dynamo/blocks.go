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

// blockTable implements transport.Blocks over the blocks table.
type blockTable struct{ b *Backend }

func (t blockTable) GetByID(ctx context.Context, id string) (*model.Block, error) {
	item, err := t.b.getItem(ctx, t.b.config.BlocksTable, id)
	if err != nil || item == nil {
		return nil, err
	}
	block, err := unmarshalBlock(item)
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (t blockTable) ListByPage(ctx context.Context, pageID string) ([]model.Block, error) {
	items, err := t.b.queryGroup(ctx, t.b.config.BlocksTable, t.b.config.BlockPageIndex, "page_id", pageID)
	if err != nil {
		return nil, fmt.Errorf("list blocks of page %s: %w", pageID, err)
	}
	blocks := make([]model.Block, 0, len(items))
	for _, item := range items {
		block, err := unmarshalBlock(item)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	slices.SortStableFunc(blocks, func(a, b model.Block) int { return a.Order - b.Order })
	return blocks, nil
}

// siblings returns the blocks of a page nested directly under parent,
// skipping exclude.
func siblings(blocks []model.Block, parent model.Ref, exclude string) []model.Block {
	var out []model.Block
	for _, b := range blocks {
		if b.ParentID == parent && b.ID != exclude {
			out = append(out, b)
		}
	}
	return out
}

// Create writes the block after its siblings. The page and the parent
// block, if any, are checked in the same transaction.
func (t blockTable) Create(ctx context.Context, draft model.BlockDraft) (*model.Block, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if !draft.ParentID.IsNull() {
		parent, err := t.GetByID(ctx, draft.ParentID.ID())
		if err != nil {
			return nil, fmt.Errorf("create block: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("create block under %s: %w", draft.ParentID, ErrParentNotFound)
		}
		if parent.PageID != draft.PageID {
			return nil, fmt.Errorf("create block under %s on page %s: %w", draft.ParentID, draft.PageID, ErrInvalidParent)
		}
	}

	onPage, err := t.ListByPage(ctx, draft.PageID)
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	order := 0
	if group := siblings(onPage, draft.ParentID, ""); len(group) > 0 {
		order = group[len(group)-1].Order + 1
	}

	now := t.b.now()
	block := model.Block{
		ID:        t.b.newID(),
		Type:      draft.Content.BlockType(),
		Content:   draft.Content,
		ParentID:  draft.ParentID,
		PageID:    draft.PageID,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: draft.CreatedBy,
		UpdatedBy: draft.CreatedBy,
	}
	rec, err := newBlockRecord(block)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal block: %w", err)
	}

	items := []types.TransactWriteItem{
		{ConditionCheck: t.b.existsCheck(t.b.config.PagesTable, draft.PageID)},
	}
	parentCheckIndex := -1
	if !draft.ParentID.IsNull() {
		check := t.b.existsCheck(t.b.config.BlocksTable, draft.ParentID.ID())
		check.ConditionExpression = aws.String("(" + aws.ToString(check.ConditionExpression) + ") AND #grp = :grp")
		check.ExpressionAttributeNames["#grp"] = "page_id"
		check.ExpressionAttributeValues[":grp"] = stringValue(draft.PageID)
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{ConditionCheck: check})
	}
	entityPutIndex := len(items)
	items = append(items,
		types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(t.b.config.BlocksTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}},
		types.TransactWriteItem{
			Put: t.b.relationshipPut(rec.ParentRef, rec.EntityRef, TypeBlock, block.ID),
		},
	)

	if err := t.b.transact(ctx, items); err != nil {
		if i, ok := failedCondition(err); ok {
			switch i {
			case 0:
				return nil, fmt.Errorf("create block on page %s: %w", draft.PageID, ErrParentNotFound)
			case parentCheckIndex:
				return nil, fmt.Errorf("create block under %s: %w", draft.ParentID, ErrParentNotFound)
			case entityPutIndex:
				return nil, fmt.Errorf("create block %s: %w", block.ID, ErrAlreadyExists)
			}
		}
		return nil, fmt.Errorf("create block: %w", err)
	}
	return &block, nil
}

func (t blockTable) Update(ctx context.Context, id string, patch model.BlockPatch) (*model.Block, error) {
	current, err := t.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update block %s: %w", id, err)
	}
	if current == nil {
		return nil, fmt.Errorf("update block %s: %w", id, ErrNotFound)
	}

	updated := patch.Apply(*current)
	updated.UpdatedAt = t.b.now()
	content, err := encodeContent(updated.Type, updated.Content)
	if err != nil {
		return nil, fmt.Errorf("update block %s: %w", id, err)
	}

	set := map[string]types.AttributeValue{
		"type":       stringValue(string(updated.Type)),
		"content":    stringValue(content),
		"updated_by": stringValue(updated.UpdatedBy),
		"updated_at": timeValue(updated.UpdatedAt),
	}
	_, err = t.b.client.UpdateItem(ctx, updateItemInput(t.b.update(t.b.config.BlocksTable, id, set)))
	if isConditionFailed(err) {
		return nil, fmt.Errorf("update block %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update block %s: %w", id, err)
	}
	return &updated, nil
}

// Delete marks the block and every block nested under it deleted.
func (t blockTable) Delete(ctx context.Context, id string) error {
	current, err := t.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete block %s: %w", id, err)
	}
	if current == nil {
		return fmt.Errorf("delete block %s: %w", id, ErrNotFound)
	}
	onPage, err := t.ListByPage(ctx, current.PageID)
	if err != nil {
		return fmt.Errorf("delete block %s: %w", id, err)
	}

	doomed := append([]string{id}, descendants(onPage, id)...)
	if len(doomed) == 1 {
		if err := t.b.setTTL(ctx, t.b.config.BlocksTable, id); err != nil {
			return fmt.Errorf("delete block %s: %w", id, err)
		}
		return nil
	}

	ttl := map[string]types.AttributeValue{"ttl": nowValue(t.b.now())}
	items := make([]types.TransactWriteItem, 0, len(doomed))
	for _, d := range doomed {
		items = append(items, types.TransactWriteItem{Update: t.b.update(t.b.config.BlocksTable, d, ttl)})
	}
	if err := t.b.transact(ctx, items); err != nil {
		if _, ok := failedCondition(err); ok {
			return fmt.Errorf("delete block %s: %w", id, ErrGroupChanged)
		}
		return fmt.Errorf("delete block %s: %w", id, err)
	}
	return nil
}

// descendants returns the ids of the blocks nested under id, at any depth.
func descendants(blocks []model.Block, id string) []string {
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		parent := model.RefTo(queue[0])
		queue = queue[1:]
		for _, b := range blocks {
			if b.ParentID == parent {
				out = append(out, b.ID)
				queue = append(queue, b.ID)
			}
		}
	}
	return out
}

func (t blockTable) Reorder(ctx context.Context, pageID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := t.b.reorder(ctx, t.b.config.BlocksTable, "page_id", pageID, ids); err != nil {
		return fmt.Errorf("reorder blocks of page %s: %w", pageID, err)
	}
	return nil
}

// Move re-parents a block within its page and places it at newOrder among
// its new siblings, clamped to the group. The new group is renumbered from
// zero in one transaction.
func (t blockTable) Move(ctx context.Context, id string, newParent model.Ref, newOrder int) error {
	current, err := t.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("move block %s: %w", id, err)
	}
	if current == nil {
		return fmt.Errorf("move block %s: %w", id, ErrNotFound)
	}
	if newParent.ID() == id {
		return fmt.Errorf("move block %s under itself: %w", id, ErrInvalidParent)
	}

	onPage, err := t.ListByPage(ctx, current.PageID)
	if err != nil {
		return fmt.Errorf("move block %s: %w", id, err)
	}
	if !newParent.IsNull() {
		if err := t.checkParent(ctx, onPage, current, newParent); err != nil {
			return fmt.Errorf("move block %s: %w", id, err)
		}
	}

	group := siblings(onPage, newParent, id)
	newOrder = max(0, min(newOrder, len(group)))
	ids := make([]string, 0, len(group)+1)
	for _, b := range group {
		ids = append(ids, b.ID)
	}
	ids = slices.Insert(ids, newOrder, id)

	updatedAt := timeValue(t.b.now())
	items := make([]types.TransactWriteItem, 0, len(ids))
	for i, sid := range ids {
		set := map[string]types.AttributeValue{
			"order":      numberValue(i),
			"updated_at": updatedAt,
		}
		if sid == id {
			set["parent_id"] = stringValue(newParent.QueryValue())
		}
		items = append(items, types.TransactWriteItem{
			Update: inGroup(t.b.update(t.b.config.BlocksTable, sid, set), "page_id", current.PageID),
		})
	}
	if err := t.b.transact(ctx, items); err != nil {
		if _, ok := failedCondition(err); ok {
			return fmt.Errorf("move block %s: %w", id, ErrGroupChanged)
		}
		return fmt.Errorf("move block %s: %w", id, err)
	}
	return nil
}

// checkParent rejects a parent on another page and a parent nested under
// the block being moved.
func (t blockTable) checkParent(ctx context.Context, onPage []model.Block, moving *model.Block, parent model.Ref) error {
	byID := make(map[string]model.Block, len(onPage))
	for _, b := range onPage {
		byID[b.ID] = b
	}
	if _, ok := byID[parent.ID()]; !ok {
		other, err := t.GetByID(ctx, parent.ID())
		if err != nil {
			return err
		}
		if other == nil {
			return ErrParentNotFound
		}
		return fmt.Errorf("parent %s is on page %s: %w", parent, other.PageID, ErrInvalidParent)
	}
	for depth, cur := 0, parent; !cur.IsNull() && depth <= len(onPage); depth++ {
		if cur.ID() == moving.ID {
			return fmt.Errorf("parent %s is nested under the block: %w", parent, ErrInvalidParent)
		}
		cur = byID[cur.ID()].ParentID
	}
	return nil
}
