package dynamo_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/dynamo"
	"github.com/jacentio/canopy/model"
)

func TestPages_CreateRoot(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "p1").Pages()

	p, err := pages.Create(context.Background(), model.PageDraft{Title: "Home", CreatedBy: "alice", UpdatedBy: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID != "p1" || p.Order != 0 || !p.ParentID.IsNull() {
		t.Errorf("unexpected page %+v", p)
	}
	if !p.CreatedAt.Equal(testNow) {
		t.Errorf("expected CreatedAt %v, got %v", testNow, p.CreatedAt)
	}

	tx := api.lastTx()
	if len(tx) != 1 {
		t.Fatalf("expected 1 transaction item for a root page, got %d", len(tx))
	}
	put := tx[0].Put
	if put == nil || aws.ToString(put.ConditionExpression) != "attribute_not_exists(id)" {
		t.Fatalf("expected conditional put, got %+v", tx[0])
	}
	if v := put.Item["parent_id"].(*types.AttributeValueMemberS).Value; v != "null" {
		t.Errorf("expected root sentinel in parent_id, got %q", v)
	}
	if _, ok := put.Item["parent_ref"]; ok {
		t.Error("root page must not carry parent_ref")
	}
}

func TestPages_CreateChild(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "parent", "c1", "c2").Pages()
	ctx := context.Background()

	if _, err := pages.Create(ctx, model.PageDraft{Title: "parent"}); err != nil {
		t.Fatal(err)
	}
	c1, err := pages.Create(ctx, model.PageDraft{Title: "c1", ParentID: model.RefTo("parent")})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := pages.Create(ctx, model.PageDraft{Title: "c2", ParentID: model.RefTo("parent")})
	if err != nil {
		t.Fatal(err)
	}
	if c1.Order != 0 || c2.Order != 1 {
		t.Errorf("expected orders 0 and 1, got %d and %d", c1.Order, c2.Order)
	}

	tx := api.lastTx()
	if len(tx) != 3 {
		t.Fatalf("expected check, put and relationship, got %d items", len(tx))
	}
	if tx[0].ConditionCheck == nil || keyID(tx[0].ConditionCheck.Key) != "parent" {
		t.Errorf("expected parent condition check first, got %+v", tx[0])
	}
	rel := tx[2].Put
	if rel == nil || aws.ToString(rel.TableName) != "canopy_relationships" {
		t.Fatalf("expected relationship put, got %+v", tx[2])
	}
	if pk := rel.Item["pk"].(*types.AttributeValueMemberS).Value; pk != "page#parent#00" {
		t.Errorf("expected pk 'page#parent#00', got %q", pk)
	}
	if ref := rel.Item["child_ref"].(*types.AttributeValueMemberS).Value; ref != "page#c2" {
		t.Errorf("expected child_ref 'page#c2', got %q", ref)
	}

	children, err := pages.ListByParent(ctx, model.RefTo("parent"))
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 || children[0].ID != "c1" || children[1].ID != "c2" {
		t.Errorf("unexpected children %+v", children)
	}
}

func TestPages_CreateErrorMapping(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		parent   model.Ref
		txErr    error
		expected error
	}{
		{"parent missing", model.RefTo("gone"), cancelled(3, 0), dynamo.ErrParentNotFound},
		{"id taken", model.RefTo("gone"), cancelled(3, 1), dynamo.ErrAlreadyExists},
		{"id taken at root", model.Null, cancelled(1, 0), dynamo.ErrAlreadyExists},
		{"other failure", model.Null, boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.txErr = tt.txErr
			_, err := newBackend(api, "x").Pages().Create(context.Background(), model.PageDraft{ParentID: tt.parent})
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestPages_GetByID(t *testing.T) {
	api := newFakeAPI()
	api.put("canopy_pages", map[string]types.AttributeValue{
		"id":        &types.AttributeValueMemberS{Value: "live"},
		"title":     &types.AttributeValueMemberS{Value: "Live"},
		"parent_id": &types.AttributeValueMemberS{Value: "root-page"},
		"order":     &types.AttributeValueMemberN{Value: "3"},
	})
	api.put("canopy_pages", map[string]types.AttributeValue{
		"id":        &types.AttributeValueMemberS{Value: "dead"},
		"parent_id": &types.AttributeValueMemberS{Value: "null"},
		"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprint(testNow.Unix() - 1)},
	})
	pages := newBackend(api).Pages()
	ctx := context.Background()

	p, err := pages.GetByID(ctx, "live")
	if err != nil || p == nil {
		t.Fatalf("GetByID(live) = %v, %v", p, err)
	}
	if p.Title != "Live" || p.ParentID != model.RefTo("root-page") || p.Order != 3 {
		t.Errorf("unexpected page %+v", p)
	}

	for _, id := range []string{"dead", "missing"} {
		p, err := pages.GetByID(ctx, id)
		if err != nil || p != nil {
			t.Errorf("GetByID(%s) = %v, %v; expected absent", id, p, err)
		}
	}
}

func TestPages_ListByParentQueriesIndex(t *testing.T) {
	api := newFakeAPI()
	for i, id := range []string{"b", "a"} {
		api.put("canopy_pages", map[string]types.AttributeValue{
			"id":        &types.AttributeValueMemberS{Value: id},
			"parent_id": &types.AttributeValueMemberS{Value: "null"},
			"order":     &types.AttributeValueMemberN{Value: fmt.Sprint(1 - i)},
		})
	}
	got, err := newBackend(api).Pages().ListByParent(context.Background(), model.Null)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected [a b] by order, got %+v", got)
	}

	q := api.queries[0]
	if aws.ToString(q.IndexName) != "parent_id-order-index" {
		t.Errorf("expected parent index, got %q", aws.ToString(q.IndexName))
	}
	if aws.ToString(q.FilterExpression) != dynamo.TTLFilterExpr() {
		t.Errorf("expected TTL filter, got %q", aws.ToString(q.FilterExpression))
	}
}

func TestPages_UpdateInPlace(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "p").Pages()
	ctx := context.Background()
	if _, err := pages.Create(ctx, model.PageDraft{Title: "old"}); err != nil {
		t.Fatal(err)
	}

	p, err := pages.Update(ctx, "p", model.PagePatch{Title: model.Ptr("new"), IsPublic: model.Ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "new" || !p.IsPublic {
		t.Errorf("unexpected page %+v", p)
	}
	if len(api.updates) != 1 || len(api.txs) != 1 {
		t.Fatalf("expected a single UpdateItem after the create, got %d updates and %d transactions", len(api.updates), len(api.txs))
	}
	u := api.updates[0]
	if aws.ToString(u.ConditionExpression) != dynamo.ExistsCondition() {
		t.Errorf("expected exists condition, got %q", aws.ToString(u.ConditionExpression))
	}
	if v, _ := setValue(u.ExpressionAttributeNames, u.ExpressionAttributeValues, "title"); v != "new" {
		t.Errorf("expected title set to 'new', got %q", v)
	}
	if _, ok := setValue(u.ExpressionAttributeNames, u.ExpressionAttributeValues, "parent_id"); ok {
		t.Error("parent_id must not change without a parent in the patch")
	}

	api.updateErr = &types.ConditionalCheckFailedException{}
	if _, err := pages.Update(ctx, "p", model.PagePatch{Title: model.Ptr("x")}); !errors.Is(err, dynamo.ErrNotFound) {
		t.Errorf("expected ErrNotFound on a lost race, got %v", err)
	}
}

func TestPages_UpdateMovesRelationship(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "a", "b", "child").Pages()
	ctx := context.Background()
	for _, d := range []model.PageDraft{{Title: "a"}, {Title: "b"}, {Title: "child", ParentID: model.RefTo("a")}} {
		if _, err := pages.Create(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	p, err := pages.Update(ctx, "child", model.PagePatch{ParentID: model.Ptr(model.RefTo("b"))})
	if err != nil {
		t.Fatal(err)
	}
	if p.ParentID != model.RefTo("b") || p.Order != 0 {
		t.Errorf("unexpected page %+v", p)
	}

	tx := api.lastTx()
	if len(tx) != 4 {
		t.Fatalf("expected check, update, delete and put, got %d items", len(tx))
	}
	if tx[0].ConditionCheck == nil || keyID(tx[0].ConditionCheck.Key) != "b" {
		t.Errorf("expected check on the new parent, got %+v", tx[0])
	}
	if v, _ := setValue(tx[1].Update.ExpressionAttributeNames, tx[1].Update.ExpressionAttributeValues, "parent_id"); v != "b" {
		t.Errorf("expected parent_id set to b, got %q", v)
	}
	if pk := tx[2].Delete.Key["pk"].(*types.AttributeValueMemberS).Value; pk != "page#a#00" {
		t.Errorf("expected old relationship under page#a, got %q", pk)
	}
	if pk := tx[3].Put.Item["pk"].(*types.AttributeValueMemberS).Value; pk != "page#b#00" {
		t.Errorf("expected new relationship under page#b, got %q", pk)
	}
}

func TestPages_UpdateMoveToRoot(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "a", "child").Pages()
	ctx := context.Background()
	pages.Create(ctx, model.PageDraft{Title: "a"})
	pages.Create(ctx, model.PageDraft{Title: "child", ParentID: model.RefTo("a")})

	p, err := pages.Update(ctx, "child", model.PagePatch{ParentID: model.Ptr(model.Null)})
	if err != nil {
		t.Fatal(err)
	}
	if !p.ParentID.IsNull() || p.Order != 1 {
		t.Errorf("expected child appended to the root group, got %+v", p)
	}

	tx := api.lastTx()
	if len(tx) != 2 || tx[0].Update == nil || tx[1].Delete == nil {
		t.Fatalf("expected update and relationship delete, got %+v", tx)
	}
	if expr := aws.ToString(tx[0].Update.UpdateExpression); !strings.Contains(expr, " REMOVE ") {
		t.Errorf("expected parent_ref removed, got %q", expr)
	}
}

func TestPages_UpdateRejectsCycles(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "a", "b", "c").Pages()
	ctx := context.Background()
	pages.Create(ctx, model.PageDraft{Title: "a"})
	pages.Create(ctx, model.PageDraft{Title: "b", ParentID: model.RefTo("a")})
	pages.Create(ctx, model.PageDraft{Title: "c", ParentID: model.RefTo("b")})
	before := api.writes()

	tests := []struct {
		name     string
		parent   string
		expected error
	}{
		{"self", "a", dynamo.ErrInvalidParent},
		{"grandchild", "c", dynamo.ErrInvalidParent},
		{"missing", "zzz", dynamo.ErrParentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pages.Update(ctx, "a", model.PagePatch{ParentID: model.Ptr(model.RefTo(tt.parent))})
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
	if api.writes() != before {
		t.Error("rejected moves must not write")
	}
}

func TestPages_CreatedPageIsReadable(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api, "p1").Pages()
	ctx := context.Background()

	if _, err := pages.Create(ctx, model.PageDraft{Title: "Home"}); err != nil {
		t.Fatal(err)
	}
	got, err := pages.GetByID(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Title != "Home" {
		t.Fatalf("GetByID(p1) = %+v, want the created page", got)
	}

	updated, err := pages.Update(ctx, "p1", model.PagePatch{Title: model.Ptr("Start")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Start" {
		t.Errorf("expected updated title, got %q", updated.Title)
	}
}

func TestPages_Delete(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api).Pages()

	if err := pages.Delete(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
	u := api.updates[0]
	if aws.ToString(u.UpdateExpression) != "SET #ttl = :now" {
		t.Errorf("unexpected update %q", aws.ToString(u.UpdateExpression))
	}
	if keyID(u.Key) != "p" {
		t.Errorf("unexpected key %v", u.Key)
	}
	if table := aws.ToString(u.TableName); table != dynamo.DefaultConfig().PagesTable {
		t.Errorf("expected delete on %q, got %q", dynamo.DefaultConfig().PagesTable, table)
	}

	api.updateErr = &types.ConditionalCheckFailedException{}
	if err := pages.Delete(context.Background(), "p"); !errors.Is(err, dynamo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPages_Reorder(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api).Pages()
	ctx := context.Background()

	if err := pages.Reorder(ctx, model.RefTo("p"), []string{"c", "a", "b"}); err != nil {
		t.Fatal(err)
	}
	tx := api.lastTx()
	if len(tx) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(tx))
	}
	for i, id := range []string{"c", "a", "b"} {
		u := tx[i].Update
		if keyID(u.Key) != id {
			t.Errorf("item %d: expected %s, got %s", i, id, keyID(u.Key))
		}
		if v, _ := setValue(u.ExpressionAttributeNames, u.ExpressionAttributeValues, "order"); v != fmt.Sprint(i) {
			t.Errorf("item %d: expected order %d, got %s", i, i, v)
		}
		if g := u.ExpressionAttributeValues[":grp"].(*types.AttributeValueMemberS).Value; g != "p" {
			t.Errorf("item %d: expected group condition on p, got %q", i, g)
		}
	}

	api.txErr = cancelled(3, 2)
	if err := pages.Reorder(ctx, model.RefTo("p"), []string{"c", "a", "b"}); !errors.Is(err, dynamo.ErrGroupChanged) {
		t.Errorf("expected ErrGroupChanged, got %v", err)
	}
}

func TestPages_ReorderLimits(t *testing.T) {
	api := newFakeAPI()
	pages := newBackend(api).Pages()
	ctx := context.Background()

	if err := pages.Reorder(ctx, model.Null, nil); err != nil {
		t.Errorf("empty reorder: %v", err)
	}
	ids := make([]string, 101)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}
	if err := pages.Reorder(ctx, model.Null, ids); !errors.Is(err, dynamo.ErrTooManyItems) {
		t.Errorf("expected ErrTooManyItems, got %v", err)
	}
	if api.writes() != 0 {
		t.Errorf("expected no writes, got %d", api.writes())
	}
}
