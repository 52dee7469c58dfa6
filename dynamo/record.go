package dynamo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/model"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// EntityRef returns the type-qualified reference of an entity ("page#<id>").
func EntityRef(entityType, id string) string {
	return entityType + "#" + id
}

func idKey(id string) PK {
	return PK{"id": &types.AttributeValueMemberS{Value: id}}
}

// pageRecord is the stored form of a page. parent_id holds the "null"
// sentinel for roots so that they appear in the parent index.
type pageRecord struct {
	ID           string    `dynamodbav:"id"`
	EntityRef    string    `dynamodbav:"entity_ref"`
	ParentRef    string    `dynamodbav:"parent_ref,omitempty"`
	Title        string    `dynamodbav:"title"`
	Icon         string    `dynamodbav:"icon,omitempty"`
	Cover        string    `dynamodbav:"cover,omitempty"`
	ParentID     string    `dynamodbav:"parent_id"`
	Order        int       `dynamodbav:"order"`
	IsPublic     bool      `dynamodbav:"is_public"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
	CreatedBy    string    `dynamodbav:"created_by"`
	UpdatedBy    string    `dynamodbav:"updated_by"`
	LastEditedBy string    `dynamodbav:"last_edited_by,omitempty"`
	LastEditedAt time.Time `dynamodbav:"last_edited_at"`
	TTL          int64     `dynamodbav:"ttl,omitempty"`
}

func newPageRecord(p model.Page) pageRecord {
	r := pageRecord{
		ID:           p.ID,
		EntityRef:    EntityRef(TypePage, p.ID),
		Title:        p.Title,
		Icon:         p.Icon,
		Cover:        p.Cover,
		ParentID:     p.ParentID.QueryValue(),
		Order:        p.Order,
		IsPublic:     p.IsPublic,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		CreatedBy:    p.CreatedBy,
		UpdatedBy:    p.UpdatedBy,
		LastEditedBy: p.LastEditedBy,
		LastEditedAt: p.LastEditedAt,
	}
	if !p.ParentID.IsNull() {
		r.ParentRef = EntityRef(TypePage, p.ParentID.ID())
	}
	return r
}

func (r pageRecord) page() model.Page {
	return model.Page{
		ID:           r.ID,
		Title:        r.Title,
		Icon:         r.Icon,
		Cover:        r.Cover,
		ParentID:     model.ParseRef(r.ParentID),
		Order:        r.Order,
		IsPublic:     r.IsPublic,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CreatedBy:    r.CreatedBy,
		UpdatedBy:    r.UpdatedBy,
		LastEditedBy: r.LastEditedBy,
		LastEditedAt: r.LastEditedAt,
	}
}

func unmarshalPage(item map[string]types.AttributeValue) (model.Page, error) {
	var r pageRecord
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return model.Page{}, fmt.Errorf("unmarshal page: %w", err)
	}
	return r.page(), nil
}

// blockRecord is the stored form of a block. Content is kept as the JSON
// payload of the block's type.
type blockRecord struct {
	ID        string    `dynamodbav:"id"`
	EntityRef string    `dynamodbav:"entity_ref"`
	ParentRef string    `dynamodbav:"parent_ref"`
	Type      string    `dynamodbav:"type"`
	Content   string    `dynamodbav:"content"`
	ParentID  string    `dynamodbav:"parent_id"`
	PageID    string    `dynamodbav:"page_id"`
	Order     int       `dynamodbav:"order"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	CreatedBy string    `dynamodbav:"created_by"`
	UpdatedBy string    `dynamodbav:"updated_by"`
	TTL       int64     `dynamodbav:"ttl,omitempty"`
}

func newBlockRecord(b model.Block) (blockRecord, error) {
	content, err := encodeContent(b.Type, b.Content)
	if err != nil {
		return blockRecord{}, err
	}
	return blockRecord{
		ID:        b.ID,
		EntityRef: EntityRef(TypeBlock, b.ID),
		// Blocks hang off their page in the relationship table, whatever
		// their nesting.
		ParentRef: EntityRef(TypePage, b.PageID),
		Type:      string(b.Type),
		Content:   content,
		ParentID:  b.ParentID.QueryValue(),
		PageID:    b.PageID,
		Order:     b.Order,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		CreatedBy: b.CreatedBy,
		UpdatedBy: b.UpdatedBy,
	}, nil
}

func (r blockRecord) block() (model.Block, error) {
	t := model.BlockType(r.Type)
	content, err := model.DecodeContent(t, json.RawMessage(r.Content))
	if err != nil {
		return model.Block{}, fmt.Errorf("block %s: %w", r.ID, err)
	}
	return model.Block{
		ID:        r.ID,
		Type:      t,
		Content:   content,
		ParentID:  model.ParseRef(r.ParentID),
		PageID:    r.PageID,
		Order:     r.Order,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		CreatedBy: r.CreatedBy,
		UpdatedBy: r.UpdatedBy,
	}, nil
}

func unmarshalBlock(item map[string]types.AttributeValue) (model.Block, error) {
	var r blockRecord
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return model.Block{}, fmt.Errorf("unmarshal block: %w", err)
	}
	return r.block()
}

func encodeContent(t model.BlockType, c model.Content) (string, error) {
	if err := model.ValidateContent(t, c); err != nil {
		return "", err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal %s content: %w", t, err)
	}
	return string(data), nil
}
