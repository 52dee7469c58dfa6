package dynamo

// Entity types, used as the prefix of entity references ("page#<id>").
const (
	TypePage  = "page"
	TypeBlock = "block"
)

// Relationship defines a parent-child relationship for cascade operations.
type Relationship struct {
	// ParentType is the parent entity type (e.g., "page").
	ParentType string

	// ChildType is the child entity type (e.g., "block").
	ChildType string

	// ChildTableName is the DynamoDB table name for the child.
	ChildTableName string

	// ParentKeyAttr is the attribute in the child that references the
	// parent (e.g., "page_id").
	ParentKeyAttr string
}

// Registry holds all known entity relationships for cascade operations.
type Registry struct {
	relationships []Relationship
	byParent      map[string][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byParent:      make(map[string][]Relationship),
	}
}

// DefaultRegistry returns the page relationships for the tables in config:
// pages own sub-pages through parent_id and blocks through page_id.
func DefaultRegistry(config Config) *Registry {
	config.validate()
	r := NewRegistry()
	r.Register(Relationship{
		ParentType:     TypePage,
		ChildType:      TypePage,
		ChildTableName: config.PagesTable,
		ParentKeyAttr:  "parent_id",
	})
	r.Register(Relationship{
		ParentType:     TypePage,
		ChildType:      TypeBlock,
		ChildTableName: config.BlocksTable,
		ParentKeyAttr:  "page_id",
	})
	return r
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
}

// ChildrenOf returns all child relationships for a given parent type.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	return r.byParent[parentType]
}

// Child returns the relationship between parentType and childType.
func (r *Registry) Child(parentType, childType string) (Relationship, bool) {
	for _, rel := range r.byParent[parentType] {
		if rel.ChildType == childType {
			return rel, true
		}
	}
	return Relationship{}, false
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasChildren returns true if the parent type has any registered child relationships.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.ChildrenOf(parentType)) > 0
}
