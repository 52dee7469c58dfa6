package dynamo

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// PagesTable is the name of the pages table (hash key "id").
	// Default: "canopy_pages"
	PagesTable string `env:"PAGES_TABLE" envDefault:"canopy_pages"`

	// BlocksTable is the name of the blocks table (hash key "id").
	// Default: "canopy_blocks"
	BlocksTable string `env:"BLOCKS_TABLE" envDefault:"canopy_blocks"`

	// RelationshipTable is the name of the relationship table
	// (hash key "pk", range key "child_ref").
	// Default: "canopy_relationships"
	RelationshipTable string `env:"RELATIONSHIP_TABLE" envDefault:"canopy_relationships"`

	// PageParentIndex is the GSI on pages keyed by parent_id and order.
	// Default: "parent_id-order-index"
	PageParentIndex string `env:"PAGE_PARENT_INDEX" envDefault:"parent_id-order-index"`

	// BlockPageIndex is the GSI on blocks keyed by page_id and order.
	// Default: "page_id-order-index"
	BlockPageIndex string `env:"BLOCK_PAGE_INDEX" envDefault:"page_id-order-index"`

	// NumShards is the number of shards for the relationship table.
	// Higher values spread the children of a busy page over more partitions
	// but require more parallel queries during cascade.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int `env:"NUM_SHARDS" envDefault:"1"`
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		PagesTable:        "canopy_pages",
		BlocksTable:       "canopy_blocks",
		RelationshipTable: "canopy_relationships",
		PageParentIndex:   "parent_id-order-index",
		BlockPageIndex:    "page_id-order-index",
		NumShards:         1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.PagesTable == "" {
		c.PagesTable = d.PagesTable
	}
	if c.BlocksTable == "" {
		c.BlocksTable = d.BlocksTable
	}
	if c.RelationshipTable == "" {
		c.RelationshipTable = d.RelationshipTable
	}
	if c.PageParentIndex == "" {
		c.PageParentIndex = d.PageParentIndex
	}
	if c.BlockPageIndex == "" {
		c.BlockPageIndex = d.BlockPageIndex
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}
