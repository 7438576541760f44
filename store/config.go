package store

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// RecordsTable is the single table holding every record kind.
	// Default: "canopy_records"
	RecordsTable string

	// UniqueTable is the name of the unique constraints table.
	// Default: "canopy_unique_constraints"
	UniqueTable string

	// ScopeIndex is the GSI keyed by scope_pk ("kind#organization").
	// Default: "scope_index"
	ScopeIndex string

	// ParentIndex is the GSI keyed by the sharded parent_pk.
	// Default: "parent_index"
	ParentIndex string

	// NumShards is the number of shards for the parent index partition key.
	// Higher values spread a hot owner's children across partitions but
	// require more parallel queries when listing them.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RecordsTable: "canopy_records",
		UniqueTable:  "canopy_unique_constraints",
		ScopeIndex:   "scope_index",
		ParentIndex:  "parent_index",
		NumShards:    1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.RecordsTable == "" {
		c.RecordsTable = def.RecordsTable
	}
	if c.UniqueTable == "" {
		c.UniqueTable = def.UniqueTable
	}
	if c.ScopeIndex == "" {
		c.ScopeIndex = def.ScopeIndex
	}
	if c.ParentIndex == "" {
		c.ParentIndex = def.ParentIndex
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}
