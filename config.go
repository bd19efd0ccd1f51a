package worldstream

import "time"

// Config is the full tunable surface listed in spec.md §6. Construct with
// DefaultConfig and then set exported fields, matching willow's
// construct-then-set convention (e.g. NewTileMapViewport) rather than a
// builder or functional-options pattern.
type Config struct {
	// World layout.
	WorldUnitsPerCell      float64 // world units spanned by one cell edge
	TileCellSpan           int     // cells spanned by one terrain tile edge
	NodeCellSpan           int     // cells spanned by one terrain node edge
	RenderUnitsPerWorldUnit float64 // §6 coordinate convention scale factor

	// Residency radii (Chebyshev distance in cells/tiles).
	LoadRadius        int
	UnloadRadius      int
	FullDetailRadius  int
	InstancedRadius   int
	ProxyRadius       int

	// Concurrency caps.
	MaxConcurrentCellQueries    int
	MaxConcurrentTerrainQueries int
	MaxConcurrentSpawns         int
	MaxSpawnStartsPerFrame      int
	MaxBatchSpawnsPerFrame      int

	// Budgets and cooldowns.
	ActionBudget               time.Duration
	ReprioritizeCooldown       time.Duration
	PeriodicReprioritize       time.Duration
	MoveThreshold              float64
	RotateThresholdRad         float64

	// Priority shaping (SPEC_FULL.md §12.2).
	NearBoostRadius    int
	NearBoostPriority  float64
	PrioritizeFrustum  bool
	FrustumBonus       float64

	// Batching.
	EnableBatching      bool
	BatchRegionSizeCells int

	// Templates and pooling.
	UseTemplates     bool
	EnablePooling    bool
	MaxPoolPerModel  int

	// Action parsing.
	CacheParsedActions bool

	// Terrain.
	TerrainHeightOffset float64

	// Texture cache.
	MaxCachedTextures int
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		WorldUnitsPerCell:       16,
		TileCellSpan:            4,
		NodeCellSpan:            1,
		RenderUnitsPerWorldUnit: 1,

		LoadRadius:       6,
		UnloadRadius:     8,
		FullDetailRadius: 2,
		InstancedRadius:  4,
		ProxyRadius:      6,

		MaxConcurrentCellQueries:    4,
		MaxConcurrentTerrainQueries: 2,
		MaxConcurrentSpawns:         4,
		MaxSpawnStartsPerFrame:      16,
		MaxBatchSpawnsPerFrame:      8,

		ActionBudget:         2 * time.Millisecond,
		ReprioritizeCooldown: 250 * time.Millisecond,
		PeriodicReprioritize: 2 * time.Second,
		MoveThreshold:        4,
		RotateThresholdRad:   0.2,

		NearBoostRadius:   1,
		NearBoostPriority: 50,
		PrioritizeFrustum: false,
		FrustumBonus:      25,

		EnableBatching:       true,
		BatchRegionSizeCells: 4,

		UseTemplates:    true,
		EnablePooling:   true,
		MaxPoolPerModel: 16,

		CacheParsedActions: true,

		TerrainHeightOffset: -0.01,

		MaxCachedTextures: 512,
	}
}
