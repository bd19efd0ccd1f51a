package worldstream

import "time"

// DebugSnapshot is a point-in-time copy of the orchestrator's overlay
// counters (spec.md §6 "Observability"), matching willow's debug.go
// debugStats value-struct convention: a plain value, not a live view, so
// a caller can hold one across frames for a delta display without it
// mutating underneath them.
type DebugSnapshot struct {
	ViewerCell CellCoord
	ViewerTile TileCoord

	CellsLoaded   int
	CellsQueued   int
	CellsQuerying int

	TilesLoaded   int
	TilesQueued   int
	TilesQuerying int

	SpawnPending  int
	SpawnInFlight int

	ActionQueueLen int
	ActionBudget   time.Duration

	ReprioritizeCooldown time.Duration
	ParsedScriptsCached  int

	TemplatesLoaded int
	InstancesPooled int
	TexturesCached  int
	MaterialVariantsCached int
}
