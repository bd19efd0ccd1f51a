package worldstream

import (
	"context"
	"time"
)

// CellQueryStage drives spec.md §4.9 item 3: while fewer than
// max_concurrent_cell_queries are in flight, start a query for the next
// desired-but-unqueried cell, and surface results for queries that
// completed since the last Drive call. Network calls run on their own
// goroutine (spec.md §5 "Network I/O ... is asynchronous"); Drive itself
// never blocks.
type CellQueryStage struct {
	client    WorldClient
	residency *Residency[CellCoord]
	maxConcurrent int
	inFlight  map[CellCoord]*Future[[]ObjectPlacement]
}

// NewCellQueryStage wires a CellQueryStage.
func NewCellQueryStage(client WorldClient, residency *Residency[CellCoord], maxConcurrent int) *CellQueryStage {
	return &CellQueryStage{client: client, residency: residency, maxConcurrent: maxConcurrent, inFlight: make(map[CellCoord]*Future[[]ObjectPlacement])}
}

// CellResult is one completed (successful or failed) cell query.
type CellResult struct {
	Cell       CellCoord
	Placements []ObjectPlacement
	Err        error
}

// Drive starts new queries up to the concurrency cap, then polls every
// in-flight query, returning the ones that completed this tick (spec.md
// §8 invariant 1: at most one query in flight per cell, enforced because
// a cell only ever occupies one of residency's queued/querying/loaded
// sets).
func (s *CellQueryStage) Drive(ctx context.Context, center CellCoord) []CellResult {
	for len(s.inFlight) < s.maxConcurrent {
		started := s.residency.StartQueries(1)
		if len(started) == 0 {
			break
		}
		cell := started[0]
		s.inFlight[cell] = Go(func() ([]ObjectPlacement, error) {
			return s.client.QueryCell(ctx, cell.CX, cell.CY)
		})
	}

	var done []CellResult
	for cell, future := range s.inFlight {
		placements, err, ready := future.Poll()
		if !ready {
			continue
		}
		delete(s.inFlight, cell)
		stillWanted := s.residency.IsDesired(cell)
		s.residency.FinishQuery(center, cell, err == nil && stillWanted)
		if !stillWanted {
			// stale_residency (spec.md §7): the cell left the desired set
			// while its query was in flight; drop the result.
			continue
		}
		if err != nil {
			done = append(done, CellResult{Cell: cell, Err: newError(KindServerError, "query_cell", err)})
			continue
		}
		done = append(done, CellResult{Cell: cell, Placements: placements})
	}
	return done
}

// InFlightLen reports the number of cell queries currently outstanding,
// for the debug overlay.
func (s *CellQueryStage) InFlightLen() int { return len(s.inFlight) }

// TerrainQueryStage is TerrainStage's analogue of CellQueryStage (spec.md
// §4.7 "Terrain follows the same desired/queued/querying/loaded
// machinery").
type TerrainQueryStage struct {
	client    WorldClient
	residency *Residency[TileCoord]
	maxConcurrent int
	inFlight  map[TileCoord]*Future[[]TerrainNode]
}

// NewTerrainQueryStage wires a TerrainQueryStage.
func NewTerrainQueryStage(client WorldClient, residency *Residency[TileCoord], maxConcurrent int) *TerrainQueryStage {
	return &TerrainQueryStage{client: client, residency: residency, maxConcurrent: maxConcurrent, inFlight: make(map[TileCoord]*Future[[]TerrainNode])}
}

// fullNodeMask requests every one of a tile's 16 nodes (spec.md §6
// "query_terrain ... node_mask: array<16,i32> = fill(-1)").
var fullNodeMask = [16]int32{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}

// TerrainResult is one completed terrain tile query.
type TerrainResult struct {
	Tile  TileCoord
	Nodes []TerrainNode
	Err   error
}

// Drive mirrors CellQueryStage.Drive for terrain tiles.
func (s *TerrainQueryStage) Drive(ctx context.Context, center TileCoord) []TerrainResult {
	for len(s.inFlight) < s.maxConcurrent {
		started := s.residency.StartQueries(1)
		if len(started) == 0 {
			break
		}
		tile := started[0]
		s.inFlight[tile] = Go(func() ([]TerrainNode, error) {
			return s.client.QueryTerrain(ctx, tile.TX, tile.TZ, fullNodeMask)
		})
	}

	var done []TerrainResult
	for tile, future := range s.inFlight {
		nodes, err, ready := future.Poll()
		if !ready {
			continue
		}
		delete(s.inFlight, tile)
		stillWanted := s.residency.IsDesired(tile)
		s.residency.FinishQuery(center, tile, err == nil && stillWanted)
		if !stillWanted {
			continue
		}
		if err != nil {
			done = append(done, TerrainResult{Tile: tile, Err: newError(KindServerError, "query_terrain", err)})
			continue
		}
		done = append(done, TerrainResult{Tile: tile, Nodes: nodes})
	}
	return done
}

// InFlightLen reports the number of terrain queries currently outstanding.
func (s *TerrainQueryStage) InFlightLen() int { return len(s.inFlight) }

// BatchKey groups placements for batched spawning (spec.md §3 "Batch"):
// same coarse region, same model, and the exact same action-script text
// (batches never merge placements whose scripts differ even slightly,
// since the script is part of the key).
type BatchKey struct {
	RegionX, RegionY int32
	ModelID          string
	Action           string
}

// RegionOf buckets a cell coordinate into a region of edge length
// regionSizeCells (spec.md §4.9 "Batch": "region_of_size K").
func RegionOf(c CellCoord, regionSizeCells int) (int32, int32) {
	size := int32(regionSizeCells)
	if size <= 0 {
		size = 1
	}
	return floorDivInt32(c.CX, size), floorDivInt32(c.CY, size)
}

func floorDivInt32(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// SpawnRequest is one placement waiting to become a ModelInstance,
// tagged with the cell it belongs to so the spawn stage can drop it if
// that cell unloads before spawning completes (spec.md §5
// "Cancellation").
type SpawnRequest struct {
	Cell      CellCoord
	Placement ObjectPlacement
}

// spawnBatch is one batched-mode work unit: same BatchKey, FIFO of not-
// yet-spawned requests (spec.md §5 "Batches process placements in
// insertion order"), and the best (lowest) priority among its members.
type spawnBatch struct {
	key      BatchKey
	pending  []SpawnRequest
	priority float64
}

// inFlightSpawn tracks one asynchronous TemplatePool.Acquire call the
// spawn stage started this or a previous frame.
type inFlightSpawn struct {
	req    SpawnRequest
	future *Future[*ModelInstance]
}

// SpawnStage implements spec.md §4.9 item 4 in both its batched and
// non-batched forms, and §4.6's "ensure template loaded, then clone at a
// capped rate" sequencing. TemplatePool.Acquire already deduplicates
// concurrent first-loads of a model_id via singleflight (invariant 2),
// so SpawnStage only needs to bound how many Acquire calls it has
// in flight and how many it starts per frame; it never has to reason
// about template-load state itself.
type SpawnStage struct {
	cfg        Config
	pool       *TemplatePool
	residency  *Residency[CellCoord]
	objectPath string
	password   string
	nextID     func() InstanceID

	batchQueue *PriorityQueue[BatchKey]
	batches    map[BatchKey]*spawnBatch

	itemQueue *PriorityQueue[SpawnRequest]

	inFlight map[InstanceID]*inFlightSpawn
}

// NewSpawnStage wires a SpawnStage. nextID supplies fresh InstanceIDs
// (typically a monotonic counter owned by the orchestrator).
func NewSpawnStage(cfg Config, pool *TemplatePool, residency *Residency[CellCoord], objectPath, password string, nextID func() InstanceID) *SpawnStage {
	return &SpawnStage{
		cfg:        cfg,
		pool:       pool,
		residency:  residency,
		objectPath: objectPath,
		password:   password,
		nextID:     nextID,
		batchQueue: NewPriorityQueue[BatchKey](),
		batches:    make(map[BatchKey]*spawnBatch),
		itemQueue:  NewPriorityQueue[SpawnRequest](),
		inFlight:   make(map[InstanceID]*inFlightSpawn),
	}
}

// Enqueue adds a cell's freshly-queried placements as spawn work, either
// bucketed into batches keyed by (region, model_id, action) or as
// individual priority-queued items, per spec.md §4.9 item 4.
func (s *SpawnStage) Enqueue(cell CellCoord, placements []ObjectPlacement, priority float64) {
	if s.cfg.EnableBatching {
		rx, ry := RegionOf(cell, s.cfg.BatchRegionSizeCells)
		for _, p := range placements {
			key := BatchKey{RegionX: rx, RegionY: ry, ModelID: p.ModelID, Action: p.ActionScript}
			b, ok := s.batches[key]
			if !ok {
				b = &spawnBatch{key: key, priority: priority}
				s.batches[key] = b
				s.batchQueue.Push(priority, key)
			} else if priority < b.priority {
				b.priority = priority
			}
			b.pending = append(b.pending, SpawnRequest{Cell: cell, Placement: p})
		}
		return
	}
	for _, p := range placements {
		s.itemQueue.Push(priority, SpawnRequest{Cell: cell, Placement: p})
	}
}

// SpawnedInstance is one freshly-placed (but still inactive) instance,
// ready for the caller to parse+enqueue its action script (spec.md §3
// "Model instance ... starts inactive until positioning completes").
type SpawnedInstance struct {
	Instance *ModelInstance
	Cell     CellCoord
	Action   string
}

// Drive starts new Acquire calls up to max_concurrent_spawns and the
// per-frame start cap, polls in-flight ones, and returns every instance
// that finished spawning this tick with its transform already applied
// (spec.md §4.9 item 4, §5 "Suspension points ... between spawned
// instances within a batch").
func (s *SpawnStage) Drive(ctx context.Context, center CellCoord, parentOf func(CellCoord) Transform) []SpawnedInstance {
	s.startNew(ctx)

	var finished []SpawnedInstance
	for id, fs := range s.inFlight {
		inst, err, ready := fs.future.Poll()
		if !ready {
			continue
		}
		delete(s.inFlight, id)
		if err != nil || !s.residency.IsDesired(fs.req.Cell) {
			// model_load_failed, or the owning cell unloaded before spawn
			// completed (spec.md §5 "Cancellation"): return to the pool
			// (or destroy) rather than leak it.
			if inst != nil {
				s.pool.Release(fs.req.Placement.ModelID, inst)
			}
			continue
		}
		s.place(inst, fs.req.Placement, parentOf(fs.req.Cell))
		s.residency.Attach(fs.req.Cell, inst.ID)
		finished = append(finished, SpawnedInstance{Instance: inst, Cell: fs.req.Cell, Action: fs.req.Placement.ActionScript})
	}
	return finished
}

func (s *SpawnStage) place(inst *ModelInstance, p ObjectPlacement, parent Transform) {
	inst.Root.SetParent(parent)
	k := s.cfg.RenderUnitsPerWorldUnit
	inst.Root.SetLocalPosition(RenderPosition(p.Position, k))
	inst.Root.SetLocalRotation(RenderRotation(p.RotationAxis, p.RotationAngle))
}

func (s *SpawnStage) startNew(ctx context.Context) {
	budget := s.cfg.MaxConcurrentSpawns - len(s.inFlight)
	if budget <= 0 {
		return
	}
	started := 0
	if s.cfg.EnableBatching {
		started = s.startFromBatches(ctx, budget)
	} else {
		started = s.startFromItems(ctx, budget)
	}
	_ = started
}

func (s *SpawnStage) startFromBatches(ctx context.Context, budget int) int {
	perFrameCap := s.cfg.MaxBatchSpawnsPerFrame
	started := 0
	for started < budget && started < perFrameCap {
		key, _, ok := s.batchQueue.Peek()
		if !ok {
			break
		}
		b := s.batches[key]
		if b == nil || len(b.pending) == 0 {
			s.batchQueue.PopMin()
			delete(s.batches, key)
			continue
		}
		req := b.pending[0]
		b.pending = b.pending[1:]
		s.startAcquire(ctx, req)
		started++
		if len(b.pending) == 0 {
			s.batchQueue.PopMin()
			delete(s.batches, key)
		} else {
			// Re-push at the same priority so a partially-drained batch
			// doesn't starve behind fresher, higher-priority batches that
			// arrived after it (the heap has no decrease-key; this is a
			// pop-and-repush, spec.md §4.1).
			s.batchQueue.PopMin()
			s.batchQueue.Push(b.priority, key)
		}
	}
	return started
}

func (s *SpawnStage) startFromItems(ctx context.Context, budget int) int {
	perFrameCap := s.cfg.MaxSpawnStartsPerFrame
	started := 0
	for started < budget && started < perFrameCap {
		req, _, ok := s.itemQueue.PopMin()
		if !ok {
			break
		}
		if !s.residency.IsDesired(req.Cell) {
			continue // stale_residency: dropped before it was even started
		}
		s.startAcquire(ctx, req)
		started++
	}
	return started
}

func (s *SpawnStage) startAcquire(ctx context.Context, req SpawnRequest) {
	id := s.nextID()
	future := Go(func() (*ModelInstance, error) {
		return s.pool.Acquire(ctx, id, req.Placement.ModelID, s.objectPath, s.password)
	})
	s.inFlight[id] = &inFlightSpawn{req: req, future: future}
}

// PendingLen and InFlightLen report queue depth for the debug overlay.
func (s *SpawnStage) PendingLen() int {
	if s.cfg.EnableBatching {
		n := 0
		for _, b := range s.batches {
			n += len(b.pending)
		}
		return n
	}
	return s.itemQueue.Len()
}
func (s *SpawnStage) InFlightLen() int { return len(s.inFlight) }

// actionWorkItem is one instance's action-script replay, resumable across
// frames at a command-index boundary (spec.md §4.9 item 5, §5
// "Suspension points ... at step boundaries inside the budgeted action
// loop").
type actionWorkItem struct {
	inst       *ModelInstance
	objectPath string
	password   string
	commands   []Command
	step       int
	pending    *Pending
	onComplete func()
}

// ActionStage is the budgeted FIFO action-apply loop (spec.md §4.9 item 5,
// §4.10). Numeric verbs (ambient, diffuse, visible, scale, shear) are
// applied as cheap direct calls via the precomputed NumericRecord; every
// other verb goes through the full Executor dispatch, which may return a
// Pending the stage waits on before advancing that item's step index.
type ActionStage struct {
	executor *Executor
	budget   time.Duration
	items    []*actionWorkItem
}

// NewActionStage wires an ActionStage.
func NewActionStage(executor *Executor, budget time.Duration) *ActionStage {
	return &ActionStage{executor: executor, budget: budget}
}

// Enqueue queues commands (typically a ParsedScript's Create phase) for
// inst. onComplete runs exactly once, after the last command has fully
// applied (including any pending async outcome) — the orchestrator uses
// it to activate the instance and store its activate-phase commands
// (spec.md §5 "Ordering guarantees").
func (s *ActionStage) Enqueue(inst *ModelInstance, objectPath, password string, commands []Command, onComplete func()) {
	if len(commands) == 0 {
		if onComplete != nil {
			onComplete()
		}
		return
	}
	s.items = append(s.items, &actionWorkItem{inst: inst, objectPath: objectPath, password: password, commands: commands, onComplete: onComplete})
}

// Drive processes queued items until the millisecond budget is spent or
// the queue is empty, whichever comes first. An item blocked on an
// in-flight Pending is skipped in favor of other ready items (spec.md §5
// "Nothing guarantees inter-instance order") rather than stalling the
// whole FIFO; a numeric-only command costs one step immediately since it
// never produces a Pending. Items enqueued while Drive runs (an onComplete
// queuing the activate phase) are kept after the still-pending ones.
func (s *ActionStage) Drive(ctx context.Context) {
	deadline := time.Now().Add(s.budget)
	items := s.items
	s.items = nil
	var remaining []*actionWorkItem
	for _, item := range items {
		if time.Now().After(deadline) {
			remaining = append(remaining, item)
			continue
		}
		if s.advance(ctx, item, deadline) {
			continue // finished; drop from the queue
		}
		remaining = append(remaining, item)
	}
	s.items = append(remaining, s.items...)
}

// advance runs item's commands forward from its current step until it
// either finishes (returns true), blocks on a pending async result, or
// the frame's budget runs out. Per spec.md §4.10, pure-numeric verbs are
// precomputed and applied directly; everything else goes through
// Executor.Apply.
func (s *ActionStage) advance(ctx context.Context, item *actionWorkItem, deadline time.Time) bool {
	for item.step < len(item.commands) {
		if item.pending != nil {
			if !item.pending.Ready() {
				return false
			}
			item.pending.Finish()
			item.pending = nil
			item.step++
			continue
		}
		if time.Now().After(deadline) {
			return false
		}
		cmd := item.commands[item.step]
		if rec := PreprocessNumeric(cmd); rec.Valid {
			s.executor.applyNumeric(item.inst, cmd, rec)
			item.step++
			continue
		}
		pending := s.executor.Apply(ctx, item.inst, cmd, item.objectPath, item.password)
		if pending != nil {
			item.pending = pending
			return false
		}
		item.step++
	}
	if item.onComplete != nil {
		item.onComplete()
	}
	return true
}

// Len reports how many instances have outstanding action work, for the
// debug overlay.
func (s *ActionStage) Len() int { return len(s.items) }

// applyNumeric dispatches a precomputed NumericRecord directly (spec.md
// §4.10), reusing the same per-verb appliers Apply uses for the
// non-precomputed path so the two never drift apart.
func (e *Executor) applyNumeric(inst *ModelInstance, cmd Command, rec NumericRecord) {
	switch rec.Verb {
	case "ambient":
		e.applyAmbient(inst, cmd, rec)
	case "diffuse":
		e.applyDiffuse(inst, cmd, rec)
	case "visible":
		e.applyVisible(inst, rec)
	case "scale":
		e.applyScale(inst, rec)
	case "shear":
		e.applyShearCmd(inst, rec)
	}
}

// TerrainBuildStage implements spec.md §4.9 item 6: when a tile's query
// completes, build its mesh and rebuild the four already-loaded cardinal
// neighbors so their shared-edge vertices pick up the new data (spec.md
// §4.8 step 7).
type TerrainBuildStage struct {
	cfg       Config
	cellCache map[cellGlobalKey]TerrainCell
	nodesByTile map[TileCoord][]TerrainNode
	residency *Residency[TileCoord]
}

type cellGlobalKey struct{ CX, CZ int32 }

// NewTerrainBuildStage wires a TerrainBuildStage sharing one global cell
// cache across every tile, the mechanism spec.md §4.8 step 1 and §5
// ("Terrain cell cache is shared across tiles so seam-reading is
// deterministic") require for bit-identical border heights.
func NewTerrainBuildStage(cfg Config, residency *Residency[TileCoord]) *TerrainBuildStage {
	return &TerrainBuildStage{
		cfg:         cfg,
		cellCache:   make(map[cellGlobalKey]TerrainCell),
		nodesByTile: make(map[TileCoord][]TerrainNode),
		residency:   residency,
	}
}

// WriteTile records tile's nodes (both for its own eventual mesh build and
// into the shared global cell cache so neighboring tiles' border vertices
// read them) and returns tile plus every cardinal neighbor that is
// already loaded, in the order they should be (re)built: tile first, then
// its neighbors (spec.md §4.8 step 7).
func (b *TerrainBuildStage) WriteTile(tile TileCoord, nodes []TerrainNode) []TileCoord {
	b.nodesByTile[tile] = nodes
	baseGX := tile.TX * int32(b.cfg.TileCellSpan)
	baseGZ := tile.TZ * int32(b.cfg.TileCellSpan)
	grid := buildCellGrid(nodes, b.cfg.TileCellSpan, b.cfg.NodeCellSpan)
	for cz := 0; cz < b.cfg.TileCellSpan; cz++ {
		for cx := 0; cx < b.cfg.TileCellSpan; cx++ {
			b.cellCache[cellGlobalKey{baseGX + int32(cx), baseGZ + int32(cz)}] = grid[cz][cx]
		}
	}

	toBuild := []TileCoord{tile}
	for _, n := range CardinalNeighborTiles(tile) {
		if _, ok := b.residency.LOD(n); ok {
			toBuild = append(toBuild, n)
		}
	}
	return toBuild
}

// BuildMesh builds tile's mesh against the shared global cell cache. It
// may be called for a tile whose own nodes were written on a prior call
// (a neighbor rebuild) as well as for the tile just written.
func (b *TerrainBuildStage) BuildMesh(tile TileCoord) (TerrainMesh, bool) {
	nodes, ok := b.nodesByTile[tile]
	if !ok {
		return TerrainMesh{}, false
	}
	return BuildTileMesh(tile, nodes, b.cfg, b.Lookup), true
}

// Forget drops tile's node data and cache entries on unload, so a later
// reload starts from a clean slate (spec.md §4.7 "unload_radius ... triggers
// destruction").
func (b *TerrainBuildStage) Forget(tile TileCoord) {
	delete(b.nodesByTile, tile)
	baseGX := tile.TX * int32(b.cfg.TileCellSpan)
	baseGZ := tile.TZ * int32(b.cfg.TileCellSpan)
	for cz := 0; cz < b.cfg.TileCellSpan; cz++ {
		for cx := 0; cx < b.cfg.TileCellSpan; cx++ {
			delete(b.cellCache, cellGlobalKey{baseGX + int32(cx), baseGZ + int32(cz)})
		}
	}
}

// Lookup is the HeightLookup the mesher uses, reading through the shared
// global cell cache (spec.md §4.8 step 2).
func (b *TerrainBuildStage) Lookup(gx, gz int32) (TerrainCell, bool) {
	c, ok := b.cellCache[cellGlobalKey{gx, gz}]
	return c, ok
}
