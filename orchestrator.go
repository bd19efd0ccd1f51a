package worldstream

import (
	"context"
	"math"
	"time"
)

// Orchestrator is the top-level per-tick driver (spec.md §4.9): it tracks
// the viewer's current cell/tile, reprioritizes the residency sets when
// the viewer moves or rotates enough, and drives every cooperating stage
// in the fixed order spec.md §4.9 lists them. It owns no rendering
// decisions itself — every point where a decision belongs to the
// out-of-scope renderer (spawn a cell root, assign a terrain mesh, react
// to an LOD change) is surfaced as a callback field, mirroring willow's
// `willow.go` Run/Update loop shape (update -> reprioritize -> draw).
type Orchestrator struct {
	cfg Config

	cellResidency *Residency[CellCoord]
	tileResidency *Residency[TileCoord]
	cellQuery     *CellQueryStage
	terrainQuery  *TerrainQueryStage
	spawnStage    *SpawnStage
	actionStage   *ActionStage
	terrainBuild  *TerrainBuildStage

	parser    *ActionParser
	executor  *Executor
	pool      *TemplatePool
	scene     SceneGraph
	instances InstanceStore
	textures  *TextureCache
	materials *MaterialVariantCache

	objectPath string
	password   string

	viewerCell     CellCoord
	viewerTile     TileCoord
	haveViewerCell bool
	lastReprioPos  Vec3
	lastReprioRot  float64
	lastReprioTime time.Time

	nextID      InstanceID
	currentTick time.Time

	cellRoots     map[CellCoord]Transform
	cellLOD       map[CellCoord]LODState
	tileLOD       map[TileCoord]LODState
	liveInstances map[InstanceID]*ModelInstance

	// Hooks into the out-of-scope renderer/scene-graph owner. Nil hooks
	// are simply skipped.
	OnCellLoaded    func(cell CellCoord, root Transform)
	OnCellUnloaded  func(cell CellCoord)
	OnTileBuilt     func(tile TileCoord, mesh TerrainMesh)
	OnCellLODChanged func(cell CellCoord, lod LODState, instances []InstanceID)
	OnTileLODChanged func(tile TileCoord, lod LODState)
	OnInstanceSpawned   func(id InstanceID, root Transform, renderers []Renderer)
	OnInstanceDestroyed func(id InstanceID)

	// CellInFrustum and TileInFrustum are the caller-supplied frustum-test
	// hooks SPEC_FULL.md §12.2 prescribes: when prioritize_frustum is set
	// and a hook is non-nil, a cell/tile it reports visible gets
	// frustum_bonus subtracted from its query priority. Nil hooks simply
	// skip the adjustment, keeping the core free of any direct camera
	// dependency.
	CellInFrustum func(cell CellCoord) bool
	TileInFrustum func(tile TileCoord) bool

	// Debug gates logging of failed cell and terrain queries through Log
	// (SPEC_FULL.md §10 "Logging"); with Debug off or Log nil nothing is
	// logged.
	Debug bool
	Log   func(format string, args ...any)
}

// NewOrchestrator wires an Orchestrator from its stage collaborators.
// objectPath/password are the session-wide asset-fetch credentials
// (spec.md §6); the spec does not vary these per placement.
func NewOrchestrator(
	cfg Config,
	client WorldClient,
	loader ModelLoader,
	downloader AssetDownloader,
	scene SceneGraph,
	sign SignRasterizer,
	deriveVariant func(MaterialHandle, VariantSpec) MaterialHandle,
	objectPath, password string,
	instances InstanceStore,
) *Orchestrator {
	cellResidency := NewCellResidency(cfg)
	tileResidency := NewTileResidency(cfg)
	if instances == nil {
		instances = NewMapInstanceStore()
	}
	gate := NewActionGate(instances)
	pool := NewTemplatePool(loader, scene, ternInt(cfg.EnablePooling, cfg.MaxPoolPerModel, 0), cfg.UseTemplates)
	textures := NewTextureCache(cfg.MaxCachedTextures)
	materials := NewMaterialVariantCache()
	executor := NewExecutor(downloader, textures, materials, instances, gate, deriveVariant)
	executor.Sign = sign

	o := &Orchestrator{
		cfg:           cfg,
		cellResidency: cellResidency,
		tileResidency: tileResidency,
		cellQuery:     NewCellQueryStage(client, cellResidency, cfg.MaxConcurrentCellQueries),
		terrainQuery:  NewTerrainQueryStage(client, tileResidency, cfg.MaxConcurrentTerrainQueries),
		actionStage:   NewActionStage(executor, cfg.ActionBudget),
		terrainBuild:  NewTerrainBuildStage(cfg, tileResidency),
		parser:        NewActionParserWithCaching(cfg.CacheParsedActions),
		executor:      executor,
		pool:          pool,
		scene:         scene,
		instances:     instances,
		textures:      textures,
		materials:     materials,
		objectPath:    objectPath,
		password:      password,
		cellRoots:     make(map[CellCoord]Transform),
		cellLOD:       make(map[CellCoord]LODState),
		tileLOD:       make(map[TileCoord]LODState),
		liveInstances: make(map[InstanceID]*ModelInstance),
	}
	o.spawnStage = NewSpawnStage(cfg, pool, cellResidency, objectPath, password, o.allocID)
	return o
}

func ternInt(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}

func (o *Orchestrator) allocID() InstanceID {
	o.nextID++
	return o.nextID
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Debug && o.Log != nil {
		o.Log(format, args...)
	}
}

// Tick is the single entry point: spec.md §4.9 items 1-6, run in order.
// dt is the frame delta in seconds, used to advance light fx loops.
func (o *Orchestrator) Tick(ctx context.Context, viewerPos Vec3, viewerRotRad float64, now time.Time, dt float32) {
	o.currentTick = now
	o.updateViewerCell(viewerPos)
	o.maybeReprioritize(viewerPos, viewerRotRad, now)

	o.driveCellQuery(ctx)
	o.driveTerrainQuery(ctx)
	o.driveSpawn(ctx)
	o.actionStage.Drive(ctx)
	o.executor.TickLights(dt)
	o.reconcileLOD()
}

// updateViewerCell implements item 1: if the viewer's cell changed,
// recompute desired sets and unload cells/tiles outside unload_radius.
func (o *Orchestrator) updateViewerCell(viewerPos Vec3) {
	cell := CellOf(viewerPos.X, viewerPos.Z, o.cfg.WorldUnitsPerCell)
	tile := TileCoord{
		TX: floorDivInt32(cell.CX, int32(o.cfg.TileCellSpan)),
		TZ: floorDivInt32(cell.CY, int32(o.cfg.TileCellSpan)),
	}
	if o.haveViewerCell && cell == o.viewerCell {
		return
	}
	o.haveViewerCell = true
	o.viewerCell = cell
	o.viewerTile = tile
	o.reprioritizeNow(viewerPos, 0)
}

// maybeReprioritize implements item 2: re-score the spawn heaps when the
// viewer has moved or rotated past its threshold since the last
// reprioritization and the cooldown has elapsed (SPEC_FULL.md §12.2).
func (o *Orchestrator) maybeReprioritize(viewerPos Vec3, viewerRotRad float64, now time.Time) {
	if now.Sub(o.lastReprioTime) < o.cfg.ReprioritizeCooldown {
		return
	}
	moved := distance(viewerPos, o.lastReprioPos)
	rotated := angleDelta(viewerRotRad, o.lastReprioRot)
	periodic := o.cfg.PeriodicReprioritize > 0 && now.Sub(o.lastReprioTime) >= o.cfg.PeriodicReprioritize
	if moved < o.cfg.MoveThreshold && rotated < o.cfg.RotateThresholdRad && !periodic {
		return
	}
	o.reprioritizeNow(viewerPos, viewerRotRad)
}

func (o *Orchestrator) reprioritizeNow(viewerPos Vec3, viewerRotRad float64) {
	o.cellResidency.InFrustum = o.CellInFrustum
	o.tileResidency.InFrustum = o.TileInFrustum
	unloadCells := o.cellResidency.Reprioritize(o.viewerCell)
	unloadTiles := o.tileResidency.Reprioritize(o.viewerTile)
	for _, c := range unloadCells {
		o.unloadCell(c)
	}
	for _, t := range unloadTiles {
		o.unloadTile(t)
	}
	o.lastReprioPos = viewerPos
	o.lastReprioRot = viewerRotRad
	o.lastReprioTime = o.currentTick
}

func (o *Orchestrator) unloadCell(cell CellCoord) {
	lod, ids, ok := o.cellResidency.Detach(cell)
	_ = lod
	if !ok {
		return
	}
	for _, id := range ids {
		o.destroyInstance(cell, id)
	}
	delete(o.cellLOD, cell)
	if root, ok := o.cellRoots[cell]; ok {
		delete(o.cellRoots, cell)
		if o.OnCellUnloaded != nil {
			o.OnCellUnloaded(cell)
		}
		o.scene.Destroy(root)
	}
}

// destroyInstance returns id's instance to the template pool (or destroys
// it, if pooling is disabled or full — TemplatePool.Release decides) and
// clears its per-instance action state (spec.md §4.6 "Returning an
// instance resets per-instance action state").
func (o *Orchestrator) destroyInstance(cell CellCoord, id InstanceID) {
	st, hasState := o.instances.Get(id)
	inst, hasInst := o.liveInstances[id]
	o.executor.Forget(id)
	if hasState {
		st.reset()
	}
	o.instances.Delete(id)
	if hasInst {
		delete(o.liveInstances, id)
		o.pool.Release(inst.TemplateID, inst)
	}
	if o.OnInstanceDestroyed != nil {
		o.OnInstanceDestroyed(id)
	}
}

func (o *Orchestrator) unloadTile(tile TileCoord) {
	o.terrainBuild.Forget(tile)
	delete(o.tileLOD, tile)
}

func distance(a, b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func angleDelta(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi) - math.Pi
	if d < 0 {
		d = -d
	}
	return d
}

// driveCellQuery implements item 3.
func (o *Orchestrator) driveCellQuery(ctx context.Context) {
	for _, res := range o.cellQuery.Drive(ctx, o.viewerCell) {
		if res.Err != nil {
			o.logf("cell query %+v failed: %v", res.Cell, res.Err)
			continue
		}
		root := o.scene.NewRoot(cellRootName(res.Cell))
		o.cellRoots[res.Cell] = root
		if o.OnCellLoaded != nil {
			o.OnCellLoaded(res.Cell, root)
		}
		chebyshev, manhattan := o.viewerCell.Chebyshev(res.Cell), o.viewerCell.Manhattan(res.Cell)
		o.spawnStage.Enqueue(res.Cell, res.Placements, SpawnPriority(chebyshev, manhattan))
	}
}

func cellRootName(c CellCoord) string {
	return "cell:" + itoa(int(c.CX)) + "," + itoa(int(c.CY))
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// driveTerrainQuery implements the terrain half of item 3 plus item 6
// (build on completion, rebuild already-loaded neighbors).
func (o *Orchestrator) driveTerrainQuery(ctx context.Context) {
	for _, res := range o.terrainQuery.Drive(ctx, o.viewerTile) {
		if res.Err != nil {
			o.logf("terrain query %+v failed: %v", res.Tile, res.Err)
			continue
		}
		toBuild := o.terrainBuild.WriteTile(res.Tile, res.Nodes)
		for _, t := range toBuild {
			mesh, ok := o.terrainBuild.BuildMesh(t)
			if !ok {
				continue
			}
			if o.OnTileBuilt != nil {
				o.OnTileBuilt(t, mesh)
			}
		}
	}
}

// driveSpawn implements item 4: pop spawn work, and for every instance
// that finishes this tick, parse its action script (cache hit for
// repeated scripts, spec.md §4.3) and queue the create phase (spec.md §5
// "Suspension points ... between spawned instances within a batch").
func (o *Orchestrator) driveSpawn(ctx context.Context) {
	parentOf := func(cell CellCoord) Transform { return o.cellRoots[cell] }
	for _, spawned := range o.spawnStage.Drive(ctx, o.viewerCell, parentOf) {
		inst := spawned.Instance
		o.liveInstances[inst.ID] = inst
		o.instances.New(inst.ID, inst.TemplateID)
		if o.OnInstanceSpawned != nil {
			o.OnInstanceSpawned(inst.ID, inst.Root, inst.Renderers)
		}
		parsed := o.parser.ParseClone(spawned.Action)
		o.actionStage.Enqueue(inst, o.objectPath, o.password, parsed.Create, func() {
			o.onCreatePhaseComplete(inst, parsed.Activate)
		})
	}
}

// onCreatePhaseComplete implements spec.md §5's ordering guarantee: the
// activate-phase command list is stored atomically only after every
// create-phase command (including any asynchronous outcome) has applied,
// and the instance is activated for rendering only then (spec.md §3
// "starts inactive until positioning completes").
func (o *Orchestrator) onCreatePhaseComplete(inst *ModelInstance, activate []Command) {
	if st, ok := o.instances.Get(inst.ID); ok {
		st.ActivatePhase = activate
	}
	inst.Activate()
	if len(activate) > 0 {
		o.actionStage.Enqueue(inst, o.objectPath, o.password, activate, nil)
	}
}

// reconcileLOD implements spec.md §4.7's "applied on a separate tick":
// whenever a loaded cell's or tile's computed LOD differs from what was
// last reported, fire the corresponding hook so the renderer can switch
// between Full instances, GPU-instanced batches, and collider-only
// proxies.
func (o *Orchestrator) reconcileLOD() {
	for _, cell := range o.cellResidency.LoadedKeys() {
		lod, ok := o.cellResidency.LOD(cell)
		if !ok {
			continue
		}
		if prev, seen := o.cellLOD[cell]; seen && prev == lod {
			continue
		}
		o.cellLOD[cell] = lod
		if o.OnCellLODChanged != nil {
			ids, _ := o.cellResidency.Instances(cell)
			o.OnCellLODChanged(cell, lod, ids)
		}
	}
	for _, tile := range o.tileResidency.LoadedKeys() {
		lod, ok := o.tileResidency.LOD(tile)
		if !ok {
			continue
		}
		if prev, seen := o.tileLOD[tile]; seen && prev == lod {
			continue
		}
		o.tileLOD[tile] = lod
		if o.OnTileLODChanged != nil {
			o.OnTileLODChanged(tile, lod)
		}
	}
}

// DebugSnapshot reports the overlay counters spec.md §6 "Observability"
// lists (SPEC_FULL.md §12.3: a value copy, not a live view).
func (o *Orchestrator) DebugSnapshot() DebugSnapshot {
	return DebugSnapshot{
		ViewerCell:        o.viewerCell,
		ViewerTile:        o.viewerTile,
		CellsLoaded:       o.cellResidency.LoadedLen(),
		CellsQueued:       o.cellResidency.QueueLen(),
		CellsQuerying:     o.cellResidency.QueryingLen(),
		TilesLoaded:       o.tileResidency.LoadedLen(),
		TilesQueued:       o.tileResidency.QueueLen(),
		TilesQuerying:     o.tileResidency.QueryingLen(),
		SpawnPending:      o.spawnStage.PendingLen(),
		SpawnInFlight:     o.spawnStage.InFlightLen(),
		ActionQueueLen:    o.actionStage.Len(),
		ActionBudget:      o.cfg.ActionBudget,
		ReprioritizeCooldown: o.cfg.ReprioritizeCooldown,
		ParsedScriptsCached:  o.parser.Len(),
		TemplatesLoaded:      o.pool.Len(),
		InstancesPooled:      o.pool.TotalPooled(),
		TexturesCached:       o.textures.Len(),
		MaterialVariantsCached: o.materials.Len(),
	}
}
