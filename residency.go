package worldstream

// LODState is the detail level assigned to a loaded cell or tile based on
// its distance from the viewer (spec.md §4.7: full_detail_radius,
// instanced_radius, proxy_radius).
type LODState uint8

const (
	LODFull LODState = iota
	LODInstanced
	LODProxy
)

// residentEntry is one loaded key's bookkeeping: its current LOD and the
// instances spawned into it (empty for terrain tiles, whose mesh handle
// lives in the caller's own tile-mesh map).
type residentEntry struct {
	lod       LODState
	instances []InstanceID
}

// Residency is a generic desired/queued/querying/loaded state machine for
// a radius-based streaming set (spec.md §4.1), shared by cell residency
// and terrain tile residency so both honor invariant 1 (spec.md §8 item
// 1: at most one query in flight per key, and a key is in exactly one of
// queued/querying/loaded at a time). K is CellCoord or TileCoord; the
// only operations that differ between the two are neighbor enumeration
// and distance measurement, both injected at construction.
type Residency[K comparable] struct {
	neighbors func(center K, radius int) []K
	distance  func(center, k K) (chebyshev, manhattan int)

	loadRadius        int
	unloadRadius      int
	fullDetailRadius  int
	instancedRadius   int
	proxyRadius       int
	nearBoostRadius   int
	nearBoostPriority float64
	prioritizeFrustum bool
	frustumBonus      float64

	// InFrustum is the caller-supplied frustum-test callback SPEC_FULL.md
	// §12.2 commits to: when non-nil and PrioritizeFrustum is set,
	// Reprioritize subtracts frustum_bonus from the computed priority of
	// any key it reports visible. Nil simply skips the adjustment, so a
	// caller that never sets it degrades to plain distance-based
	// priority.
	InFrustum func(k K) bool

	desired  map[K]struct{}
	queue    *PriorityQueue[K]
	querying map[K]struct{}
	loaded   map[K]*residentEntry

	// unloaded holds the entries the latest Reprioritize removed from
	// loaded, so the caller can still Detach them to tear down instances.
	unloaded map[K]*residentEntry
}

// NewResidency builds a Residency keyed by K, given how to enumerate
// neighbors within a radius and how to measure Chebyshev/Manhattan
// distance from a center key.
func NewResidency[K comparable](cfg Config, neighbors func(K, int) []K, distance func(K, K) (int, int)) *Residency[K] {
	return &Residency[K]{
		neighbors:         neighbors,
		distance:          distance,
		loadRadius:        cfg.LoadRadius,
		unloadRadius:      cfg.UnloadRadius,
		fullDetailRadius:  cfg.FullDetailRadius,
		instancedRadius:   cfg.InstancedRadius,
		proxyRadius:       cfg.ProxyRadius,
		nearBoostRadius:   cfg.NearBoostRadius,
		nearBoostPriority: cfg.NearBoostPriority,
		prioritizeFrustum: cfg.PrioritizeFrustum,
		frustumBonus:      cfg.FrustumBonus,
		desired:           make(map[K]struct{}),
		queue:             NewPriorityQueue[K](),
		querying:          make(map[K]struct{}),
		loaded:            make(map[K]*residentEntry),
	}
}

// Reprioritize recomputes the desired set around center, returning keys
// that left the unload radius (the caller unloads them, returning any
// attached instances to the template pool) and rebuilds the priority
// queue for every desired key not already querying or loaded (spec.md
// §4.1, §4.7, §4.9 "reprioritize stage").
func (r *Residency[K]) Reprioritize(center K) (unload []K) {
	next := make(map[K]struct{})
	for _, k := range r.neighbors(center, r.loadRadius) {
		next[k] = struct{}{}
	}
	r.desired = next

	for k := range r.loaded {
		chebyshev, _ := r.distance(center, k)
		if chebyshev > r.unloadRadius {
			unload = append(unload, k)
		}
	}
	r.unloaded = make(map[K]*residentEntry)
	for _, k := range unload {
		r.unloaded[k] = r.loaded[k]
		delete(r.loaded, k)
	}

	r.queue.Clear()
	for k := range r.desired {
		if _, inFlight := r.querying[k]; inFlight {
			continue
		}
		if _, isLoaded := r.loaded[k]; isLoaded {
			continue
		}
		chebyshev, manhattan := r.distance(center, k)
		priority := SpawnPriority(chebyshev, manhattan)
		if chebyshev <= r.nearBoostRadius {
			priority -= r.nearBoostPriority
		}
		if r.prioritizeFrustum && r.InFrustum != nil && r.InFrustum(k) {
			priority -= r.frustumBonus
		}
		r.queue.Push(priority, k)
	}

	for k, entry := range r.loaded {
		chebyshev, _ := r.distance(center, k)
		entry.lod = r.lodFor(chebyshev)
	}
	return unload
}

// lodFor assigns the LOD tier for a key at the given Chebyshev distance
// (spec.md §4.7): Full, then Instanced, then Proxy out to proxy_radius.
// Proxy is also the floor beyond proxy_radius — a loaded key can drift
// past it before crossing unload_radius, and the spec defines no tier
// past Proxy, so it keeps its collider-only rendering until unloaded.
func (r *Residency[K]) lodFor(chebyshev int) LODState {
	switch {
	case chebyshev <= r.fullDetailRadius:
		return LODFull
	case chebyshev <= r.instancedRadius:
		return LODInstanced
	case chebyshev <= r.proxyRadius:
		return LODProxy
	default:
		return LODProxy
	}
}

// StartQueries pops up to max keys off the priority queue in priority
// order and marks them querying (spec.md §4.9 "cell-query stage";
// concurrency is capped by the caller via max_concurrent_cell_queries /
// max_concurrent_terrain_queries).
func (r *Residency[K]) StartQueries(max int) []K {
	started := make([]K, 0, max)
	for len(started) < max {
		k, _, ok := r.queue.PopMin()
		if !ok {
			break
		}
		r.querying[k] = struct{}{}
		started = append(started, k)
	}
	return started
}

// FinishQuery marks k's query complete. On success it becomes loaded at
// its current LOD; on failure it is left out of every set so the next
// Reprioritize re-queues it if still desired (spec.md §7 "queries fail
// independently and simply retry").
func (r *Residency[K]) FinishQuery(center, k K, success bool) {
	delete(r.querying, k)
	if !success {
		return
	}
	chebyshev, _ := r.distance(center, k)
	r.loaded[k] = &residentEntry{lod: r.lodFor(chebyshev)}
}

// Attach records instances spawned for an already-loaded key.
func (r *Residency[K]) Attach(k K, ids ...InstanceID) {
	entry, ok := r.loaded[k]
	if !ok {
		return
	}
	entry.instances = append(entry.instances, ids...)
}

// Detach removes and returns k's loaded bookkeeping (its LOD and attached
// instances), for the unload path to return instances to the template
// pool. It also finds a key the latest Reprioritize moved out of loaded.
func (r *Residency[K]) Detach(k K) (LODState, []InstanceID, bool) {
	entry, ok := r.loaded[k]
	if ok {
		delete(r.loaded, k)
	} else if entry, ok = r.unloaded[k]; ok {
		delete(r.unloaded, k)
	} else {
		return LODFull, nil, false
	}
	return entry.lod, entry.instances, true
}

// Instances returns the instance ids currently attached to k, if loaded,
// without detaching them (used by LOD reconciliation, which only reads).
func (r *Residency[K]) Instances(k K) ([]InstanceID, bool) {
	entry, ok := r.loaded[k]
	if !ok {
		return nil, false
	}
	return entry.instances, true
}

// LOD reports k's current level of detail, if loaded.
func (r *Residency[K]) LOD(k K) (LODState, bool) {
	entry, ok := r.loaded[k]
	if !ok {
		return LODFull, false
	}
	return entry.lod, true
}

// IsDesired reports whether k is currently within the load radius.
func (r *Residency[K]) IsDesired(k K) bool {
	_, ok := r.desired[k]
	return ok
}

// LoadedKeys returns every currently-loaded key, for LOD reconciliation
// and the debug overlay.
func (r *Residency[K]) LoadedKeys() []K {
	out := make([]K, 0, len(r.loaded))
	for k := range r.loaded {
		out = append(out, k)
	}
	return out
}

// QueueLen, QueryingLen, and LoadedLen report set sizes for tests and the
// debug overlay (spec.md §6 "Observability").
func (r *Residency[K]) QueueLen() int    { return r.queue.Len() }
func (r *Residency[K]) QueryingLen() int { return len(r.querying) }
func (r *Residency[K]) LoadedLen() int   { return len(r.loaded) }

// CellNeighbors enumerates every cell within Chebyshev radius of center
// (spec.md §4.1's square load-radius neighborhood).
func CellNeighbors(center CellCoord, radius int) []CellCoord {
	out := make([]CellCoord, 0, (2*radius+1)*(2*radius+1))
	r := int32(radius)
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			out = append(out, CellCoord{CX: center.CX + dx, CY: center.CY + dy})
		}
	}
	return out
}

func cellDistance(center, c CellCoord) (int, int) {
	return center.Chebyshev(c), center.Manhattan(c)
}

// TileNeighbors enumerates every tile within Chebyshev radius of center.
func TileNeighbors(center TileCoord, radius int) []TileCoord {
	out := make([]TileCoord, 0, (2*radius+1)*(2*radius+1))
	r := int32(radius)
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			out = append(out, TileCoord{TX: center.TX + dx, TZ: center.TZ + dz})
		}
	}
	return out
}

func tileDistance(center, t TileCoord) (int, int) {
	return center.Chebyshev(t), center.Manhattan(t)
}

// NewCellResidency wires a Residency keyed by CellCoord.
func NewCellResidency(cfg Config) *Residency[CellCoord] {
	return NewResidency(cfg, CellNeighbors, cellDistance)
}

// NewTileResidency wires a Residency keyed by TileCoord.
func NewTileResidency(cfg Config) *Residency[TileCoord] {
	return NewResidency(cfg, TileNeighbors, tileDistance)
}
