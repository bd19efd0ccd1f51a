package worldstream

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// templateEntry is one loaded model template: its hidden scene subgraph
// plus a LIFO pool of previously-returned instances ready for reuse
// (spec.md §4.6).
type templateEntry struct {
	object SceneGraphObject
	pool   []*ModelInstance
}

// TemplatePool loads each distinct model_id's template at most once
// (invariant 2, spec.md §8 item 2), deduplicating concurrent spawn
// requests for the same model_id with singleflight, and recycles returned
// instances through a capped per-model LIFO pool (spec.md §4.6). Grounded
// on willow's asset-cache pattern (load once, clone many) generalized
// with the dedup `golang.org/x/sync/singleflight` adds for concurrent
// first-spawns of the same model.
type TemplatePool struct {
	loader       ModelLoader
	scene        SceneGraph
	maxPool      int
	useTemplates bool

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*templateEntry
}

// NewTemplatePool wires a TemplatePool. maxPoolPerModel <= 0 disables
// pooling: Release always destroys the returned instance instead of
// recycling it. useTemplates false takes the spec.md §4.6 "direct load
// fallback": every Acquire calls LoadModel fresh instead of cloning a
// cached template, and Release never pools the result (spec.md §6
// "use_templates"/"enable_pooling"/"max_pool_per_model").
func NewTemplatePool(loader ModelLoader, scene SceneGraph, maxPoolPerModel int, useTemplates bool) *TemplatePool {
	return &TemplatePool{
		loader:       loader,
		scene:        scene,
		maxPool:      maxPoolPerModel,
		useTemplates: useTemplates,
		entries:      make(map[string]*templateEntry),
	}
}

// Acquire returns an instance for modelID: a recycled one from the pool
// if available, otherwise a fresh clone of the (possibly just-loaded)
// template. Concurrent Acquire calls for a model_id with no loaded
// template yet collapse into a single LoadModel call (invariant 2). When
// useTemplates is false, template caching and cloning are both bypassed
// (spec.md §4.6 "direct load fallback"): LoadModel runs once per instance
// and its result is used directly, uncloned.
func (p *TemplatePool) Acquire(ctx context.Context, id InstanceID, modelID, objectPath, password string) (*ModelInstance, error) {
	if modelID == "" {
		return nil, ErrNoTemplate
	}
	if !p.useTemplates {
		object, err := p.loader.LoadModel(ctx, modelID, objectPath, password)
		if err != nil {
			return nil, newError(KindModelLoadFailed, "load_model:"+modelID, err)
		}
		return &ModelInstance{
			ID:         id,
			TemplateID: modelID,
			Root:       object.Root,
			Renderers:  object.Renderers,
			BaseScale:  object.BaseScale,
			FromPool:   false,
		}, nil
	}

	if inst, ok := p.popPooled(modelID); ok {
		inst.ID = id
		inst.FromPool = true
		return inst, nil
	}

	entry, err := p.entryFor(ctx, modelID, objectPath, password)
	if err != nil {
		return nil, err
	}
	root, renderers := p.scene.CloneSubgraph(entry.object.Root, p.scene.NewRoot(modelID))
	return &ModelInstance{
		ID:         id,
		TemplateID: modelID,
		Root:       root,
		Renderers:  renderers,
		BaseScale:  entry.object.BaseScale,
		FromPool:   false,
	}, nil
}

func (p *TemplatePool) popPooled(modelID string) (*ModelInstance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[modelID]
	if !ok || len(entry.pool) == 0 {
		return nil, false
	}
	last := len(entry.pool) - 1
	inst := entry.pool[last]
	entry.pool = entry.pool[:last]
	return inst, true
}

func (p *TemplatePool) entryFor(ctx context.Context, modelID, objectPath, password string) (*templateEntry, error) {
	p.mu.Lock()
	if entry, ok := p.entries[modelID]; ok {
		p.mu.Unlock()
		return entry, nil
	}
	p.mu.Unlock()

	result, err, _ := p.group.Do(modelID, func() (interface{}, error) {
		p.mu.Lock()
		if entry, ok := p.entries[modelID]; ok {
			p.mu.Unlock()
			return entry, nil
		}
		p.mu.Unlock()

		object, loadErr := p.loader.LoadModel(ctx, modelID, objectPath, password)
		if loadErr != nil {
			return nil, newError(KindModelLoadFailed, "load_model:"+modelID, loadErr)
		}
		entry := &templateEntry{object: object}
		p.mu.Lock()
		p.entries[modelID] = entry
		p.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*templateEntry), nil
}

// Release returns inst to modelID's pool, up to maxPool entries, and
// destroys the subtree when the pool is full or pooling is disabled
// (spec.md §4.6). The caller is responsible for having already reset the
// instance's action state (InstanceStore.New / reset) before reuse.
func (p *TemplatePool) Release(modelID string, inst *ModelInstance) {
	if !p.useTemplates || p.maxPool <= 0 {
		p.scene.Destroy(inst.Root)
		return
	}
	p.mu.Lock()
	entry, ok := p.entries[modelID]
	if !ok {
		p.mu.Unlock()
		p.scene.Destroy(inst.Root)
		return
	}
	if len(entry.pool) >= p.maxPool {
		p.mu.Unlock()
		p.scene.Destroy(inst.Root)
		return
	}
	entry.pool = append(entry.pool, inst)
	p.mu.Unlock()
}

// Loaded reports whether modelID's template has finished loading.
func (p *TemplatePool) Loaded(modelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[modelID]
	return ok
}

// Len reports how many distinct model_ids have a loaded template, for the
// debug overlay (spec.md §6 "Observability" / "template and pool counts").
func (p *TemplatePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// TotalPooled reports the sum of recycled instances held across every
// model_id, for the debug overlay.
func (p *TemplatePool) TotalPooled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, entry := range p.entries {
		n += len(entry.pool)
	}
	return n
}

// PoolLen reports how many recycled instances are currently held for
// modelID, for tests and the debug overlay.
func (p *TemplatePool) PoolLen(modelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[modelID]
	if !ok {
		return 0
	}
	return len(entry.pool)
}
