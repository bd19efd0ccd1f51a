package worldstream

// InstanceID identifies a ModelInstance for the lifetime of its spawn (it
// is not reused across a pool return/acquire cycle).
type InstanceID uint64

// ColorState is the richer of the two variants the original source kept
// (spec.md §9 Open Questions, SPEC_FULL.md §12.1): it tracks whether a
// color override is active, the effective RGB, an effective opacity, and a
// monotonic Sequence bumped on every write. Sequence lets an in-flight
// asynchronous texture apply detect it has been superseded by a later
// color/opacity command and skip clobbering the newer state.
type ColorState struct {
	HasOverride bool
	RGB         [3]float32
	Opacity     float32
	OpacitySet  bool // true once "opacity" or an alpha-bearing "color" has run
	Sequence    uint32
}

// DesiredFlags are the visible/solid flags the action gate restores once
// pending_actions returns to zero (spec.md §4.4 "Action gate").
type DesiredFlags struct {
	Visible bool
	Solid   bool
}

// DefaultDesiredFlags is the spec.md §4.4 default: visible and solid.
func DefaultDesiredFlags() DesiredFlags {
	return DesiredFlags{Visible: true, Solid: true}
}

// InstanceState is the mutable per-instance action-script bookkeeping
// (spec.md §3 "Model instance", §4.4 "Action gate"). It is intentionally
// separate from ModelInstance (the scene-graph side) so it can be backed
// by a plain map (mapInstanceStore, the default) or by an external ECS
// (see the sibling entity/ module) without either side knowing which.
type InstanceState struct {
	TemplateID     string
	Color          ColorState
	PendingActions int
	Desired        DesiredFlags
	ActivatePhase  []Command // stored atomically once create phase completes
}

func newInstanceState(templateID string) *InstanceState {
	return &InstanceState{TemplateID: templateID, Desired: DefaultDesiredFlags()}
}

// reset clears per-instance action state for pool return (spec.md §4.6).
func (s *InstanceState) reset() {
	s.Color = ColorState{}
	s.PendingActions = 0
	s.Desired = DefaultDesiredFlags()
	s.ActivatePhase = nil
}

// InstanceStore stores and retrieves InstanceState by InstanceID. The
// default implementation (NewMapInstanceStore) is a plain map, mirroring
// willow's "EntityStore is optional; nil means local-only" design: most
// callers never need an external store. The sibling entity/ module offers
// a donburi-backed alternative for apps that already run an ECS world and
// want instance action state queryable alongside their other components.
type InstanceStore interface {
	New(id InstanceID, templateID string) *InstanceState
	Get(id InstanceID) (*InstanceState, bool)
	Delete(id InstanceID)
}

type mapInstanceStore struct {
	states map[InstanceID]*InstanceState
}

// NewMapInstanceStore returns the default in-process InstanceStore.
func NewMapInstanceStore() InstanceStore {
	return &mapInstanceStore{states: make(map[InstanceID]*InstanceState)}
}

func (s *mapInstanceStore) New(id InstanceID, templateID string) *InstanceState {
	st := newInstanceState(templateID)
	s.states[id] = st
	return st
}

func (s *mapInstanceStore) Get(id InstanceID) (*InstanceState, bool) {
	st, ok := s.states[id]
	return st, ok
}

func (s *mapInstanceStore) Delete(id InstanceID) {
	delete(s.states, id)
}

// ModelInstance is a clone of a template attached to a cell root (spec.md
// §3 "Model instance"). It starts inactive until positioning completes.
type ModelInstance struct {
	ID         InstanceID
	TemplateID string
	Root       Transform
	Renderers  []Renderer
	BaseScale  Vec3 // the template's authored scale; "scale" commands multiply against this
	Active     bool // false ("flash at origin" avoidance) until Activate is called
	FromPool   bool
}

// Activate marks the instance active for rendering. Per spec.md §3, once
// activated an instance is never re-placed mid-frame.
func (m *ModelInstance) Activate() {
	m.Active = true
}

// ActionGate implements spec.md §4.4's pending-action counter: renderers
// and colliders stay disabled while any action is in flight, and are
// restored to the instance's desired flags exactly when the counter
// returns to zero (spec.md §8 item 5).
type ActionGate struct {
	store InstanceStore
}

// NewActionGate wraps an InstanceStore with begin/end bookkeeping.
func NewActionGate(store InstanceStore) *ActionGate {
	return &ActionGate{store: store}
}

// Begin increments the pending counter for inst and, on the 0->1
// transition, disables its renderer and collider.
func (g *ActionGate) Begin(inst *ModelInstance) {
	st, ok := g.store.Get(inst.ID)
	if !ok {
		return
	}
	st.PendingActions++
	if st.PendingActions == 1 {
		setRendererState(inst, false, false)
	}
}

// End decrements the pending counter and, on the n->0 transition, restores
// the renderer/collider to the instance's desired flags.
func (g *ActionGate) End(inst *ModelInstance) {
	st, ok := g.store.Get(inst.ID)
	if !ok {
		return
	}
	if st.PendingActions > 0 {
		st.PendingActions--
	}
	if st.PendingActions == 0 {
		setRendererState(inst, st.Desired.Visible, st.Desired.Solid)
	}
}

// SetDesired updates the desired visible/solid flags. When the gate is
// idle (pending == 0) the change is reflected immediately, per spec.md
// §4.4 "Visible/solid commands update the desired flags and, when the gate
// is idle, immediately reflect them."
func (g *ActionGate) SetDesired(inst *ModelInstance, desired DesiredFlags) {
	st, ok := g.store.Get(inst.ID)
	if !ok {
		return
	}
	st.Desired = desired
	if st.PendingActions == 0 {
		setRendererState(inst, desired.Visible, desired.Solid)
	}
}

// Pending reports the current pending-action count for inst.
func (g *ActionGate) Pending(inst *ModelInstance) int {
	st, ok := g.store.Get(inst.ID)
	if !ok {
		return 0
	}
	return st.PendingActions
}

func setRendererState(inst *ModelInstance, visible, solid bool) {
	for _, r := range inst.Renderers {
		r.SetEnabled(visible)
		r.SetColliderEnabled(solid)
	}
}
