package entity

import (
	"sync"

	"github.com/yohamta/donburi"

	"github.com/kestrelworks/worldstream"
)

// instanceComponent holds one worldstream.InstanceState per Donburi entity.
var instanceComponent = donburi.NewComponentType[worldstream.InstanceState]()

// donburiInstanceStore backs worldstream.InstanceStore with a Donburi
// world instead of a plain map. InstanceID has no natural relationship to
// donburi.Entity, so a side table maps one to the other; everything else
// (the actual state, its lifetime) is owned by the world the same way any
// other component would be.
type donburiInstanceStore struct {
	world donburi.World

	mu      sync.Mutex
	entries map[worldstream.InstanceID]donburi.Entity
}

// NewDonburiInstanceStore creates a worldstream.InstanceStore backed by
// world, grounded on willow's ecs.NewDonburiStore (same "wrap a Donburi
// World behind the core's own collaborator interface" shape, here bridging
// InstanceStore instead of EntityStore).
func NewDonburiInstanceStore(world donburi.World) worldstream.InstanceStore {
	return &donburiInstanceStore{
		world:   world,
		entries: make(map[worldstream.InstanceID]donburi.Entity),
	}
}

func (s *donburiInstanceStore) New(id worldstream.InstanceID, templateID string) *worldstream.InstanceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent := s.world.Create(instanceComponent)
	entry := s.world.Entry(ent)
	state := worldstream.InstanceState{TemplateID: templateID, Desired: worldstream.DefaultDesiredFlags()}
	donburi.SetValue(entry, instanceComponent, state)
	s.entries[id] = ent
	return donburi.Get[worldstream.InstanceState](entry, instanceComponent)
}

func (s *donburiInstanceStore) Get(id worldstream.InstanceID) (*worldstream.InstanceState, bool) {
	s.mu.Lock()
	ent, ok := s.entries[id]
	s.mu.Unlock()
	if !ok || !s.world.Valid(ent) {
		return nil, false
	}
	entry := s.world.Entry(ent)
	return donburi.Get[worldstream.InstanceState](entry, instanceComponent), true
}

func (s *donburiInstanceStore) Delete(id worldstream.InstanceID) {
	s.mu.Lock()
	ent, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	if s.world.Valid(ent) {
		s.world.Remove(ent)
	}
}
