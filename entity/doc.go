// Package entity provides a Donburi-backed InstanceStore for worldstream.
//
// The sibling module shape mirrors willow's ecs submodule: a separate
// go.mod with a replace directive back to the parent, so the core engine
// never depends on donburi and an app that already runs a Donburi world can
// have an instance's action-script state (color override, pending-action
// count, desired visible/solid flags, activate-phase commands) queryable
// as an ordinary component alongside its own.
//
// Usage:
//
//	world := donburi.NewWorld()
//	store := entity.NewDonburiInstanceStore(world)
//	orchestrator := worldstream.NewOrchestrator(cfg, client, loader, downloader, scene, sign, deriveVariant, objectPath, password, store)
//
// [Donburi]: https://github.com/yohamta/donburi
package entity
