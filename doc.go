// Package worldstream implements the streaming and work-scheduling engine
// for a large, persistent, cell-partitioned 3D world around a moving
// viewer: a spatial residency manager for cells and terrain tiles, a
// prioritized cooperative work scheduler, an action-script parser and
// executor for per-object behavior, and a terrain mesher.
//
// The package never talks to a network, a model loader, or a rendering
// engine directly. Those are external collaborators reached only through
// the interfaces in interfaces.go (WorldClient, ModelLoader,
// AssetDownloader, Renderer, Transform, MaterialHandle, SceneGraph). A
// runnable demo wiring this engine to an ebiten-based Renderer lives in
// cmd/worldstream-demo.
package worldstream
