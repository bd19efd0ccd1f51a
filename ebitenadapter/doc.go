// Package ebitenadapter is a reference implementation of worldstream's
// renderer-side interfaces (Transform, Renderer, MaterialHandle,
// TextureImage, SceneGraph) on top of ebiten, for cmd/worldstream-demo.
//
// Ebiten draws in 2D; this adapter projects the engine's 3D render-space
// positions (spec.md §6's coordinate convention, already produced by
// worldstream.RenderPosition/RenderRotation) down to screen space with a
// simple top-down orthographic projection, the same way willow's TileMapLayer
// rebuilds a vertex/index buffer per frame and buckets draw calls by atlas
// page (tilemap.go) — generalized here from a flat tile grid to arbitrary
// 3D node positions and per-texture-id terrain submeshes.
package ebitenadapter
