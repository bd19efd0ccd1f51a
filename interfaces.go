package worldstream

import "context"

// MaterialHandle is an opaque identifier for a material instance on the
// renderer side. The engine never inspects it; it only uses it as a map
// key (material variant cache) and as an argument to Renderer methods
// (spec.md §9).
type MaterialHandle interface{}

// Renderer is the minimal glue the action executor and terrain mesher need
// from the out-of-scope rendering engine (spec.md §1, §9): enabling or
// disabling draw submission, and assigning materials/textures/properties
// per submesh or material index.
type Renderer interface {
	// SetEnabled shows or hides every submesh owned by this renderer.
	SetEnabled(enabled bool)
	// SetColliderEnabled enables or disables the associated collider, if any.
	SetColliderEnabled(enabled bool)
	// SetMaterial assigns a material to every submesh whose tag equals
	// wantTag, or to all submeshes when wantTag is absent (ok == false).
	SetMaterial(mat MaterialHandle, wantTag int, ok bool)
	// SetMainTexture assigns the main/base texture slot on the material(s)
	// selected the same way as SetMaterial.
	SetMainTexture(image TextureImage, wantTag int, ok bool)
	// SetNormalMap assigns the bump-map slot and enables the normal-map
	// keyword on every material.
	SetNormalMap(image TextureImage)
	// SetColor sets the effective RGBA on materials selected as SetMaterial.
	SetColor(r, g, b, a float32, wantTag int, ok bool)
	// ClearTexture clears the main texture slot (used when a color command
	// overrides a texture without "tint" — spec.md §4.4).
	ClearTexture(wantTag int, ok bool)
	// Materials returns one representative base (undecorated) material for
	// the submeshes selected by the same tag rule as SetMaterial, used by
	// the executor to derive alpha-mode variants (spec.md §4.5). ok is
	// false if no submesh matches the filter. When more than one distinct
	// base material shares a tag, the implementation picks one canonical
	// representative for all of them.
	Materials(wantTag int, ok bool) (MaterialHandle, bool)
	// SetAmbient and SetDiffuse scale the corresponding lighting term on
	// materials selected as SetMaterial (spec.md §4.4 "ambient"/"diffuse").
	SetAmbient(v float32, wantTag int, ok bool)
	SetDiffuse(v float32, wantTag int, ok bool)
	// SetShear passes the normalized six-component shear record through to
	// the renderer, which applies it as a per-object vertex deformation
	// (spec.md §4.4 "shear"); the engine itself never touches vertex data.
	SetShear(coeffs [6]float64)
}

// TextureImage is the decoded-texture handle passed to a Renderer. The
// concrete type (e.g. an adapter's GPU texture resource) is opaque to the
// core engine.
type TextureImage interface{}

// Transform is the minimal 3D scene-graph transform glue (spec.md §9):
// parent/child attachment and local position/rotation/scale, with
// world<->local conversion left to the implementation.
type Transform interface {
	SetParent(parent Transform)
	SetLocalPosition(p Vec3)
	SetLocalRotation(q Quat)
	SetLocalScale(s Vec3)
	LocalScale() Vec3
}

// SceneGraph creates and destroys scene subtrees and renderers for
// templates, instances, and cell/tile roots (spec.md §9).
type SceneGraph interface {
	// NewRoot creates an empty transform with no parent, used for cell
	// roots, tile roots, template roots, and pool roots.
	NewRoot(name string) Transform
	// CloneSubgraph deep-clones the subgraph rooted at template, parented
	// under parent, returning the clone's root transform and its renderer
	// set (one per submesh-bearing node in the clone).
	CloneSubgraph(template Transform, parent Transform) (Transform, []Renderer)
	// Destroy releases a subtree and its GPU resources.
	Destroy(root Transform)
}

// ObjectPlacement is one server-provided object description (spec.md §3).
type ObjectPlacement struct {
	ModelID       string
	Position      Vec3
	RotationAxis  Vec3
	RotationAngle float64 // radians; +/-Inf means RotationAxis holds Euler angles
	ActionScript  string
	Description   string
}

// TerrainCell is one immutable, server-sourced terrain cell (spec.md §3).
type TerrainCell struct {
	Height          float32
	TextureID       uint16
	RotationQuarter uint8 // 0..3
	IsHole          bool
}

// TerrainNode is a sub-block of a tile (spec.md §6): a node_span x
// node_span grid of cells, offset within the tile by (X, Z) in node units.
type TerrainNode struct {
	X, Z  int
	Cells []TerrainCell // row-major, len == node_span*node_span
}

// WorldClient is the out-of-scope network client to the world server
// (spec.md §1, §6).
type WorldClient interface {
	QueryCell(ctx context.Context, cx, cy int32) ([]ObjectPlacement, error)
	QueryTerrain(ctx context.Context, tx, tz int32, nodeMask [16]int32) ([]TerrainNode, error)
}

// SceneGraphObject is the result of a successful model load: a hidden
// template subgraph plus its renderer set, ready to be marked inactive and
// cloned (spec.md §3 "Model template").
type SceneGraphObject struct {
	Root      Transform
	Renderers []Renderer
	BaseScale Vec3
}

// ModelLoader is the out-of-scope model loader (spec.md §1, §6).
type ModelLoader interface {
	LoadModel(ctx context.Context, id, objectPath, password string) (SceneGraphObject, error)
}

// AssetDownloader is the out-of-scope asset fetcher used for texture and
// normal-map downloads (spec.md §6).
type AssetDownloader interface {
	Download(ctx context.Context, objectPath, filename, password string) ([]byte, error)
}
