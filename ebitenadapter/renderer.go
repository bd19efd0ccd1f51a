package ebitenadapter

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/kestrelworks/worldstream"
)

// Material is the adapter's worldstream.MaterialHandle: a plain value the
// core engine never inspects, used only as a map key (material variant
// cache) and as a SetMaterial/Materials argument (spec.md §4.5, §9). A
// pointer so distinct materials compare distinct even with identical field
// values, matching willow's Color value type being wrapped in per-node
// state rather than interned.
type Material struct {
	Name       string
	Ambient    float32
	Diffuse    float32
	R, G, B, A float32
	Variant    worldstream.VariantSpec
}

// DeriveVariant clones base with spec's alpha-mode configuration, the
// Executor.DeriveVariant collaborator worldstream.MaterialVariantCache calls
// for any base material marked MarkStandardFamily (spec.md §4.5).
func DeriveVariant(base worldstream.MaterialHandle, spec worldstream.VariantSpec) worldstream.MaterialHandle {
	m, ok := base.(*Material)
	if !ok {
		return base
	}
	clone := *m
	clone.Variant = spec
	return &clone
}

// TextureHandle is the adapter's worldstream.TextureImage: a decoded
// texture uploaded to the GPU.
type TextureHandle struct {
	Image *ebiten.Image
}

// submesh is one material slot on a Renderer: an optional tag plus the
// material/texture/color/lighting state the executor mutates.
type submesh struct {
	tag      int
	hasTag   bool
	material *Material
	texture  *TextureHandle
	normal   *TextureHandle
}

func (s *submesh) matches(wantTag int, ok bool) bool {
	if !ok {
		return true
	}
	return s.hasTag && s.tag == wantTag
}

// SpriteRenderer is the adapter's worldstream.Renderer: a flat list of
// material slots ("submeshes" in the spec's vocabulary, here one per
// distinct tag a model's action script can target) attached to a Node, plus
// the enabled/collider-enabled flags the action gate toggles (spec.md
// §4.4). Grounded on willow's Node.Color/BlendMode per-node visual state
// plus SetVisible/SetRenderable setters, generalized from a single sprite's
// fields to a per-submesh slot list since one model instance here may have
// several independently tagged materials.
type SpriteRenderer struct {
	node     *Node
	submeshes []*submesh

	enabled         bool
	colliderEnabled bool
	shear           [6]float64
}

// NewSpriteRenderer creates a Renderer for node with the given submesh tags
// (pass nil/empty for a single untagged submesh).
func NewSpriteRenderer(node *Node, tags []int) *SpriteRenderer {
	r := &SpriteRenderer{node: node, enabled: true, colliderEnabled: true}
	if len(tags) == 0 {
		r.submeshes = []*submesh{{material: &Material{Ambient: 1, Diffuse: 1, R: 1, G: 1, B: 1, A: 1}}}
		return r
	}
	for _, t := range tags {
		r.submeshes = append(r.submeshes, &submesh{tag: t, hasTag: true, material: &Material{Ambient: 1, Diffuse: 1, R: 1, G: 1, B: 1, A: 1}})
	}
	return r
}

func (r *SpriteRenderer) selected(wantTag int, ok bool) []*submesh {
	var out []*submesh
	for _, s := range r.submeshes {
		if s.matches(wantTag, ok) {
			out = append(out, s)
		}
	}
	return out
}

// SetEnabled implements worldstream.Renderer.
func (r *SpriteRenderer) SetEnabled(enabled bool) { r.enabled = enabled }

// SetColliderEnabled implements worldstream.Renderer.
func (r *SpriteRenderer) SetColliderEnabled(enabled bool) { r.colliderEnabled = enabled }

// SetMaterial implements worldstream.Renderer.
func (r *SpriteRenderer) SetMaterial(mat worldstream.MaterialHandle, wantTag int, ok bool) {
	m, isMat := mat.(*Material)
	if !isMat {
		return
	}
	for _, s := range r.selected(wantTag, ok) {
		s.material = m
	}
}

// SetMainTexture implements worldstream.Renderer.
func (r *SpriteRenderer) SetMainTexture(image worldstream.TextureImage, wantTag int, ok bool) {
	tex := asTextureHandle(image)
	for _, s := range r.selected(wantTag, ok) {
		s.texture = tex
	}
}

// SetNormalMap implements worldstream.Renderer. Per DESIGN.md's resolved
// Open Question, normal maps are not material-instanced: every submesh
// shares the same normal slot.
func (r *SpriteRenderer) SetNormalMap(image worldstream.TextureImage) {
	tex := asTextureHandle(image)
	for _, s := range r.submeshes {
		s.normal = tex
	}
}

// asTextureHandle accepts either an already-adapted *TextureHandle or a
// plain image.Image (what worldstream.TextureCache stores and hands back
// on a cache hit) and uploads the latter to the GPU on demand, so a
// texture the core fed from its own cache displays the same as one this
// adapter decoded itself.
func asTextureHandle(img worldstream.TextureImage) *TextureHandle {
	switch v := img.(type) {
	case *TextureHandle:
		return v
	case image.Image:
		return &TextureHandle{Image: ebiten.NewImageFromImage(v)}
	default:
		return nil
	}
}

// SetColor implements worldstream.Renderer.
func (r *SpriteRenderer) SetColor(rr, g, b, a float32, wantTag int, ok bool) {
	for _, s := range r.selected(wantTag, ok) {
		s.material.R, s.material.G, s.material.B, s.material.A = rr, g, b, a
	}
}

// ClearTexture implements worldstream.Renderer.
func (r *SpriteRenderer) ClearTexture(wantTag int, ok bool) {
	for _, s := range r.selected(wantTag, ok) {
		s.texture = nil
	}
}

// Materials implements worldstream.Renderer: one representative base
// material per the tag filter, for the executor to derive alpha-mode
// variants from (spec.md §4.5).
func (r *SpriteRenderer) Materials(wantTag int, ok bool) (worldstream.MaterialHandle, bool) {
	sel := r.selected(wantTag, ok)
	if len(sel) == 0 {
		return nil, false
	}
	return sel[0].material, true
}

// SetAmbient implements worldstream.Renderer.
func (r *SpriteRenderer) SetAmbient(v float32, wantTag int, ok bool) {
	for _, s := range r.selected(wantTag, ok) {
		s.material.Ambient = v
	}
}

// SetDiffuse implements worldstream.Renderer.
func (r *SpriteRenderer) SetDiffuse(v float32, wantTag int, ok bool) {
	for _, s := range r.selected(wantTag, ok) {
		s.material.Diffuse = v
	}
}

// SetShear implements worldstream.Renderer. The demo adapter has no mesh
// geometry to deform (sprites are billboards), so it records the
// coefficients for a caller that wants to inspect them but otherwise
// no-ops, matching spec.md §9's "the engine itself never touches vertex
// data" — neither does this particular renderer implementation.
func (r *SpriteRenderer) SetShear(coeffs [6]float64) {
	r.shear = coeffs
}
