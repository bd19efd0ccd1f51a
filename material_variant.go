package worldstream

// AlphaMode selects a material variant for the Standard-family shader
// (spec.md §3, §4.5).
type AlphaMode uint8

const (
	AlphaOpaque AlphaMode = iota
	AlphaCutout
	AlphaTransparent
)

// BlendFactor mirrors the common GPU blend-factor enum, used only to
// describe a variant's configuration to a Renderer implementation.
type BlendFactor uint8

const (
	BlendOne BlendFactor = iota
	BlendZero
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
)

// VariantSpec is the fixed per-mode configuration table from spec.md §4.5.
type VariantSpec struct {
	Mode        AlphaMode
	SrcBlend    BlendFactor
	DstBlend    BlendFactor
	ZWrite      bool
	AlphaTest   bool    // Cutout: alpha-test keyword enabled
	AlphaCutoff float32 // Cutout threshold
	AlphaBlend  bool    // Transparent: alpha-blend keyword enabled
	RenderQueue int
}

// variantTable is the spec.md §4.5 table, indexed by AlphaMode.
var variantTable = [3]VariantSpec{
	AlphaOpaque: {
		Mode: AlphaOpaque, SrcBlend: BlendOne, DstBlend: BlendZero,
		ZWrite: true, RenderQueue: 0,
	},
	AlphaCutout: {
		Mode: AlphaCutout, SrcBlend: BlendOne, DstBlend: BlendZero,
		ZWrite: true, AlphaTest: true, AlphaCutoff: 0.5, RenderQueue: 2450,
	},
	AlphaTransparent: {
		Mode: AlphaTransparent, SrcBlend: BlendSrcAlpha, DstBlend: BlendOneMinusSrcAlpha,
		ZWrite: false, AlphaBlend: true, RenderQueue: 3000,
	},
}

// VariantKey is the (base material, alpha mode) cache key (spec.md §3).
type VariantKey struct {
	Base MaterialHandle
	Mode AlphaMode
}

// MaterialVariantCache maps (base material, alpha mode) to a canonical
// derived material, shared across every instance needing that mode on
// that base material (spec.md §4.5, invariant: reference equality for
// identical inputs).
type MaterialVariantCache struct {
	variants map[VariantKey]MaterialHandle
	isStdSet map[MaterialHandle]bool // which base materials are Standard-family
}

// NewMaterialVariantCache returns an empty cache.
func NewMaterialVariantCache() *MaterialVariantCache {
	return &MaterialVariantCache{
		variants: make(map[VariantKey]MaterialHandle),
		isStdSet: make(map[MaterialHandle]bool),
	}
}

// MarkStandardFamily records that base belongs to the Standard-like shader
// family, so variant lookups for it actually derive a variant rather than
// passing the base through unchanged. Callers (typically the template
// loader) call this once per distinct base material.
func (c *MaterialVariantCache) MarkStandardFamily(base MaterialHandle) {
	c.isStdSet[base] = true
}

// Variant returns the canonical variant material for (base, mode), deriving
// it via derive on first request. For non-Standard shaders the base material is
// returned unchanged (spec.md §4.5). Repeated calls with identical inputs
// return the exact same MaterialHandle (reference equality).
func (c *MaterialVariantCache) Variant(base MaterialHandle, mode AlphaMode, derive func(MaterialHandle, VariantSpec) MaterialHandle) MaterialHandle {
	if !c.isStdSet[base] {
		return base
	}
	key := VariantKey{Base: base, Mode: mode}
	if existing, ok := c.variants[key]; ok {
		return existing
	}
	derived := derive(base, variantTable[mode])
	c.variants[key] = derived
	return derived
}

// Len returns the number of derived variants currently cached.
func (c *MaterialVariantCache) Len() int { return len(c.variants) }
