package worldstream

import (
	"context"
	"fmt"
)

// noTagKey is the materialSlot map key used for a command with no tag
// argument (spec.md §4.4: "targets every material").
const noTagKey = -1

func tagKey(tag int, ok bool) int {
	if !ok {
		return noTagKey
	}
	return tag
}

// materialSlot is the executor's per-(instance, tag) bookkeeping for
// alpha-mode switching (spec.md §4.5): bakedMode is the mode a texture
// verb established from the file extension, and mode/alpha are the
// currently-applied variant and its driving alpha value.
type materialSlot struct {
	base      MaterialHandle
	baseKnown bool
	bakedMode AlphaMode
	mode      AlphaMode
	alpha     float32
}

// Pending is an in-flight asynchronous action (texture, normalmap, sign).
// The scheduler polls Ready each tick; once true it calls Finish exactly
// once to apply the outcome and release the action gate (spec.md §5).
type Pending struct {
	ready  func() bool
	finish func()
}

// Ready reports whether the underlying download/decode has completed.
func (p *Pending) Ready() bool { return p.ready() }

// Finish applies the completed action's effect. Must be called exactly
// once, only after Ready reports true.
func (p *Pending) Finish() { p.finish() }

// Executor applies one parsed action command to one instance, dispatching
// on the verb (spec.md §4.4). Dependencies are injected so tests can
// substitute fakes for the renderer-side and network-side collaborators
// (spec.md §7 "components fail independently").
type Executor struct {
	Downloader AssetDownloader
	Textures   *TextureCache
	Materials  *MaterialVariantCache
	Store      InstanceStore
	Gate       *ActionGate
	Sign       SignRasterizer // nil disables the sign verb

	// DeriveVariant asks the out-of-scope renderer to clone base with the
	// given alpha-mode configuration. Required whenever base belongs to
	// the Standard-family (MaterialVariantCache.MarkStandardFamily); for
	// any other base MaterialVariantCache.Variant never calls it.
	DeriveVariant func(base MaterialHandle, spec VariantSpec) MaterialHandle

	// Log receives each action failure once per distinct failure key (the
	// verb plus the texture path/name or the template id, as built by each
	// verb's logOnce call) (spec.md §7 "log once, not once per frame").
	Log func(err error)

	slots  map[InstanceID]map[int]*materialSlot
	logged map[string]bool
	fx     map[InstanceID]*lightFx
}

// NewExecutor wires an Executor from its collaborators.
func NewExecutor(downloader AssetDownloader, textures *TextureCache, materials *MaterialVariantCache, store InstanceStore, gate *ActionGate, deriveVariant func(MaterialHandle, VariantSpec) MaterialHandle) *Executor {
	return &Executor{
		Downloader:    downloader,
		Textures:      textures,
		Materials:     materials,
		Store:         store,
		Gate:          gate,
		DeriveVariant: deriveVariant,
		slots:         make(map[InstanceID]map[int]*materialSlot),
		logged:        make(map[string]bool),
	}
}

func (e *Executor) slotFor(inst *ModelInstance, key int) *materialSlot {
	byTag, ok := e.slots[inst.ID]
	if !ok {
		byTag = make(map[int]*materialSlot)
		e.slots[inst.ID] = byTag
	}
	slot, ok := byTag[key]
	if !ok {
		slot = &materialSlot{}
		byTag[key] = slot
	}
	return slot
}

// Forget releases an instance's material-slot and light-fx bookkeeping,
// called when an instance is unloaded or returned to the pool (spec.md
// §4.6).
func (e *Executor) Forget(id InstanceID) {
	delete(e.slots, id)
	delete(e.fx, id)
}

func (e *Executor) logOnce(op string, err error) {
	if err == nil || e.logged[op] {
		return
	}
	e.logged[op] = true
	if e.Log != nil {
		e.Log(err)
	}
}

// Apply dispatches cmd against inst. Synchronous verbs (color, opacity,
// ambient, diffuse, visible, scale, shear, light) take effect before Apply
// returns and it returns nil. Asynchronous verbs (texture, normalmap,
// sign) start their download under the action gate and return a Pending
// the caller must poll to completion (spec.md §5).
func (e *Executor) Apply(ctx context.Context, inst *ModelInstance, cmd Command, objectPath, password string) *Pending {
	switch cmd.Verb {
	case "texture":
		return e.applyTexture(ctx, inst, cmd, objectPath, password)
	case "normalmap":
		return e.applyNormalMap(ctx, inst, cmd, objectPath, password)
	case "sign":
		return e.applySign(ctx, inst, cmd, objectPath, password)
	case "color":
		e.applyColor(inst, cmd)
	case "opacity":
		e.applyOpacity(inst, cmd)
	case "ambient":
		rec := PreprocessNumeric(cmd)
		if rec.Valid {
			e.applyAmbient(inst, cmd, rec)
		}
	case "diffuse":
		rec := PreprocessNumeric(cmd)
		if rec.Valid {
			e.applyDiffuse(inst, cmd, rec)
		}
	case "visible":
		rec := PreprocessNumeric(cmd)
		if rec.Valid {
			e.applyVisible(inst, rec)
		}
	case "scale":
		e.applyScale(inst, PreprocessNumeric(cmd))
	case "shear":
		rec := PreprocessNumeric(cmd)
		if rec.Valid {
			e.applyShearCmd(inst, rec)
		}
	case "light":
		e.applyLight(inst, cmd)
	}
	return nil
}

// applyVariant picks the mode a material group should be in given the slot's
// texture-established baseline and the alpha value now in effect: below 1
// always forces Transparent; at 1 it reverts to whatever the texture (or,
// absent one, Opaque) established (spec.md §4.5).
func (e *Executor) applyVariant(slot *materialSlot, r Renderer, tag int, hasTag bool, alpha float32) {
	slot.alpha = alpha
	target := slot.bakedMode
	if alpha < 1 {
		target = AlphaTransparent
	}
	if !slot.baseKnown {
		base, ok := r.Materials(tag, hasTag)
		if !ok {
			return
		}
		slot.base = base
		slot.baseKnown = true
	}
	if target == slot.mode {
		return
	}
	slot.mode = target
	variant := e.Materials.Variant(slot.base, target, e.DeriveVariant)
	r.SetMaterial(variant, tag, hasTag)
}

func (e *Executor) applyColor(inst *ModelInstance, cmd Command) {
	spec := firstString(cmd.Positional)
	r, g, b, a, hasAlpha, ok := ParseColorSpec(spec)
	if !ok {
		e.logOnce("color:"+inst.TemplateID, newError(KindParseError, "color", fmt.Errorf("invalid color spec %q", spec)))
	}
	tint := false
	for _, tok := range cmd.Positional {
		if tok == "tint" {
			tint = true
		}
	}
	tag, hasTag := cmd.Tag()
	st, has := e.Store.Get(inst.ID)
	if !has {
		return
	}
	// spec.md §8 S2: a color spec with no alpha of its own (e.g. a bare
	// "255,0,0" or a named color) must not clobber an opacity already in
	// effect from a prior "opacity" command.
	if hasAlpha {
		st.Color.Opacity = a
		st.Color.OpacitySet = true
	} else if st.Color.OpacitySet {
		a = st.Color.Opacity
	} else {
		a = 1
		st.Color.Opacity = a
	}
	st.Color.HasOverride = true
	st.Color.RGB = [3]float32{r, g, b}
	st.Color.Sequence++

	for _, re := range inst.Renderers {
		re.SetColor(r, g, b, a, tag, hasTag)
		if !tint {
			re.ClearTexture(tag, hasTag)
		}
		e.applyVariant(e.slotFor(inst, tagKey(tag, hasTag)), re, tag, hasTag, a)
	}
}

func (e *Executor) applyOpacity(inst *ModelInstance, cmd Command) {
	v, ok := firstFloat(cmd.Positional)
	if !ok {
		return
	}
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	alpha := float32(v)
	tag, hasTag := cmd.Tag()
	st, has := e.Store.Get(inst.ID)
	if !has {
		return
	}
	st.Color.Opacity = alpha
	st.Color.OpacitySet = true
	st.Color.Sequence++
	r, g, b := float32(1), float32(1), float32(1)
	if st.Color.HasOverride {
		r, g, b = st.Color.RGB[0], st.Color.RGB[1], st.Color.RGB[2]
	}

	for _, re := range inst.Renderers {
		re.SetColor(r, g, b, alpha, tag, hasTag)
		e.applyVariant(e.slotFor(inst, tagKey(tag, hasTag)), re, tag, hasTag, alpha)
	}
}

func (e *Executor) applyAmbient(inst *ModelInstance, cmd Command, rec NumericRecord) {
	tag, hasTag := cmd.Tag()
	for _, re := range inst.Renderers {
		re.SetAmbient(float32(rec.Scalar), tag, hasTag)
	}
}

func (e *Executor) applyDiffuse(inst *ModelInstance, cmd Command, rec NumericRecord) {
	tag, hasTag := cmd.Tag()
	for _, re := range inst.Renderers {
		re.SetDiffuse(float32(rec.Scalar), tag, hasTag)
	}
}

func (e *Executor) applyVisible(inst *ModelInstance, rec NumericRecord) {
	desired := DefaultDesiredFlags()
	if st, ok := e.Store.Get(inst.ID); ok {
		desired = st.Desired
	}
	desired.Visible = rec.Bool
	e.Gate.SetDesired(inst, desired)
}

func (e *Executor) applyScale(inst *ModelInstance, rec NumericRecord) {
	base := inst.BaseScale
	if base == (Vec3{}) {
		base = Vec3{X: 1, Y: 1, Z: 1}
	}
	inst.Root.SetLocalScale(Vec3{X: base.X * rec.Vec3.X, Y: base.Y * rec.Vec3.Y, Z: base.Z * rec.Vec3.Z})
}

func (e *Executor) applyShearCmd(inst *ModelInstance, rec NumericRecord) {
	for _, re := range inst.Renderers {
		re.SetShear(rec.Shear)
	}
}

// applyTexture implements spec.md §4.4 "texture": try each candidate
// filename (texturecache.go's extension list) in order against the
// downloader until one decodes, then assign it as the main texture and
// pick an initial alpha-mode variant from the winning extension (.png
// implies Cutout, anything else Opaque) unless a later color/opacity
// command has already moved the slot into Transparent.
func (e *Executor) applyTexture(ctx context.Context, inst *ModelInstance, cmd Command, objectPath, password string) *Pending {
	name := firstString(cmd.Positional)
	tag, hasTag := cmd.Tag()
	if name == "" {
		return nil
	}
	if cached, ok := e.Textures.Get(TextureKey{ObjectPath: objectPath, Name: name}); ok {
		e.finishTexture(inst, tag, hasTag, name, cached)
		return nil
	}

	e.Gate.Begin(inst)
	st, _ := e.Store.Get(inst.ID)
	seq := uint32(0)
	if st != nil {
		seq = st.Color.Sequence
	}
	future := Go(func() (textureFetch, error) {
		return e.fetchTexture(ctx, objectPath, password, name)
	})
	return &Pending{
		ready: func() bool {
			_, _, ready := future.Poll()
			return ready
		},
		finish: func() {
			defer e.Gate.End(inst)
			outcome, err, _ := future.Poll()
			if err != nil {
				e.logOnce("texture:"+objectPath+"/"+name, newError(KindAssetNotFound, "texture", err))
				return
			}
			st, ok := e.Store.Get(inst.ID)
			if ok && st.Color.Sequence != seq {
				return
			}
			e.Textures.Put(TextureKey{ObjectPath: objectPath, Name: outcome.name}, outcome.img)
			e.finishTexture(inst, tag, hasTag, outcome.name, outcome.img)
		},
	}
}

func (e *Executor) finishTexture(inst *ModelInstance, tag int, hasTag bool, name string, img TextureImage) {
	bakedMode := AlphaOpaque
	if hasPNGExtension(name) {
		bakedMode = AlphaCutout
	}
	slot := e.slotFor(inst, tagKey(tag, hasTag))
	slot.bakedMode = bakedMode
	for _, re := range inst.Renderers {
		re.SetMainTexture(img, tag, hasTag)
		e.applyVariant(slot, re, tag, hasTag, slot.alphaOrOne())
	}
}

func (s *materialSlot) alphaOrOne() float32 {
	if s.alpha == 0 && !s.baseKnown {
		return 1
	}
	return s.alpha
}

func hasPNGExtension(name string) bool {
	return len(name) >= 4 && (name[len(name)-4:] == ".png" || name[len(name)-4:] == ".PNG")
}

// applyNormalMap implements spec.md §4.4 "normalmap": fetch and decode,
// then assign the bump-map slot. It never touches alpha-mode (normal maps
// do not instance materials — DESIGN.md Open Questions).
func (e *Executor) applyNormalMap(ctx context.Context, inst *ModelInstance, cmd Command, objectPath, password string) *Pending {
	name := firstString(cmd.Positional)
	if name == "" {
		return nil
	}
	if cached, ok := e.Textures.Get(TextureKey{ObjectPath: objectPath, Name: name}); ok {
		for _, re := range inst.Renderers {
			re.SetNormalMap(cached)
		}
		return nil
	}

	e.Gate.Begin(inst)
	future := Go(func() (textureFetch, error) {
		return e.fetchTexture(ctx, objectPath, password, name)
	})
	return &Pending{
		ready: func() bool {
			_, _, ready := future.Poll()
			return ready
		},
		finish: func() {
			defer e.Gate.End(inst)
			outcome, err, _ := future.Poll()
			if err != nil {
				e.logOnce("normalmap:"+objectPath+"/"+name, newError(KindAssetNotFound, "normalmap", err))
				return
			}
			e.Textures.Put(TextureKey{ObjectPath: objectPath, Name: outcome.name}, outcome.img)
			for _, re := range inst.Renderers {
				re.SetNormalMap(outcome.img)
			}
		},
	}
}

// textureFetch is the outcome of a successful candidate-name download
// loop: the image plus the candidate filename that actually resolved.
type textureFetch struct {
	img  TextureImage
	name string
}

// fetchTexture tries CandidateNames(name) against the downloader in order,
// returning the first one that downloads and decodes successfully
// (spec.md §4.4). Runs on the Future's goroutine, never on the scheduler
// thread.
func (e *Executor) fetchTexture(ctx context.Context, objectPath, password, name string) (textureFetch, error) {
	var lastErr error
	for _, candidate := range CandidateNames(name) {
		data, err := e.Downloader.Download(ctx, objectPath, candidate, password)
		if err != nil {
			lastErr = err
			continue
		}
		img, err := DecodeTexture(candidate, data)
		if err != nil {
			lastErr = err
			continue
		}
		return textureFetch{img: img, name: candidate}, nil
	}
	if lastErr == nil {
		lastErr = ErrUnsupportedFormat
	}
	return textureFetch{}, newError(KindAssetNotFound, "texture:"+name, lastErr)
}
