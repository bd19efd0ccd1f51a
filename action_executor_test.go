package worldstream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

type fakeTransform struct {
	scale Vec3
}

func (t *fakeTransform) SetParent(Transform)         {}
func (t *fakeTransform) SetLocalPosition(Vec3)       {}
func (t *fakeTransform) SetLocalRotation(Quat)       {}
func (t *fakeTransform) SetLocalScale(s Vec3)        { t.scale = s }
func (t *fakeTransform) LocalScale() Vec3            { return t.scale }

type fakeRenderer struct {
	enabled  bool
	collider bool
	material MaterialHandle
	baseMat  MaterialHandle
	mainTex  TextureImage
	normal   TextureImage
	r, g, b, a float32
	cleared  bool
	ambient  float32
	diffuse  float32
	shear    [6]float64
}

func newFakeRenderer(base MaterialHandle) *fakeRenderer {
	return &fakeRenderer{material: base, baseMat: base, r: 1, g: 1, b: 1, a: 1}
}

func (r *fakeRenderer) SetEnabled(enabled bool)         { r.enabled = enabled }
func (r *fakeRenderer) SetColliderEnabled(enabled bool) { r.collider = enabled }
func (r *fakeRenderer) SetMaterial(mat MaterialHandle, wantTag int, ok bool) {
	r.material = mat
}
func (r *fakeRenderer) SetMainTexture(image TextureImage, wantTag int, ok bool) { r.mainTex = image }
func (r *fakeRenderer) SetNormalMap(image TextureImage)                        { r.normal = image }
func (r *fakeRenderer) SetColor(red, green, blue, alpha float32, wantTag int, ok bool) {
	r.r, r.g, r.b, r.a = red, green, blue, alpha
}
func (r *fakeRenderer) ClearTexture(wantTag int, ok bool)     { r.cleared = true; r.mainTex = nil }
func (r *fakeRenderer) Materials(wantTag int, ok bool) (MaterialHandle, bool) {
	return r.baseMat, true
}
func (r *fakeRenderer) SetAmbient(v float32, wantTag int, ok bool) { r.ambient = v }
func (r *fakeRenderer) SetDiffuse(v float32, wantTag int, ok bool) { r.diffuse = v }
func (r *fakeRenderer) SetShear(coeffs [6]float64)                 { r.shear = coeffs }

type fakeDownloader struct {
	data map[string][]byte
}

func (d *fakeDownloader) Download(ctx context.Context, objectPath, filename, password string) ([]byte, error) {
	data, ok := d.data[filename]
	if !ok {
		return nil, fmt.Errorf("no such asset: %s", filename)
	}
	return data, nil
}

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func fakeDeriveVariant(base MaterialHandle, spec VariantSpec) MaterialHandle {
	return fmt.Sprintf("%v#%d", base, spec.Mode)
}

func newTestExecutor(t *testing.T, downloader AssetDownloader) (*Executor, InstanceStore, *ActionGate) {
	t.Helper()
	store := NewMapInstanceStore()
	gate := NewActionGate(store)
	materials := NewMaterialVariantCache()
	materials.MarkStandardFamily("std")
	exec := NewExecutor(downloader, NewTextureCache(64), materials, store, gate, fakeDeriveVariant)
	return exec, store, gate
}

func waitPending(t *testing.T, p *Pending) {
	t.Helper()
	if p == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	for !p.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("pending action never became ready")
		}
	}
	p.Finish()
}

// TestExecutorTextureTagCutout is spec.md §8 S1: a "texture leaf.png
// tag=2" command on a Standard-family material switches that tag's
// variant to Cutout (the .png extension implies an alpha-cutout leaf).
func TestExecutorTextureTagCutout(t *testing.T) {
	png := onePixelPNG(t)
	exec, store, _ := newTestExecutor(t, &fakeDownloader{data: map[string][]byte{"leaf.png": png}})
	store.New(1, "tree")
	inst := &ModelInstance{ID: 1, Renderers: []Renderer{newFakeRenderer("std")}}

	cmd := Command{Verb: "texture", Positional: []string{"leaf.png"}, Named: map[string]string{"tag": "2"}}
	pending := exec.Apply(context.Background(), inst, cmd, "obj/tree", "")
	waitPending(t, pending)

	re := inst.Renderers[0].(*fakeRenderer)
	if re.mainTex == nil {
		t.Fatal("expected main texture to be set")
	}
	want := fakeDeriveVariant("std", variantTable[AlphaCutout])
	if re.material != want {
		t.Fatalf("material = %v, want %v", re.material, want)
	}
}

// TestExecutorOpacityThenColorTransparent is spec.md §8 S2
// ("create opacity 0.5; color 255,0,0"): a color spec with no alpha
// component of its own must not clobber an opacity already in effect, so
// the material stays Transparent at the prior opacity.
func TestExecutorOpacityThenColorTransparent(t *testing.T) {
	exec, store, _ := newTestExecutor(t, &fakeDownloader{})
	store.New(1, "sign")
	re := newFakeRenderer("std")
	inst := &ModelInstance{ID: 1, Renderers: []Renderer{re}}

	exec.Apply(context.Background(), inst, Command{Verb: "opacity", Positional: []string{"0.5"}}, "obj/sign", "")
	wantTransparent := fakeDeriveVariant("std", variantTable[AlphaTransparent])
	if re.material != wantTransparent {
		t.Fatalf("material after opacity 0.5 = %v, want %v", re.material, wantTransparent)
	}
	if re.a < 0.49 || re.a > 0.51 {
		t.Fatalf("alpha = %v, want ~0.5", re.a)
	}

	exec.Apply(context.Background(), inst, Command{Verb: "color", Positional: []string{"white"}}, "obj/sign", "")
	if re.a < 0.49 || re.a > 0.51 {
		t.Fatalf("alpha after color white (no alpha component) = %v, want it to stay ~0.5", re.a)
	}
	if re.material != wantTransparent {
		t.Fatalf("material after color white = %v, want %v (opacity override preserved)", re.material, wantTransparent)
	}

	exec.Apply(context.Background(), inst, Command{Verb: "color", Positional: []string{"255,0,0,255"}}, "obj/sign", "")
	if re.a != 1 {
		t.Fatalf("alpha after color with explicit alpha = %v, want 1", re.a)
	}
	wantOpaque := fakeDeriveVariant("std", variantTable[AlphaOpaque])
	if re.material != wantOpaque {
		t.Fatalf("material after color with explicit alpha = %v, want %v", re.material, wantOpaque)
	}
}

// TestActionGateHidesDuringPendingTexture is spec.md §8 item 5: the
// renderer and collider stay disabled for the whole span an asynchronous
// action is pending, and are restored exactly when it completes.
func TestActionGateHidesDuringPendingTexture(t *testing.T) {
	png := onePixelPNG(t)
	exec, store, gate := newTestExecutor(t, &fakeDownloader{data: map[string][]byte{"bark.png": png}})
	store.New(1, "tree")
	re := newFakeRenderer("std")
	inst := &ModelInstance{ID: 1, Renderers: []Renderer{re}}
	gate.SetDesired(inst, DefaultDesiredFlags())
	re.enabled = true
	re.collider = true

	pending := exec.Apply(context.Background(), inst, Command{Verb: "texture", Positional: []string{"bark.png"}}, "obj/tree", "")
	if pending == nil {
		t.Fatal("expected a pending texture action")
	}
	if re.enabled || re.collider {
		t.Fatal("renderer should be disabled while the action is pending")
	}
	waitPending(t, pending)
	if !re.enabled || !re.collider {
		t.Fatal("renderer should be restored once the pending action completes")
	}
}

func TestExecutorScaleMultipliesBaseScale(t *testing.T) {
	exec, store, _ := newTestExecutor(t, &fakeDownloader{})
	store.New(1, "box")
	transform := &fakeTransform{}
	inst := &ModelInstance{ID: 1, Root: transform, BaseScale: Vec3{X: 2, Y: 2, Z: 2}}

	exec.Apply(context.Background(), inst, Command{Verb: "scale", Positional: []string{"0.5"}}, "obj/box", "")
	if transform.scale != (Vec3{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("scale = %+v, want (1,1,1)", transform.scale)
	}
}

func TestExecutorVisibleUpdatesDesiredImmediatelyWhenIdle(t *testing.T) {
	exec, store, gate := newTestExecutor(t, &fakeDownloader{})
	store.New(1, "box")
	re := newFakeRenderer("std")
	inst := &ModelInstance{ID: 1, Renderers: []Renderer{re}}
	gate.SetDesired(inst, DefaultDesiredFlags())

	exec.Apply(context.Background(), inst, Command{Verb: "visible", Positional: []string{"false"}}, "obj/box", "")
	if re.enabled {
		t.Fatal("expected renderer disabled after visible false")
	}
}
