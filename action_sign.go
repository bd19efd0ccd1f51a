package worldstream

import (
	"context"
	"strings"
)

// SignRasterizer is the out-of-scope text-to-image renderer the "sign"
// verb delegates to (spec.md §4.4, §9): given a fully-resolved spec it
// returns the rendered sign image. SignSpec carries no quad dimensions, so
// the image size is the rasterizer's own choice.
type SignRasterizer interface {
	RasterizeSign(spec SignSpec) (TextureImage, error)
}

// SignSpec is the fully-resolved set of parameters for one "sign" command
// (spec.md §4.4): text plus its layout and color knobs.
type SignSpec struct {
	Text      string
	Color     [4]float32
	BackColor [4]float32
	Align     string // left|center|right
	Scale     float32
	Shadow    bool
	Padding   float32
	HMargin   float32
	VMargin   float32
}

// signTag is the fixed material tag "sign" verbs target (spec.md §4.4
// "sign tag").
const signTag = 100

// signMaxUpscale caps a sign command's "scale" argument at 3 (DESIGN.md
// Open Questions). It is applied to that argument alone: the core runs no
// measure-and-fit pass of the text against the sign's quad.
const signMaxUpscale = 3.0

// applySign implements spec.md §4.4 "sign": restricted to materials
// tagged 100, rasterizes the text off-thread, and assigns the result as
// a white-tinted, transparent main texture.
func (e *Executor) applySign(ctx context.Context, inst *ModelInstance, cmd Command, objectPath, password string) *Pending {
	if e.Sign == nil {
		return nil
	}
	spec := signSpecFromCommand(cmd)

	e.Gate.Begin(inst)
	future := Go(func() (TextureImage, error) {
		return e.Sign.RasterizeSign(spec)
	})
	return &Pending{
		ready: func() bool {
			_, _, ready := future.Poll()
			return ready
		},
		finish: func() {
			defer e.Gate.End(inst)
			img, err, _ := future.Poll()
			if err != nil {
				e.logOnce("sign:"+inst.TemplateID, newError(KindDecodeFailed, "sign", err))
				return
			}
			slot := e.slotFor(inst, signTag)
			slot.bakedMode = AlphaTransparent
			for _, re := range inst.Renderers {
				re.SetColor(1, 1, 1, 1, signTag, true)
				re.SetMainTexture(img, signTag, true)
				e.applyVariant(slot, re, signTag, true, 1)
			}
		},
	}
}

func signSpecFromCommand(cmd Command) SignSpec {
	spec := SignSpec{
		Text:      cmd.Named["text"],
		Color:     [4]float32{1, 1, 1, 1},
		BackColor: [4]float32{0, 0, 0, 0},
		Align:     "center",
		Scale:     1,
		Padding:   4,
		HMargin:   2,
		VMargin:   2,
	}
	if v, ok := cmd.Named["color"]; ok {
		if r, g, b, a, _, ok := ParseColorSpec(v); ok {
			spec.Color = [4]float32{r, g, b, a}
		}
	}
	if v, ok := cmd.Named["bcolor"]; ok {
		if r, g, b, a, _, ok := ParseColorSpec(v); ok {
			spec.BackColor = [4]float32{r, g, b, a}
		}
	}
	if v, ok := cmd.Named["align"]; ok {
		spec.Align = v
	}
	if v, ok := cmd.Named["scale"]; ok {
		if f, ok := firstFloat([]string{v}); ok {
			scale := float32(f)
			if scale > signMaxUpscale {
				scale = signMaxUpscale
			}
			spec.Scale = scale
		}
	}
	if v, ok := cmd.Named["shadow"]; ok {
		if b, ok := parseBoolToken(v); ok {
			spec.Shadow = b
		}
	} else {
		for _, tok := range cmd.Positional {
			if strings.EqualFold(tok, "shadow") {
				spec.Shadow = true
				break
			}
		}
	}
	if v, ok := cmd.Named["pad"]; ok {
		if f, ok := firstFloat([]string{v}); ok {
			spec.Padding = float32(f)
		}
	}
	if v, ok := cmd.Named["margin"]; ok {
		if f, ok := firstFloat([]string{v}); ok {
			spec.HMargin, spec.VMargin = float32(f), float32(f)
		}
	}
	if v, ok := cmd.Named["hmargin"]; ok {
		if f, ok := firstFloat([]string{v}); ok {
			spec.HMargin = float32(f)
		}
	}
	if v, ok := cmd.Named["vmargin"]; ok {
		if f, ok := firstFloat([]string{v}); ok {
			spec.VMargin = float32(f)
		}
	}
	return spec
}
