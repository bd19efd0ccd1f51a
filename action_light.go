package worldstream

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// LightRenderer is the optional capability a Renderer may additionally
// implement when attached to a light component (spec.md §4.4 "light").
// The verb no-ops on a renderer set that implements none of its
// renderers as a LightRenderer.
type LightRenderer interface {
	SetLightColor(r, g, b float32)
	SetLightBrightness(v float32)
	SetLightRadius(v float32)
	SetLightSpot(isSpot bool, angleRad float64)
	SetLightMaxDistance(v float32)
}

// lightFx is one running light-effect loop, advanced by TickLights every
// frame until a later light command replaces it or the instance unloads
// (spec.md §4.4 "fx").
type lightFx struct {
	renderer       LightRenderer
	kind           string
	tween          *gween.Tween
	period         float32
	baseBrightness float32
}

func newLightTween(kind string, period float32) *gween.Tween {
	switch kind {
	case "fadein":
		return gween.New(0, 1, period, ease.Linear)
	case "fadeout":
		return gween.New(1, 0, period, ease.Linear)
	case "blink":
		return gween.New(0, 1, period/2, ease.Linear)
	case "pulse":
		return gween.New(0.4, 1, period/2, ease.InOutSine)
	case "fire":
		return gween.New(0.6, 1, period/4, ease.InOutSine)
	case "rainbow":
		return gween.New(0, 1, period, ease.Linear)
	default:
		return gween.New(1, 1, period, ease.Linear)
	}
}

// applyLight implements spec.md §4.4 "light": color, radius, brightness,
// type (spot|point), angle, and maxdist apply immediately to the first
// LightRenderer found among the instance's renderers; fx replaces any
// running effect loop with a new one.
func (e *Executor) applyLight(inst *ModelInstance, cmd Command) {
	var target LightRenderer
	for _, re := range inst.Renderers {
		if lr, ok := re.(LightRenderer); ok {
			target = lr
			break
		}
	}
	if target == nil {
		return
	}

	r, g, b := float32(1), float32(1), float32(1)
	if spec, has := cmd.Named["color"]; has {
		if pr, pg, pb, _, _, ok := ParseColorSpec(spec); ok {
			r, g, b = pr, pg, pb
		}
	}
	brightness := parseNamedFloat(cmd, "brightness", 1)
	radius := parseNamedFloat(cmd, "radius", 10)
	maxDist := parseNamedFloat(cmd, "maxdist", 0)
	isSpot := cmd.Named["type"] == "spot"
	angle := parseNamedFloat(cmd, "angle", 45)

	target.SetLightColor(r, g, b)
	target.SetLightBrightness(brightness)
	target.SetLightRadius(radius)
	target.SetLightSpot(isSpot, float64(angle)*math.Pi/180)
	if maxDist > 0 {
		target.SetLightMaxDistance(maxDist)
	}

	if e.fx == nil {
		e.fx = make(map[InstanceID]*lightFx)
	}
	fxKind, hasFx := cmd.Named["fx"]
	if !hasFx {
		delete(e.fx, inst.ID)
		return
	}
	period := parseNamedFloat(cmd, "time", 1)
	if period <= 0 {
		period = 1
	}
	e.fx[inst.ID] = &lightFx{
		renderer:       target,
		kind:           fxKind,
		tween:          newLightTween(fxKind, period),
		period:         period,
		baseBrightness: brightness,
	}
}

func parseNamedFloat(cmd Command, name string, fallback float32) float32 {
	v, ok := cmd.Named[name]
	if !ok {
		return fallback
	}
	f, ok := firstFloat([]string{v})
	if !ok {
		return fallback
	}
	return float32(f)
}

// TickLights advances every running light-fx loop by dt seconds. Called
// once per frame by the orchestrator (spec.md §4.9).
func (e *Executor) TickLights(dt float32) {
	for id, fx := range e.fx {
		v, finished := fx.tween.Update(dt)
		if fx.kind == "rainbow" {
			cr, cg, cb := hsvToRGB(float64(v)*360, 1, 1)
			fx.renderer.SetLightColor(cr, cg, cb)
		} else {
			fx.renderer.SetLightBrightness(fx.baseBrightness * v)
		}
		if !finished {
			continue
		}
		switch fx.kind {
		case "fadein", "fadeout":
			delete(e.fx, id)
		default:
			fx.tween = newLightTween(fx.kind, fx.period)
		}
	}
}

// hsvToRGB converts a hue in [0,360) at full saturation/value to RGB,
// used by the rainbow light effect.
func hsvToRGB(h, s, v float64) (r, g, b float32) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var rp, gp, bp float64
	switch {
	case h < 60:
		rp, gp, bp = c, x, 0
	case h < 120:
		rp, gp, bp = x, c, 0
	case h < 180:
		rp, gp, bp = 0, c, x
	case h < 240:
		rp, gp, bp = 0, x, c
	case h < 300:
		rp, gp, bp = x, 0, c
	default:
		rp, gp, bp = c, 0, x
	}
	return float32(rp + m), float32(gp + m), float32(bp + m)
}
