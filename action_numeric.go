package worldstream

import "strconv"

// NumericRecord is the precomputed, validated form of a pure numeric
// action command (ambient, diffuse, visible, scale, shear — spec.md
// §4.10), consumed by the action-apply loop as a cheap direct call instead
// of going through the full executor dispatch.
type NumericRecord struct {
	Verb  string
	Valid bool

	Scalar float64    // ambient, diffuse
	Bool   bool       // visible
	Vec3   Vec3       // scale (sx,sy,sz)
	Shear  [6]float64 // shear (zPlus,xPlus,yPlus,yMinus,zMinus,xMinus), normalized
}

// PreprocessNumeric parses and clamps cmd's positional arguments into a
// NumericRecord, off the scheduler's critical path (spec.md §4.10). Verbs
// outside the pure-numeric set return Valid=false so the caller falls back
// to the full executor.
func PreprocessNumeric(cmd Command) NumericRecord {
	switch cmd.Verb {
	case "ambient":
		v, ok := firstFloat(cmd.Positional)
		return NumericRecord{Verb: cmd.Verb, Valid: ok, Scalar: v}
	case "diffuse":
		v, ok := firstFloat(cmd.Positional)
		if ok && v < 0 {
			v = 0
		}
		return NumericRecord{Verb: cmd.Verb, Valid: ok, Scalar: v}
	case "visible":
		b, ok := parseBoolToken(firstString(cmd.Positional))
		return NumericRecord{Verb: cmd.Verb, Valid: ok, Bool: b}
	case "scale":
		return NumericRecord{Verb: cmd.Verb, Valid: true, Vec3: parseScale(cmd.Positional)}
	case "shear":
		vals, ok := parseShear(cmd.Positional)
		return NumericRecord{Verb: cmd.Verb, Valid: ok, Shear: vals}
	default:
		return NumericRecord{Verb: cmd.Verb, Valid: false}
	}
}

func firstFloat(tokens []string) (float64, bool) {
	if len(tokens) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(tokens[0], 64)
	return v, err == nil
}

func firstString(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

func parseBoolToken(s string) (bool, bool) {
	switch s {
	case "yes", "true", "1", "on":
		return true, true
	case "no", "false", "0", "off":
		return false, true
	default:
		return false, false
	}
}

const minScaleComponent = 0.1

// parseScale implements spec.md §4.4 "scale <s>" / "scale <sx> <sy>" /
// "scale <sx> <sy> <sz>", clamping each component to the 0.1 floor.
func parseScale(tokens []string) Vec3 {
	floats := make([]float64, 0, 3)
	for _, t := range tokens {
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			floats = append(floats, v)
		}
	}
	var sx, sy, sz float64
	switch len(floats) {
	case 1:
		sx, sy, sz = floats[0], floats[0], floats[0]
	case 2:
		sx, sy, sz = floats[0], floats[1], 1
	case 3:
		sx, sy, sz = floats[0], floats[1], floats[2]
	default:
		sx, sy, sz = 1, 1, 1
	}
	return Vec3{X: clampFloor(sx, minScaleComponent), Y: clampFloor(sy, minScaleComponent), Z: clampFloor(sz, minScaleComponent)}
}

func clampFloor(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}

const shearLimit = 20.0

// parseShear implements spec.md §4.4 "shear": six values each clamped to
// [-20,20] then normalized by dividing by 20, in order
// (zPlus,xPlus,yPlus,yMinus,zMinus,xMinus).
func parseShear(tokens []string) ([6]float64, bool) {
	var out [6]float64
	if len(tokens) < 6 {
		return out, false
	}
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return out, false
		}
		if v > shearLimit {
			v = shearLimit
		} else if v < -shearLimit {
			v = -shearLimit
		}
		out[i] = v / shearLimit
	}
	return out, true
}

// ApplyShear computes the spec.md §4.4 affine shear for a local-space
// point, given the normalized six-component shear record:
//
//	x' = x + xPlus*z - xMinus*y
//	y' = y + yPlus*x - yMinus*z
//	z' = z + zPlus*y - zMinus*x
func ApplyShear(shear [6]float64, p Vec3) Vec3 {
	zPlus, xPlus, yPlus, yMinus, zMinus, xMinus := shear[0], shear[1], shear[2], shear[3], shear[4], shear[5]
	return Vec3{
		X: p.X + xPlus*p.Z - xMinus*p.Y,
		Y: p.Y + yPlus*p.X - yMinus*p.Z,
		Z: p.Z + zPlus*p.Y - zMinus*p.X,
	}
}
