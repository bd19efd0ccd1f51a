package worldstream

import (
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ParseColorSpec parses a `color` verb's <spec> argument (spec.md §4.4):
// hex (#RRGGBB, #RRGGBBAA, bare 6/8 hex), a named HTML color, or a
// comma/space-separated R,G,B[,A] list. If any list component is greater
// than 1, the whole list is treated as 0-255 range. hasAlpha reports
// whether spec carried an explicit alpha component (8-digit hex, or a
// 4-value list) — spec.md §8 S2 requires a color spec with no alpha of
// its own to leave an existing opacity override untouched rather than
// resetting it to 1. On failure ok is false and callers fall back to
// white (spec.md §4.4 "Failure semantics").
func ParseColorSpec(spec string) (r, g, b, a float32, hasAlpha, ok bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 1, 1, 1, 1, false, false
	}

	if hexBody, isHex := asHex(spec); isHex {
		return parseHexColor(hexBody)
	}

	if named, isNamed := colornames.Map[strings.ToLower(spec)]; isNamed {
		return float32(named.R) / 255, float32(named.G) / 255, float32(named.B) / 255, 1, false, true
	}

	if r, g, b, a, hasAlpha, ok := parseListColor(spec); ok {
		return r, g, b, a, hasAlpha, true
	}

	return 1, 1, 1, 1, false, false
}

func asHex(spec string) (body string, ok bool) {
	body = strings.TrimPrefix(spec, "#")
	if len(body) != 6 && len(body) != 8 {
		return "", false
	}
	for _, c := range body {
		if !isHexDigit(c) {
			return "", false
		}
	}
	return body, true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseHexColor uses go-colorful for the RGB portion (6 hex digits) and
// handles the optional alpha pair itself, since go-colorful's color model
// carries no alpha channel.
func parseHexColor(body string) (r, g, b, a float32, hasAlpha, ok bool) {
	rgb, err := colorful.Hex("#" + body[:6])
	if err != nil {
		return 1, 1, 1, 1, false, false
	}
	a = 1
	if len(body) == 8 {
		av, perr := strconv.ParseUint(body[6:8], 16, 8)
		if perr != nil {
			return 1, 1, 1, 1, false, false
		}
		a = float32(av) / 255
		hasAlpha = true
	}
	return float32(rgb.R), float32(rgb.G), float32(rgb.B), a, hasAlpha, true
}

// parseListColor parses "R,G,B[,A]" or "R G B [A]". If any component is
// greater than 1 the whole list is interpreted as 0-255 range.
func parseListColor(spec string) (r, g, b, a float32, hasAlpha, ok bool) {
	spec = strings.ReplaceAll(spec, ",", " ")
	fields := strings.Fields(spec)
	if len(fields) != 3 && len(fields) != 4 {
		return 1, 1, 1, 1, false, false
	}
	vals := make([]float64, len(fields))
	maxVal := 0.0
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 1, 1, 1, 1, false, false
		}
		vals[i] = v
		if v > maxVal {
			maxVal = v
		}
	}
	scale := 1.0
	if maxVal > 1 {
		scale = 1.0 / 255.0
	}
	r = float32(vals[0] * scale)
	g = float32(vals[1] * scale)
	b = float32(vals[2] * scale)
	a = 1
	if len(vals) == 4 {
		a = float32(vals[3] * scale)
		hasAlpha = true
	}
	return r, g, b, a, hasAlpha, true
}
