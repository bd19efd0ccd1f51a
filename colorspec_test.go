package worldstream

import (
	"context"
	"testing"
)

func TestParseColorSpecHex6(t *testing.T) {
	r, g, b, a, hasAlpha, ok := ParseColorSpec("#FF0000")
	if !ok || r != 1 || g != 0 || b != 0 || a != 1 || hasAlpha {
		t.Fatalf("got (%v,%v,%v,%v,%v,%v)", r, g, b, a, hasAlpha, ok)
	}
}

func TestParseColorSpecHex8Alpha(t *testing.T) {
	_, _, _, a, hasAlpha, ok := ParseColorSpec("#FF000080")
	if !ok {
		t.Fatal("expected ok")
	}
	if !hasAlpha {
		t.Fatal("expected hasAlpha for an 8-digit hex spec")
	}
	if a < 0.49 || a > 0.51 {
		t.Fatalf("a = %v, want ~0.5", a)
	}
}

func TestParseColorSpecBareHex(t *testing.T) {
	r, g, b, _, _, ok := ParseColorSpec("00FF00")
	if !ok || g != 1 || r != 0 || b != 0 {
		t.Fatalf("got (%v,%v,%v,%v)", r, g, b, ok)
	}
}

func TestParseColorSpecNamed(t *testing.T) {
	r, g, b, a, hasAlpha, ok := ParseColorSpec("red")
	if !ok || r != 1 || g != 0 || b != 0 || a != 1 || hasAlpha {
		t.Fatalf("got (%v,%v,%v,%v,%v,%v)", r, g, b, a, hasAlpha, ok)
	}
}

func TestParseColorSpecList01Range(t *testing.T) {
	r, g, b, a, hasAlpha, ok := ParseColorSpec("1,0,0")
	if !ok || r != 1 || g != 0 || b != 0 || a != 1 || hasAlpha {
		t.Fatalf("got (%v,%v,%v,%v,%v,%v)", r, g, b, a, hasAlpha, ok)
	}
}

func TestParseColorSpecList255Range(t *testing.T) {
	r, g, b, _, hasAlpha, ok := ParseColorSpec("255,0,0")
	if !ok || r != 1 || g != 0 || b != 0 || hasAlpha {
		t.Fatalf("got (%v,%v,%v,%v)", r, g, b, ok)
	}
}

func TestParseColorSpecSpaceSeparated(t *testing.T) {
	r, g, b, _, _, ok := ParseColorSpec("255 0 0")
	if !ok || r != 1 || g != 0 || b != 0 {
		t.Fatalf("got (%v,%v,%v,%v)", r, g, b, ok)
	}
}

func TestParseColorSpecListWithAlpha(t *testing.T) {
	_, _, _, a, hasAlpha, ok := ParseColorSpec("255,0,0,128")
	if !ok {
		t.Fatal("expected ok")
	}
	if !hasAlpha {
		t.Fatal("expected hasAlpha for a 4-component list")
	}
	if a < 0.49 || a > 0.51 {
		t.Fatalf("a = %v, want ~0.5", a)
	}
}

func TestParseColorSpecInvalidFallsBack(t *testing.T) {
	_, _, _, _, _, ok := ParseColorSpec("not-a-color")
	if ok {
		t.Fatal("expected ok=false for invalid spec")
	}
}

// TestColorThenColorTintIdempotence is spec.md §8: "color red" then "color
// red tint" keeps the same color, differing only in whether the texture is
// cleared.
func TestColorThenColorTintIdempotence(t *testing.T) {
	r1, g1, b1, _, _, _ := ParseColorSpec("red")
	r2, g2, b2, _, _, _ := ParseColorSpec("red")
	if r1 != r2 || g1 != g2 || b1 != b2 {
		t.Fatal("color red should parse identically regardless of tint flag")
	}

	exec, store, _ := newTestExecutor(t, &fakeDownloader{})
	store.New(1, "box")
	re := newFakeRenderer("std")
	inst := &ModelInstance{ID: 1, Renderers: []Renderer{re}}

	re.mainTex = "tex"
	exec.Apply(context.Background(), inst, Command{Verb: "color", Positional: []string{"red"}}, "obj/box", "")
	if !re.cleared || re.mainTex != nil {
		t.Fatal("color red without tint should clear the texture")
	}
	plainR, plainG, plainB := re.r, re.g, re.b

	re.cleared = false
	re.mainTex = "tex"
	exec.Apply(context.Background(), inst, Command{Verb: "color", Positional: []string{"red", "tint"}}, "obj/box", "")
	if re.cleared || re.mainTex == nil {
		t.Fatal("color red tint should keep the texture")
	}
	if re.r != plainR || re.g != plainG || re.b != plainB {
		t.Fatalf("color red tint = (%v,%v,%v), want (%v,%v,%v)", re.r, re.g, re.b, plainR, plainG, plainB)
	}
}
