package worldstream

import "testing"

func TestParseActionScriptPhases(t *testing.T) {
	raw := `create texture wood.png; activate visible yes`
	parsed := parseActionScript(raw)
	if len(parsed.Create) != 1 || parsed.Create[0].Verb != "texture" {
		t.Fatalf("Create = %+v", parsed.Create)
	}
	if len(parsed.Activate) != 1 || parsed.Activate[0].Verb != "visible" {
		t.Fatalf("Activate = %+v", parsed.Activate)
	}
}

func TestParseActionScriptDiscardedBeforePhase(t *testing.T) {
	raw := `texture wood.png; create visible yes`
	parsed := parseActionScript(raw)
	if len(parsed.Create) != 1 {
		t.Fatalf("Create = %+v, want 1 command (the leading texture command should be discarded)", parsed.Create)
	}
	if parsed.Create[0].Verb != "visible" {
		t.Fatalf("Create[0].Verb = %q, want visible", parsed.Create[0].Verb)
	}
}

func TestParseActionScriptStandalonePhaseMarker(t *testing.T) {
	raw := "create\ntexture wood.png\nvisible yes"
	parsed := parseActionScript(raw)
	if len(parsed.Create) != 2 {
		t.Fatalf("Create = %+v, want 2 commands", parsed.Create)
	}
}

func TestParseActionScriptLeadingComma(t *testing.T) {
	raw := ",create texture wood.png"
	parsed := parseActionScript(raw)
	if len(parsed.Create) != 1 || parsed.Create[0].Verb != "texture" {
		t.Fatalf("Create = %+v", parsed.Create)
	}
}

func TestParseActionScriptQuotedSegmentSeparator(t *testing.T) {
	raw := `create sign text="a;b,c" color=red`
	parsed := parseActionScript(raw)
	if len(parsed.Create) != 1 {
		t.Fatalf("Create = %+v, want 1 command (quoted ; should not split)", parsed.Create)
	}
	cmd := parsed.Create[0]
	if cmd.Verb != "sign" {
		t.Fatalf("Verb = %q", cmd.Verb)
	}
	if cmd.Named["text"] != "a;b,c" {
		t.Fatalf("Named[text] = %q, want %q", cmd.Named["text"], "a;b,c")
	}
}

func TestParseActionScriptKeyValueFirstToken(t *testing.T) {
	raw := "create opacity=0.5"
	parsed := parseActionScript(raw)
	cmd := parsed.Create[0]
	if cmd.Verb != "opacity" || len(cmd.Positional) != 1 || cmd.Positional[0] != "0.5" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestParseActionScriptCommaSurvivesWithinArgument(t *testing.T) {
	// spec.md §8 S2: "create opacity 0.5; color 255,0,0"
	raw := "create opacity 0.5; color 255,0,0"
	parsed := parseActionScript(raw)
	if len(parsed.Create) != 2 {
		t.Fatalf("Create = %+v, want 2 commands", parsed.Create)
	}
	colorCmd := parsed.Create[1]
	if colorCmd.Verb != "color" || len(colorCmd.Positional) != 1 || colorCmd.Positional[0] != "255,0,0" {
		t.Fatalf("color command = %+v", colorCmd)
	}
}

func TestParseActionScriptTagNamed(t *testing.T) {
	raw := "create texture leaf.png tag=2"
	parsed := parseActionScript(raw)
	cmd := parsed.Create[0]
	tag, ok := cmd.Tag()
	if !ok || tag != 2 {
		t.Fatalf("Tag() = %d, %v, want 2, true", tag, ok)
	}
}

func TestParseActionScriptTagPositionalSplit(t *testing.T) {
	raw := "create sign text=hi tag 100"
	parsed := parseActionScript(raw)
	cmd := parsed.Create[0]
	tag, ok := cmd.Tag()
	if !ok || tag != 100 {
		t.Fatalf("Tag() = %d, %v, want 100, true", tag, ok)
	}
}

// TestActionParserPurityAndCache is spec.md §8 item 4: parse(raw) ==
// parse(raw) on repeat, and the cache-hit result is deep-equal to the
// cache-miss result modulo cloning.
func TestActionParserPurityAndCache(t *testing.T) {
	raw := "create texture wood.png tag=1; activate color red"
	direct1 := parseActionScript(raw)
	direct2 := parseActionScript(raw)
	if !parsedScriptsEqual(direct1, direct2) {
		t.Fatal("parseActionScript is not pure")
	}

	p := NewActionParser()
	miss := p.Parse(raw)
	hit := p.Parse(raw)
	if !parsedScriptsEqual(miss, hit) {
		t.Fatal("cache hit differs from cache miss")
	}
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}

	clone := p.ParseClone(raw)
	clone.Create[0].Verb = "mutated"
	again := p.Parse(raw)
	if again.Create[0].Verb == "mutated" {
		t.Fatal("mutating a clone poisoned the cache")
	}
}

// TestActionParserCachingDisabled is spec.md §6 "cache_parsed_actions":
// with caching off, repeated Parse calls still agree on the result but
// never populate the cache.
func TestActionParserCachingDisabled(t *testing.T) {
	raw := "create texture wood.png tag=1; activate color red"
	p := NewActionParserWithCaching(false)
	first := p.Parse(raw)
	second := p.Parse(raw)
	if !parsedScriptsEqual(first, second) {
		t.Fatal("Parse is not pure with caching disabled")
	}
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 with caching disabled", p.Len())
	}
}

func parsedScriptsEqual(a, b ParsedScript) bool {
	return commandsEqual(a.Create, b.Create) && commandsEqual(a.Activate, b.Activate)
}

func commandsEqual(a, b []Command) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Verb != b[i].Verb || a[i].Raw != b[i].Raw {
			return false
		}
		if len(a[i].Positional) != len(b[i].Positional) {
			return false
		}
		for j := range a[i].Positional {
			if a[i].Positional[j] != b[i].Positional[j] {
				return false
			}
		}
		if len(a[i].Named) != len(b[i].Named) {
			return false
		}
		for k, v := range a[i].Named {
			if b[i].Named[k] != v {
				return false
			}
		}
	}
	return true
}
