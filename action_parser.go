package worldstream

import "strings"

// ActionParser parses raw action-script strings into ParsedScript values
// and caches the result keyed by the exact raw string (spec.md §4.3).
// Parsing is pure and O(n) in input length; repeated identical scripts are
// O(1) amortized via the cache.
//
// Segments are split on ';' and newline, respecting double-quoted runs (a
// quoted span may contain these literally). Comma is NOT used as a segment
// splitter here even though spec.md §4.3 lists it alongside ';' and
// newline: doing so would break the worked example in spec.md §8 S2
// ("color 255,0,0" must survive as one argument to the color verb), which
// this implementation treats as authoritative over the general prose. A
// single leading comma on a segment is still stripped per spec.md §4.3
// ("source strings are frequently prefixed").
type ActionParser struct {
	cacheEnabled bool
	cache        map[string]ParsedScript
}

// NewActionParser returns a parser with an empty cache, caching enabled
// (spec.md §6 "cache_parsed_actions" default true). Use
// NewActionParserWithCaching to disable it.
func NewActionParser() *ActionParser {
	return NewActionParserWithCaching(true)
}

// NewActionParserWithCaching returns a parser whose cache is only
// consulted/populated when enabled is true; with it false every Parse
// call re-tokenizes raw from scratch (spec.md §6 "cache_parsed_actions").
func NewActionParserWithCaching(enabled bool) *ActionParser {
	return &ActionParser{cacheEnabled: enabled, cache: make(map[string]ParsedScript)}
}

// Parse returns the ParsedScript for raw, populating the cache on a miss.
// The returned value aliases cached slices; callers that intend to mutate
// the result should call ParsedScript.Clone first, or use ParseClone.
func (p *ActionParser) Parse(raw string) ParsedScript {
	if !p.cacheEnabled {
		return parseActionScript(raw)
	}
	if cached, ok := p.cache[raw]; ok {
		return cached
	}
	parsed := parseActionScript(raw)
	p.cache[raw] = parsed
	return parsed
}

// ParseClone is Parse followed by Clone, for callers that will mutate the
// result (e.g. per-instance activate-phase storage).
func (p *ActionParser) ParseClone(raw string) ParsedScript {
	return p.Parse(raw).Clone()
}

// Len returns the number of distinct raw scripts currently cached.
func (p *ActionParser) Len() int { return len(p.cache) }

// parseActionScript is the pure tokenizer+parser (no cache involvement),
// exercised directly by tests for the purity property in spec.md §8 item 4.
func parseActionScript(raw string) ParsedScript {
	var out ParsedScript
	phase := Phase(255) // sentinel: "none"

	for _, segment := range splitSegments(raw) {
		segment = stripLeadingComma(strings.TrimSpace(segment))
		if segment == "" {
			continue
		}
		tokens := tokenizeSegment(segment)
		if len(tokens) == 0 {
			continue
		}

		first := strings.ToLower(tokens[0])
		if first == "create" || first == "activate" {
			if first == "create" {
				phase = PhaseCreate
			} else {
				phase = PhaseActivate
			}
			tokens = tokens[1:]
			if len(tokens) == 0 {
				continue // standalone phase marker
			}
		}

		if phase != PhaseCreate && phase != PhaseActivate {
			continue // phase is still "none": command discarded
		}

		cmd := buildCommand(segment, tokens)
		if phase == PhaseCreate {
			out.Create = append(out.Create, cmd)
		} else {
			out.Activate = append(out.Activate, cmd)
		}
	}
	return out
}

func stripLeadingComma(segment string) string {
	if strings.HasPrefix(segment, ",") {
		return strings.TrimSpace(segment[1:])
	}
	return segment
}

// splitSegments splits raw on ';' and '\n', respecting double-quoted runs.
func splitSegments(raw string) []string {
	var segments []string
	var cur strings.Builder
	inQuote := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ';' || r == '\n'):
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	segments = append(segments, cur.String())
	return segments
}

// tokenizeSegment splits a segment on whitespace, respecting quotes (which
// group tokens and are discarded from the output).
func tokenizeSegment(segment string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	hasCur := false
	flush := func() {
		if hasCur {
			tokens = append(tokens, cur.String())
			cur.Reset()
			hasCur = false
		}
	}
	for _, r := range segment {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasCur = true
		case !inQuote && isSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			hasCur = true
		}
	}
	flush()
	return tokens
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r'
}

// buildCommand assembles a Command from a segment's tokens (after any
// leading phase keyword has been stripped). The first token may itself be
// "verb=value" (spec.md §4.3), in which case verb is the key and value
// becomes the first positional argument.
func buildCommand(raw string, tokens []string) Command {
	cmd := Command{Raw: raw}
	if len(tokens) == 0 {
		return cmd
	}

	rest := tokens[1:]
	if k, v, ok := splitKV(tokens[0]); ok {
		cmd.Verb = strings.ToLower(k)
		cmd.Positional = append(cmd.Positional, v)
	} else {
		cmd.Verb = strings.ToLower(tokens[0])
	}

	for _, tok := range rest {
		if k, v, ok := splitKV(tok); ok {
			if cmd.Named == nil {
				cmd.Named = make(map[string]string)
			}
			cmd.Named[strings.ToLower(k)] = v
		} else {
			cmd.Positional = append(cmd.Positional, tok)
		}
	}
	return cmd
}
