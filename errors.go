package worldstream

import "errors"

// Kind classifies a worldstream error for one-shot logging and for callers
// that need to distinguish retryable conditions from permanent ones.
// See spec.md §7 for the full error taxonomy this mirrors.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindServerError
	KindModelLoadFailed
	KindAssetNotFound
	KindDecodeFailed
	KindParseError
	KindStaleResidency
)

func (k Kind) String() string {
	switch k {
	case KindServerError:
		return "server_error"
	case KindModelLoadFailed:
		return "model_load_failed"
	case KindAssetNotFound:
		return "asset_not_found"
	case KindDecodeFailed:
		return "decode_failed"
	case KindParseError:
		return "parse_error"
	case KindStaleResidency:
		return "stale_residency"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can rate-limit
// repeated logging per spec.md §7 ("log once") without string matching.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "query_cell", "texture"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "worldstream: " + e.Op + ": " + e.Kind.String()
	}
	return "worldstream: " + e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrUnsupportedFormat is returned by the texture decoder when asked to
// decode a format no available decoder understands (e.g. DDS — see
// DESIGN.md's Open Questions entry on texture formats).
var ErrUnsupportedFormat = errors.New("worldstream: unsupported texture format")

// ErrNoTemplate is returned by TemplatePool.Acquire when a placement
// carries an empty model_id, so there is no template to load or clone at
// all (distinct from KindModelLoadFailed, which covers a non-empty
// model_id whose load attempt failed).
var ErrNoTemplate = errors.New("worldstream: no template available")
