package input

import (
	"io"
	"os"

	"github.com/GoCodeAlone/laf/envelope"
	"github.com/GoCodeAlone/laf/specloader"
)

// Sources carries the four raw, not-yet-normalized input sources in
// precedence order, per §4.B.
type Sources struct {
	Default map[string]any // default_input
	Stdin   any             // stdin_yaml (nil if not read)
	Getopt  map[string]any // getopt_input
	YAML    any             // yaml_input (everything after "---")
}

// Assemble merges the four sources into the Cartesian product of normalized
// objects, per the merging rule of §4.B.
func Assemble(s Sources) []map[string]any {
	return Cartesian(
		Normalize(s.Default),
		Normalize(s.Stdin),
		Normalize(s.Getopt),
		Normalize(s.YAML),
	)
}

// BuildEnvelopes turns the merged objects for one verb invocation into a
// list of request envelopes, per §4.B "Envelope construction".
//
// For verbs in {get,create,update,delete} all sources have already been
// merged by Assemble. For custom verbs, callers should only pass the body
// source through Sources (Default/Getopt left empty) before calling Assemble.
func BuildEnvelopes(lone, verb string, pk PKPath, merged []map[string]any) []*envelope.Request {
	if len(merged) == 0 {
		req := envelope.New(lone, verb)
		req.PK = pk.PK
		req.Path = pk.Path
		return []*envelope.Request{req}
	}

	envelopes := make([]*envelope.Request, 0, len(merged))
	for _, obj := range merged {
		full := WrapPath(pk.Path, obj)
		req := envelope.New(lone, verb)
		req.Path = pk.Path
		req.PK = ResolvePK(pk, obj)
		req.Obj = full
		envelopes = append(envelopes, req)
	}
	return envelopes
}

// DefaultInputFor returns the hardcoded default_input for get/delete (an
// empty object) or the lone's configured default for other verbs.
func DefaultInputFor(verb string, loneDefault map[string]any) map[string]any {
	switch verb {
	case "get", "delete":
		return map[string]any{}
	default:
		return loneDefault
	}
}

// RequiresBody reports whether an operation's body is required. A nil spec
// (no compiled operation, as when the openapi directory is empty) counts as
// required; otherwise the compiled OperationSpec's BodyRequired decides.
func RequiresBody(spec *specloader.OperationSpec) bool {
	if spec == nil {
		return true
	}
	return spec.BodyRequired
}

// Stdin exposes the process's standard streams so callers can be tested
// against fakes; production code passes os.Stdin/os.Stderr.
var (
	Stdin  io.Reader = os.Stdin
	Stderr io.Writer = os.Stderr
)
