package input

import "strings"

// PKPath is the parsed result of "PK[sub/path]" primary-key syntax.
type PKPath struct {
	PK   *string // nil when no pk was given or pk is "-" (embedded in YAML payload under _id)
	Path []string
	stub bool // true only when pk is "-"
}

// Stubbed reports whether pk was the "-" placeholder, meaning the real
// primary key must come from the merged object's "_id" field.
func (p PKPath) Stubbed() bool { return p.stub }

// ParsePK splits "PK[sub/path]" into pk and an ordered sub-path, per §4.B.
// A bare "-" means the pk is embedded in the YAML payload under "_id".
func ParsePK(raw string) PKPath {
	if raw == "" {
		return PKPath{PK: nil}
	}

	pk := raw
	var path []string
	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		pk = raw[:idx]
		path = strings.Split(raw[idx+1:], "/")
	}

	if pk == "-" {
		return PKPath{PK: nil, Path: path, stub: true}
	}
	return PKPath{PK: &pk, Path: path}
}

// WrapPath expands "a/b/c" around obj: {a:{b:{c:obj}}}. When path is empty,
// obj is returned unchanged.
func WrapPath(path []string, obj map[string]any) map[string]any {
	if len(path) == 0 {
		return obj
	}
	wrapped := obj
	for i := len(path) - 1; i >= 0; i-- {
		wrapped = map[string]any{path[i]: wrapped}
	}
	return wrapped
}

// ResolvePK picks the final primary key for one merged object: if pk is
// stubbed and the object carries "_id", use it; else fall back to the
// CLI-supplied pk (nil if none).
func ResolvePK(pk PKPath, obj map[string]any) *string {
	if pk.Stubbed() {
		if id, ok := obj["_id"]; ok {
			s := toString(id)
			return &s
		}
		return nil
	}
	return pk.PK
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
