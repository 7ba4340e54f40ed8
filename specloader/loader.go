package specloader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"
)

var versionedFileRE = regexp.MustCompile(`^vnd\.([^.]+)\.([^.]+)\.v(\d+)\.(\d+)\.(\d+)\.(ya?ml|json)$`)

// Discovered is one matched OpenAPI document file on disk.
type Discovered struct {
	Family  string
	Lone    string
	Version Version
	Path    string
}

// Discover walks dir for files named "vnd.<family>.<lone>.vMAJOR.MINOR.PATCH"
// followed by a .yaml, .yml or .json extension, and groups them by lone, keeping only the latest version per lone.
func Discover(dir string) (map[string]Discovered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading openapi dir: %w", err)
	}

	latest := make(map[string]Discovered)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := versionedFileRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		major, _ := strconv.Atoi(m[3])
		minor, _ := strconv.Atoi(m[4])
		patch, _ := strconv.Atoi(m[5])
		d := Discovered{
			Family: m[1],
			Lone:   m[2],
			Version: Version{
				Major: major, Minor: minor, Patch: patch,
				Raw: fmt.Sprintf("%d.%d.%d", major, minor, patch),
			},
			Path: filepath.Join(dir, e.Name()),
		}
		if cur, ok := latest[d.Lone]; !ok || cur.Version.Less(d.Version) {
			latest[d.Lone] = d
		}
	}
	return latest, nil
}

// LoadDocument reads and YAML/JSON-decodes an OpenAPI document into a generic map.
func LoadDocument(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading openapi document %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi document %s: %w", path, err)
	}
	return doc, nil
}

// Resolver resolves $ref pointers against a document anchored at a base URI
// (file://<basedir>/apischemas/openapi/), recursively, through parameters,
// schemas, responses, and components.
type Resolver struct {
	baseURI string
	root    map[string]any
	cache   map[string]map[string]any
}

// NewResolver builds a Resolver for one document rooted at baseURI.
func NewResolver(baseURI string, root map[string]any) *Resolver {
	return &Resolver{baseURI: baseURI, root: root, cache: make(map[string]map[string]any)}
}

// Resolve walks node recursively, replacing every {"$ref": "..."} object with
// its resolved target, re-resolving recursively until no $ref remains.
func (r *Resolver) Resolve(node any) (any, error) {
	return r.resolve(node, make(map[string]bool))
}

func (r *Resolver) resolve(node any, seen map[string]bool) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			if seen[ref] {
				return nil, fmt.Errorf("circular $ref: %s", ref)
			}
			target, err := r.lookup(ref)
			if err != nil {
				return nil, err
			}
			next := make(map[string]bool, len(seen)+1)
			for k := range seen {
				next[k] = true
			}
			next[ref] = true
			return r.resolve(target, next)
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			resolved, err := r.resolve(val, seen)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			resolved, err := r.resolve(val, seen)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// lookup resolves a $ref string against the local document (#/a/b/c) or, for
// file://-anchored external refs, loads and caches the referenced document.
func (r *Resolver) lookup(ref string) (map[string]any, error) {
	docPart, fragment := splitRef(ref)

	var doc map[string]any
	if docPart == "" {
		doc = r.root
	} else {
		abs := strings.TrimPrefix(docPart, "file://")
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(filepath.Dir(strings.TrimPrefix(r.baseURI, "file://")), abs)
		}
		cached, ok := r.cache[abs]
		if !ok {
			loaded, err := LoadDocument(abs)
			if err != nil {
				return nil, fmt.Errorf("resolving external $ref %s: %w", ref, err)
			}
			r.cache[abs] = loaded
			cached = loaded
		}
		doc = cached
	}

	if fragment == "" || fragment == "/" {
		return doc, nil
	}

	node, err := pointerGet(doc, fragment)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", ref, err)
	}
	asMap, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$ref %s does not resolve to an object", ref)
	}
	return asMap, nil
}

func splitRef(ref string) (docPart, fragment string) {
	idx := strings.IndexByte(ref, '#')
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}

// pointerGet walks a JSON-Pointer fragment (e.g. "/components/schemas/Foo")
// against a decoded document.
func pointerGet(doc any, pointer string) (any, error) {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return doc, nil
	}
	cur := doc
	for _, tok := range strings.Split(pointer, "/") {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[tok]
			if !ok {
				return nil, fmt.Errorf("pointer segment %q not found", tok)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("pointer segment %q is not a valid array index", tok)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into pointer segment %q", tok)
		}
	}
	return cur, nil
}

// SortedLoneNames returns the lone names of a discovery map in stable order,
// for deterministic route-registration logging.
func SortedLoneNames(discovered map[string]Discovered) []string {
	names := make([]string, 0, len(discovered))
	for name := range discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
