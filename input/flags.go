package input

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FrameworkFlags are the framework-level CLI flags parsed first and stripped
// from the remaining argv, per §4.B.
type FrameworkFlags struct {
	Debug      bool
	Deployment string
	Mode       string
	Obo        string
	Role       string
	CM         string
	Status     string              // --status <rqid>; short-circuits to a status-get
	Servers    map[string][]string // proto -> addrs
}

// ParseFrameworkFlags consumes recognized framework flags from argv in order,
// returning the parsed flags and the remaining, framework-flag-free argv.
func ParseFrameworkFlags(argv []string) (FrameworkFlags, []string, error) {
	var f FrameworkFlags
	var rest []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "--debug":
			f.Debug = true
		case "--deployment":
			i++
			if i >= len(argv) {
				return f, nil, fmt.Errorf("--deployment requires a value")
			}
			f.Deployment = argv[i]
		case "--mode":
			i++
			if i >= len(argv) {
				return f, nil, fmt.Errorf("--mode requires a value")
			}
			f.Mode = argv[i]
		case "--obo":
			i++
			if i >= len(argv) {
				return f, nil, fmt.Errorf("--obo requires a value")
			}
			f.Obo = argv[i]
		case "--role":
			i++
			if i >= len(argv) {
				return f, nil, fmt.Errorf("--role requires a value")
			}
			f.Role = argv[i]
		case "--cm":
			i++
			if i >= len(argv) {
				return f, nil, fmt.Errorf("--cm requires a value")
			}
			f.CM = argv[i]
		case "--status":
			i++
			if i >= len(argv) {
				return f, nil, fmt.Errorf("--status requires an rqid")
			}
			f.Status = argv[i]
		case "--servers":
			f.Servers = make(map[string][]string)
			for i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--") {
				i++
				proto, addr, ok := strings.Cut(argv[i], ":")
				if !ok {
					return f, nil, fmt.Errorf("--servers value %q must be proto:addr", argv[i])
				}
				f.Servers[proto] = append(f.Servers[proto], addr)
			}
			if len(f.Servers) != 1 {
				return f, nil, fmt.Errorf("--servers requires exactly one protocol, got %d", len(f.Servers))
			}
		default:
			rest = append(rest, arg)
		}
	}
	return f, rest, nil
}

// FlagKind is the declared type of one getopt flag in a lone's options.yml.
type FlagKind string

const (
	FlagString  FlagKind = "string"
	FlagList    FlagKind = "list"
	FlagBoolean FlagKind = "boolean"
)

// FlagSchema is one named flag's declared kind, used to parse getopt_input.
type FlagSchema struct {
	Name string
	Kind FlagKind
}

// OptionsDoc is the parsed "<lone>.options.yml": a default object plus a
// per-verb getopt flag schema.
type OptionsDoc struct {
	Default map[string]any         `yaml:"default"`
	Verbs   map[string][]FlagEntry `yaml:",inline"`
}

// FlagEntry is one raw getopt flag declaration as authored in options.yml.
type FlagEntry struct {
	Name string   `yaml:"name"`
	Kind FlagKind `yaml:"kind"`
}

// LoadOptionsDoc reads and parses a lone's "<lone>.options.yml" getopt
// schema (see family.Descriptor.OptionsPath). A missing file is not an
// error: it means the lone declares no framework-level default_input or
// getopt flags, per §4.B, and callers get an empty OptionsDoc.
func LoadOptionsDoc(path string) (*OptionsDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OptionsDoc{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc OptionsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &doc, nil
}

// ParseGetopt consumes remaining argv against a verb's flag schema, returning
// the assembled getopt_input object and the leftover positional arguments
// (primary key and, after "---", the inline YAML).
func ParseGetopt(argv []string, schema []FlagEntry) (map[string]any, []string, error) {
	byFlag := make(map[string]FlagEntry, len(schema))
	for _, f := range schema {
		byFlag["--"+f.Name] = f
	}

	obj := make(map[string]any)
	var positional []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "---" {
			positional = append(positional, argv[i:]...)
			break
		}
		entry, ok := byFlag[arg]
		if !ok {
			positional = append(positional, arg)
			continue
		}
		switch entry.Kind {
		case FlagBoolean:
			obj[entry.Name] = true
		case FlagList:
			i++
			if i >= len(argv) {
				return nil, nil, fmt.Errorf("--%s requires a value", entry.Name)
			}
			list, _ := obj[entry.Name].([]any)
			obj[entry.Name] = append(list, argv[i])
		case FlagString:
			i++
			if i >= len(argv) {
				return nil, nil, fmt.Errorf("--%s requires a value", entry.Name)
			}
			obj[entry.Name] = argv[i]
		default:
			return nil, nil, fmt.Errorf("unknown flag kind %q for --%s", entry.Kind, entry.Name)
		}
	}

	return obj, positional, nil
}
