package input

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
	"sigs.k8s.io/yaml"
)

// StdinIsTTY reports whether fd 0 is an interactive terminal.
func StdinIsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadStdinYAML decodes stdin as a YAML document. Callers should only invoke
// this when stdin is known not to be a TTY (or after an interactive prompt
// has captured it).
func ReadStdinYAML(r io.Reader) (any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing stdin YAML: %w", err)
	}
	return doc, nil
}

// PromptForYAML prints the interactive prompt banner on stderr, reads stdin
// to EOF, and parses it as YAML, per §4.B "Interactive prompt".
func PromptForYAML(stderr io.Writer, stdin io.Reader) (any, error) {
	fmt.Fprintln(stderr, "Enter YAML input and type Ctrl-D (i.e. EOF) to submit:")
	raw, err := io.ReadAll(bufio.NewReader(stdin))
	if err != nil {
		return nil, fmt.Errorf("reading interactive input: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing interactive YAML: %w", err)
	}
	return doc, nil
}

// NeedsPrompt reports whether, after merging all non-interactive sources,
// the CLI must fall back to an interactive prompt: either the merged object
// list is empty, or the pk is stubbed and an object in it lacks "_id", and
// the operation requires a body.
func NeedsPrompt(bodyRequired bool, merged []map[string]any, pkStubbed bool) bool {
	if !bodyRequired {
		return false
	}
	if len(merged) == 0 {
		return true
	}
	if pkStubbed {
		for _, obj := range merged {
			if _, ok := obj["_id"]; !ok {
				return true
			}
		}
	}
	return false
}
