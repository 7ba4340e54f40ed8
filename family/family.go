// Package family loads the Family descriptor: the deployment-scoped root
// that anchors a group of lones sharing config, auth, and deployment label.
package family

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the parsed etc/laf-server.yml document.
type ServerConfig struct {
	Lones []string `yaml:"lones"`
}

// CMConfig is the parsed etc/cm-config.yml document: lone -> operationId ->
// arbitrary policy metadata. Presence of an (lone, operationId) entry means
// the operation requires a non-empty change-management ticket.
type CMConfig map[string]map[string]any

// Descriptor is the immutable, once-loaded family root.
type Descriptor struct {
	ID         string
	Deployment string
	BaseDir    string
	Server     ServerConfig
	CM         CMConfig
}

// OpenAPIDir returns the directory holding this family's per-lone OpenAPI documents.
func (d *Descriptor) OpenAPIDir() string {
	return filepath.Join(d.BaseDir, "apischemas", "openapi")
}

// OptionsPath returns the path to a lone's getopt schema file.
func (d *Descriptor) OptionsPath(lone string) string {
	return filepath.Join(d.BaseDir, "schemas", lone+".options.yml")
}

// Load reads etc/family, etc/laf-server.yml and etc/cm-config.yml under baseDir.
func Load(baseDir, deployment string) (*Descriptor, error) {
	idBytes, err := os.ReadFile(filepath.Join(baseDir, "etc", "family"))
	if err != nil {
		return nil, fmt.Errorf("reading etc/family: %w", err)
	}

	d := &Descriptor{
		ID:         strings.TrimSpace(string(idBytes)),
		Deployment: deployment,
		BaseDir:    baseDir,
	}

	serverBytes, err := os.ReadFile(filepath.Join(baseDir, "etc", "laf-server.yml"))
	if err != nil {
		return nil, fmt.Errorf("reading etc/laf-server.yml: %w", err)
	}
	if err := yaml.Unmarshal(serverBytes, &d.Server); err != nil {
		return nil, fmt.Errorf("parsing etc/laf-server.yml: %w", err)
	}

	cmPath := filepath.Join(baseDir, "etc", "cm-config.yml")
	if cmBytes, err := os.ReadFile(cmPath); err == nil {
		if err := yaml.Unmarshal(cmBytes, &d.CM); err != nil {
			return nil, fmt.Errorf("parsing etc/cm-config.yml: %w", err)
		}
	}

	return d, nil
}

// RequiresCM reports whether the given (lone, operationId) pair is gated by
// change-management policy per etc/cm-config.yml.
func (d *Descriptor) RequiresCM(lone, operationID string) bool {
	ops, ok := d.CM[lone]
	if !ok {
		return false
	}
	_, ok = ops[operationID]
	return ok
}
