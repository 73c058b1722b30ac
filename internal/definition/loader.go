// Package definition loads application definitions (models, stores, views)
// from YAML, validates them, and serves them from a registry that swaps
// snapshots atomically.
package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/uibind/model"
)

// Loader scans directories for definition files, parses them, and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// isDefinitionFile reports whether path has a definition extension. JSON is
// accepted since it is a subset of YAML.
func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadAll recursively scans directories for definition files and parses each
// into an AppDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.AppDefinition, error) {
	var defs []model.AppDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isDefinitionFile(path) {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single definition file.
func (l *Loader) LoadFile(path string) (model.AppDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.AppDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	def, err := l.Parse(data)
	if err != nil {
		return model.AppDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	def.SourceFile = path
	return def, nil
}

// Parse decodes one definition document and stamps its checksum.
func (l *Loader) Parse(data []byte) (model.AppDefinition, error) {
	var def model.AppDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.AppDefinition{}, err
	}
	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	return def, nil
}
