// Package catalog loads module manifests from YAML into a module.Registry.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/erp/platform/internal/domain/module"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type document struct {
	Modules []module.Manifest `yaml:"modules"`
}

// Default returns the registry built from the embedded catalog
func Default() (*module.Registry, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded catalog when path is empty
func Load(path string) (*module.Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog document and validates it as a registry.
// Unknown keys are rejected so a misspelt field cannot silently drop a dependency.
func Parse(data []byte) (*module.Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse module catalog: %w", err)
	}

	registry, err := module.NewRegistry(doc.Modules)
	if err != nil {
		return nil, fmt.Errorf("invalid module catalog: %w", err)
	}
	return registry, nil
}
