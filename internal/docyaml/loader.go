// Package docyaml loads panel definitions from YAML files. JSON is valid
// YAML, so .json files take the same path.
package docyaml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
)

// fileDoc mirrors the on-disk shape: an optional panel name plus the raw
// option tree.
type fileDoc struct {
	Panel  string `yaml:"panel"`
	Option any    `yaml:"option"`
}

// Loader reads one panel per file.
type Loader struct{}

// NewLoader creates a YAML panel loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads a panel definition from the given path. When the file does not
// name its panel, the file stem is used.
func (l *Loader) Load(ctx context.Context, path string) ([]*document.Panel, error) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read panel file %s: %w", path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse panel file %s: %w", path, err)
	}

	name := doc.Panel
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	option, err := document.FromGo(doc.Option)
	if err != nil {
		return nil, fmt.Errorf("panel %q in %s: %w", name, path, err)
	}
	if _, ok := option.(document.NullNode); ok {
		option = nil
	}

	panel := &document.Panel{Name: name, Source: path, Option: option}
	if err := panel.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.Debug("Loaded panel", "path", path, "panel", panel.Name)
	return []*document.Panel{panel}, nil
}
