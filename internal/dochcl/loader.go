// Package dochcl loads panel definitions from HCL files. Unlike the YAML
// form, a single HCL file may declare any number of panel blocks.
package dochcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
)

// fileRoot decodes the top-level panel blocks from a file.
type fileRoot struct {
	Panels []*panelBlock `hcl:"panel,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type panelBlock struct {
	Name   string         `hcl:"name,label"`
	Option hcl.Expression `hcl:"option"`
}

// Loader is the HCL-specific implementation of the document.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL panel loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every panel block declared in the given file.
func (l *Loader) Load(ctx context.Context, path string) ([]*document.Panel, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	panels := make([]*document.Panel, 0, len(root.Panels))
	for _, block := range root.Panels {
		// Option trees are literal; there is no evaluation context.
		val, diags := block.Option.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid option for panel %q in %s: %w", block.Name, path, diags)
		}

		option, err := ctyToNode(val)
		if err != nil {
			return nil, fmt.Errorf("panel %q in %s: %w", block.Name, path, err)
		}
		if _, ok := option.(document.NullNode); ok {
			option = nil
		}

		panel := &document.Panel{Name: block.Name, Source: path, Option: option}
		if err := panel.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		panels = append(panels, panel)
	}

	logger.Debug("Loaded panels", "path", path, "count", len(panels))
	return panels, nil
}
