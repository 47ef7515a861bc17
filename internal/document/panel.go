// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Panel structure, the unit of configuration the
// daemon loads, resolves, and serves. A panel pairs a user-chosen name with
// the raw option tree exactly as it appeared on disk.
package document

import (
	"context"
	"fmt"
)

// Panel is a named option tree as declared by the user. Option holds the raw
// tree with generators still embedded; resolving it is the resolver's job.
// Source records which file declared the panel so reloads can replace it.
type Panel struct {
	Name   string
	Source string
	Option Node
}

// Validate checks the panel for structural problems that would make it
// unservable.
func (p *Panel) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("panel has no name")
	}
	if p.Option == nil {
		return fmt.Errorf("panel %q has no option tree", p.Name)
	}
	return nil
}

// Loader is the interface for a format-specific panel loader.
type Loader interface {
	// Load reads panel definitions from a given path and translates them
	// into the format-agnostic model. A single file may declare one panel
	// (YAML, JSON) or several (HCL).
	Load(ctx context.Context, path string) ([]*Panel, error)
}
