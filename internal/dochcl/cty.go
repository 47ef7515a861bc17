// This file contains the logic for converting an evaluated cty.Value into an
// option node. Literal option trees only ever produce strings, numbers,
// bools, tuples, and objects; the list/map cases cover values that arrive
// through type conversion.

package dochcl

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/chartgridgo/internal/document"
)

// ctyToNode recursively converts a cty.Value to its option-node counterpart.
func ctyToNode(v cty.Value) (document.Node, error) {
	if v.IsNull() || !v.IsKnown() {
		return document.Null(), nil
	}

	ty := v.Type()

	switch {
	case ty == cty.String:
		return document.String(v.AsString()), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return document.Number(f), nil

	case ty == cty.Bool:
		return document.Bool(v.True()), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]document.Node, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, val := it.Element()
			node, err := ctyToNode(val)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
		}
		return document.ArrayNode(out), nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]document.Node)
		it := v.ElementIterator()
		for it.Next() {
			key, val := it.Element()
			keyStr := key.AsString()
			node, err := ctyToNode(val)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", keyStr, err)
			}
			out[keyStr] = node
		}
		return document.ObjectNode(out), nil

	default:
		return nil, fmt.Errorf("unsupported option value type: %s", ty.FriendlyName())
	}
}
