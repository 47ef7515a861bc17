// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Node sum type, the in-memory shape of every option
// tree in the system.
//
// Why a dedicated type instead of plain `any`?
//
// The resolver, the generator parser, and the HTTP layer all walk the same
// trees. With `any`, each of them would carry its own defensive type switches
// over map[string]any, []any, float64, json.Number, and friends. Pinning the
// model to six concrete kinds keeps those walks exhaustive and pushes all the
// messy host-type conversion into FromGo and ToGo at the boundaries.
package document

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which of the JSON-like value kinds a Node holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var ErrUnsupportedValue = errors.New("unsupported option tree value type")

// Node is a single value inside an option tree.
// Nodes are treated as immutable after construction.
type Node interface {
	Kind() Kind
	String() string
}

// NullNode represents null.
type NullNode struct{}

func (NullNode) Kind() Kind     { return KindNull }
func (NullNode) String() string { return "null" }

// BoolNode represents a boolean.
type BoolNode bool

func (v BoolNode) Kind() Kind     { return KindBool }
func (v BoolNode) String() string { return strconv.FormatBool(bool(v)) }

// NumberNode represents a number (float64).
type NumberNode float64

func (v NumberNode) Kind() Kind     { return KindNumber }
func (v NumberNode) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 64) }

// StringNode represents a string.
type StringNode string

func (v StringNode) Kind() Kind     { return KindString }
func (v StringNode) String() string { return strconv.Quote(string(v)) }

// ArrayNode represents an ordered list of nodes.
type ArrayNode []Node

func (v ArrayNode) Kind() Kind { return KindArray }
func (v ArrayNode) String() string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(v))
	for _, item := range v {
		if item == nil {
			parts = append(parts, "null")
			continue
		}
		parts = append(parts, item.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ObjectNode represents a map of string keys to nodes.
// NOTE: callers must treat the map as immutable.
type ObjectNode map[string]Node

func (v ObjectNode) Kind() Kind { return KindObject }
func (v ObjectNode) String() string {
	if len(v) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := v[key]
		if value == nil {
			parts = append(parts, strconv.Quote(key)+": null")
			continue
		}
		parts = append(parts, strconv.Quote(key)+": "+value.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Constructors for convenience.
func Null() Node                    { return NullNode{} }
func Bool(v bool) Node              { return BoolNode(v) }
func Number(v float64) Node         { return NumberNode(v) }
func String(v string) Node          { return StringNode(v) }
func Array(v []Node) Node           { return ArrayNode(v) }
func Object(v map[string]Node) Node { return ObjectNode(v) }

// Strings converts a string slice to an array node.
func Strings(v []string) Node {
	out := make([]Node, 0, len(v))
	for _, s := range v {
		out = append(out, String(s))
	}
	return ArrayNode(out)
}

// FromGo converts a decoded host value (the output of a YAML or JSON
// unmarshal into `any`) to a Node.
func FromGo(v any) (Node, error) {
	switch x := v.(type) {
	case nil:
		return NullNode{}, nil
	case Node:
		return x, nil
	case bool:
		return BoolNode(x), nil
	case int:
		return NumberNode(float64(x)), nil
	case int64:
		return NumberNode(float64(x)), nil
	case uint64:
		return NumberNode(float64(x)), nil
	case float32:
		return NumberNode(float64(x)), nil
	case float64:
		return NumberNode(x), nil
	case string:
		return StringNode(x), nil
	case []string:
		return Strings(x), nil
	case []Node:
		return ArrayNode(x), nil
	case []any:
		out := make([]Node, 0, len(x))
		for _, item := range x {
			node, err := FromGo(item)
			if err != nil {
				return nil, err
			}
			out = append(out, node)
		}
		return ArrayNode(out), nil
	case map[string]Node:
		return ObjectNode(x), nil
	case map[string]any:
		out := make(map[string]Node, len(x))
		for k, item := range x {
			node, err := FromGo(item)
			if err != nil {
				return nil, err
			}
			out[k] = node
		}
		return ObjectNode(out), nil
	case map[any]any:
		out := make(map[string]Node, len(x))
		for k, item := range x {
			key, ok := k.(string)
			if !ok {
				return nil, ErrUnsupportedValue
			}
			node, err := FromGo(item)
			if err != nil {
				return nil, err
			}
			out[key] = node
		}
		return ObjectNode(out), nil
	default:
		return nil, ErrUnsupportedValue
	}
}

// MustFromGo converts a host value and panics on failure.
// Use only in tests.
func MustFromGo(v any) Node {
	out, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return out
}

// ToGo converts a Node back to plain host values, suitable for JSON
// serialization. The inverse of FromGo up to numeric widening.
func ToGo(n Node) any {
	switch x := n.(type) {
	case nil:
		return nil
	case NullNode:
		return nil
	case BoolNode:
		return bool(x)
	case NumberNode:
		return float64(x)
	case StringNode:
		return string(x)
	case ArrayNode:
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, ToGo(item))
		}
		return out
	case ObjectNode:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = ToGo(item)
		}
		return out
	default:
		return nil
	}
}
