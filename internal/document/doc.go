// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package document provides the format-agnostic representation of a panel
// option tree. Its core purpose is to give every other package a single,
// strongly-typed model of the JSON-like configuration, regardless of whether
// the bytes on disk were YAML, JSON, or HCL.
//
// # Core Concepts
//
// The package is built around a few key structures:
//
//   - Node: The closed set of value kinds an option tree may contain. A Node
//     is one of NullNode, BoolNode, NumberNode, StringNode, ArrayNode, or
//     ObjectNode, mirroring the JSON data model.
//
//   - Panel: A named option tree as declared by the user. Panels are the unit
//     of loading, resolving, and serving.
//
//   - Loader: The interface a format-specific parser (YAML, HCL) implements to
//     produce Panels. Concrete implementations live in separate packages so
//     this one stays free of parser dependencies.
//
// Nodes are treated as immutable once constructed. Code that derives a new
// tree from an existing one builds fresh containers instead of mutating in
// place.
package document
