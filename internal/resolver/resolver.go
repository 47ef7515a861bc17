// Package resolver walks a chart option tree depth-first and replaces every
// generator node with its computed value. Plain nodes pass through untouched;
// arrays keep their order, objects keep their keys. The walk also collects
// the entity ids it touched so the caller can watch them for changes.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/history"
	"github.com/vk/chartgridgo/internal/statestore"
	"github.com/vk/chartgridgo/internal/token"
	"github.com/vk/chartgridgo/internal/transform"
)

// Watched collects the entity ids one resolution touched. The zero map is
// usable read-only; pass NewWatched to collect.
type Watched map[string]struct{}

func NewWatched() Watched { return make(Watched) }

func (w Watched) Add(ids ...string) {
	if w == nil {
		return
	}
	for _, id := range ids {
		if id != "" {
			w[id] = struct{}{}
		}
	}
}

func (w Watched) Has(id string) bool {
	_, ok := w[id]
	return ok
}

// IDs returns the watched ids sorted, for stable logs and tests.
func (w Watched) IDs() []string {
	ids := make([]string, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HistoryFetcher resolves one history generator to its replacement value.
// *history.Engine implements both fetcher interfaces.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, spec *token.History) (document.Node, error)
}

// StatisticsFetcher resolves one statistics generator.
type StatisticsFetcher interface {
	FetchStatistics(ctx context.Context, spec *token.Statistics) (document.Node, error)
}

// Fetchers bundles the time-series backends. History is required whenever the
// tree contains a history generator; a nil Statistics degrades those
// generators to empty lists.
type Fetchers struct {
	History    HistoryFetcher
	Statistics StatisticsFetcher
}

// Resolve builds a fresh tree with every generator replaced by its value.
// The input tree is never mutated. An invalid time range drops only the
// offending generator (empty list, warning); any other fetch error aborts
// the whole resolution.
func Resolve(ctx context.Context, node document.Node, store statestore.Store, watched Watched, fetchers Fetchers) (document.Node, error) {
	if node == nil {
		return document.Null(), nil
	}

	tok, err := token.Classify(node)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Skipping malformed generator", "error", err)
		return document.Null(), nil
	}
	if tok != nil {
		return resolveToken(ctx, tok, store, watched, fetchers)
	}

	switch n := node.(type) {
	case document.ArrayNode:
		out := make(document.ArrayNode, len(n))
		for i, el := range n {
			v, err := Resolve(ctx, el, store, watched, fetchers)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case document.ObjectNode:
		out := make(document.ObjectNode, len(n))
		for k, v := range n {
			rv, err := Resolve(ctx, v, store, watched, fetchers)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return node, nil
	}
}

func resolveToken(ctx context.Context, tok *token.Token, store statestore.Store, watched Watched, fetchers Fetchers) (document.Node, error) {
	watched.Add(tok.EntityIDs()...)

	switch tok.Kind {
	case token.KindHistory:
		if fetchers.History == nil {
			return nil, fmt.Errorf("history generator requires a history fetcher")
		}
		node, err := fetchers.History.FetchHistory(ctx, tok.History)
		return recoverRange(ctx, node, err)

	case token.KindStatistics:
		if fetchers.Statistics == nil {
			ctxlog.FromContext(ctx).Debug("No statistics fetcher configured, resolving to empty list")
			return document.ArrayNode{}, nil
		}
		node, err := fetchers.Statistics.FetchStatistics(ctx, tok.Statistics)
		return recoverRange(ctx, node, err)

	case token.KindData:
		return resolveData(tok.Data, store), nil

	case token.KindEntity:
		return resolveEntity(tok.Entity, store), nil
	}
	return document.Null(), nil
}

// recoverRange downgrades an invalid time range to an empty result so the
// rest of the tree still resolves. Every other error propagates.
func recoverRange(ctx context.Context, node document.Node, err error) (document.Node, error) {
	if err != nil {
		var rangeErr *history.RangeError
		if errors.As(err, &rangeErr) {
			ctxlog.FromContext(ctx).Warn("Dropping time-series generator", "error", rangeErr)
			return document.ArrayNode{}, nil
		}
		return nil, err
	}
	return node, nil
}

func resolveEntity(spec *token.Entity, store statestore.Store) document.Node {
	ent, ok := store.Lookup(spec.ID)
	if !ok {
		return nodeFromValue(spec.Default)
	}
	raw := entityValue(ent, spec.Attr)
	if raw == nil && spec.Default != nil {
		raw = spec.Default
	}
	return nodeFromValue(transform.ApplyCoerced(raw, spec.Coerce, spec.Transform))
}

// dataItem is one bulk-extraction candidate before projection.
type dataItem struct {
	id      string
	name    string
	value   any
	numeric *float64
}

func resolveData(spec *token.Data, store statestore.Store) document.Node {
	items := make([]dataItem, 0, len(spec.Entities))
	for _, es := range spec.Entities {
		ent, ok := store.Lookup(es.ID)
		if spec.ExcludeUnavailable && (!ok || unavailableState(ent.State)) {
			continue
		}

		var raw any
		if ok {
			raw = entityValue(ent, spec.Attr)
		}
		if raw == nil && spec.Default != nil {
			raw = spec.Default
		}
		value := transform.ApplyCoerced(raw, spec.Coerce, spec.Transform)

		var numeric *float64
		if f := transform.ToNumber(value); !math.IsNaN(f) && !math.IsInf(f, 0) {
			numeric = &f
		}
		if spec.ExcludeZero && numeric != nil && *numeric == 0 {
			continue
		}
		items = append(items, dataItem{id: es.ID, name: es.DisplayName(), value: value, numeric: numeric})
	}

	sortItems(items, spec.Sort)
	if spec.Limit > 0 && len(items) > spec.Limit {
		items = items[:spec.Limit]
	}

	out := make(document.ArrayNode, 0, len(items))
	switch spec.Mode {
	case token.DataNames:
		for _, it := range items {
			out = append(out, document.String(it.name))
		}
	case token.DataValues:
		for _, it := range items {
			out = append(out, nodeFromValue(it.value))
		}
	default:
		for _, it := range items {
			out = append(out, document.ObjectNode{
				"name":  document.String(it.name),
				"value": nodeFromValue(it.value),
			})
		}
	}
	return out
}

// sortItems orders by numeric value; entries without one trail in both
// directions so they never displace real readings, keeping their relative
// order.
func sortItems(items []dataItem, order token.SortOrder) {
	switch order {
	case token.SortAsc:
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].numeric, items[j].numeric
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			return *a < *b
		})
	case token.SortDesc:
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].numeric, items[j].numeric
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			return *a > *b
		})
	}
}

func entityValue(ent statestore.Entity, attr string) any {
	if attr != "" {
		return ent.Attribute(attr)
	}
	return ent.State
}

func unavailableState(state string) bool {
	switch strings.ToLower(state) {
	case "", "unavailable", "unknown", "none":
		return true
	default:
		return false
	}
}

func nodeFromValue(v any) document.Node {
	n, err := document.FromGo(v)
	if err != nil {
		return document.Null()
	}
	return n
}
