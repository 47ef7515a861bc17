package history

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/lru"
	"github.com/vk/chartgridgo/internal/token"
	"github.com/vk/chartgridgo/internal/transform"
)

// Default fingerprint-cache capacities. History keys churn faster than
// statistics keys because their bucketed end moves every cache window.
const (
	DefaultHistoryCacheSize    = 64
	DefaultStatisticsCacheSize = 32
)

// cacheEntry is one cached computation. Entries are replaced wholesale on
// expiry, never partially mutated.
type cacheEntry struct {
	computedAtMs int64
	expiresAtMs  int64
	value        document.Node
}

// Options configures an Engine.
type Options struct {
	// API is the raw history transport. Required.
	API API
	// Statistics is the aggregation transport. Optional: without one,
	// statistics generators resolve to empty results.
	Statistics          StatisticsAPI
	HistoryCacheSize    int
	StatisticsCacheSize int
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine derives stable time ranges, queries the transports, decodes and
// aligns the responses, downsamples to the point budget, and caches each
// computed value under a semantic fingerprint with a TTL.
type Engine struct {
	api   API
	stats StatisticsAPI

	histCache *lru.Cache[string, cacheEntry]
	statCache *lru.Cache[string, cacheEntry]
	now       func() time.Time
}

// NewEngine builds an Engine. Cache capacities below one are configuration
// errors surfaced here, not at runtime.
func NewEngine(opts Options) (*Engine, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("history: transport API is required")
	}
	histSize := opts.HistoryCacheSize
	if histSize == 0 {
		histSize = DefaultHistoryCacheSize
	}
	statSize := opts.StatisticsCacheSize
	if statSize == 0 {
		statSize = DefaultStatisticsCacheSize
	}

	histCache, err := lru.New[string, cacheEntry](histSize)
	if err != nil {
		return nil, fmt.Errorf("history cache: %w", err)
	}
	statCache, err := lru.New[string, cacheEntry](statSize)
	if err != nil {
		return nil, fmt.Errorf("statistics cache: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		api:       opts.API,
		stats:     opts.Statistics,
		histCache: histCache,
		statCache: statCache,
		now:       now,
	}, nil
}

// FetchHistory resolves one history generator: derive the range, serve from
// cache when fresh, otherwise issue exactly one transport query, decode,
// downsample, shape, and cache.
func (e *Engine) FetchHistory(ctx context.Context, spec *token.History) (document.Node, error) {
	logger := ctxlog.FromContext(ctx)

	rng, err := historyRange(spec, e.now())
	if err != nil {
		return nil, err
	}
	key := historyKey(spec, rng)

	if entry, ok := e.histCache.Get(key); ok && entry.expiresAtMs > e.now().UnixMilli() {
		logger.Debug("History cache hit", "key", key)
		return entry.value, nil
	}

	ids := entityIDList(spec.Entities)
	resp, err := e.api.QueryHistoryPeriod(ctx, rng.StartISO(), rng.EndISO(), Filter{
		EntityIDs:       ids,
		MinimalResponse: spec.MinimalResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}

	samples := decodeResponse(resp, spec.Attr)
	perEntity := make(map[string][]Point, len(ids))
	for id, raw := range samples {
		points := coercePoints(raw, spec.Coerce, spec.Transform)
		if spec.Points > 0 {
			points = Downsample(points, spec.Points, spec.Sample)
		}
		perEntity[id] = points
	}

	node := shapeHistory(spec, perEntity)
	e.store(e.histCache, key, node, spec.CacheSeconds)
	logger.Debug("History fetched", "entities", len(ids), "start", rng.StartISO(), "end", rng.EndISO())
	return node, nil
}

// FetchStatistics resolves one statistics generator against the aggregation
// transport. A missing transport degrades to an empty result instead of
// failing the resolution.
func (e *Engine) FetchStatistics(ctx context.Context, spec *token.Statistics) (document.Node, error) {
	logger := ctxlog.FromContext(ctx)

	if e.stats == nil {
		logger.Warn("Statistics transport unavailable, resolving to empty result")
		return document.ArrayNode{}, nil
	}

	rng, err := statisticsRange(spec, e.now())
	if err != nil {
		return nil, err
	}
	key := statisticsKey(spec, rng)

	if entry, ok := e.statCache.Get(key); ok && entry.expiresAtMs > e.now().UnixMilli() {
		logger.Debug("Statistics cache hit", "key", key)
		return entry.value, nil
	}

	resp, err := e.stats.QueryStatistics(ctx, StatisticsRequest{
		StartISO:     rng.StartISO(),
		EndISO:       rng.EndISO(),
		StatisticIDs: entityIDList(spec.Entities),
		Period:       spec.Period,
		Types:        []string{string(spec.StatType)},
	})
	if err != nil {
		return nil, fmt.Errorf("statistics query failed: %w", err)
	}

	node := shapeStatistics(spec, resp)
	e.store(e.statCache, key, node, spec.CacheSeconds)
	logger.Debug("Statistics fetched", "entities", len(spec.Entities), "period", spec.Period)
	return node, nil
}

func (e *Engine) store(cache *lru.Cache[string, cacheEntry], key string, node document.Node, cacheSeconds float64) {
	nowMs := e.now().UnixMilli()
	cache.Set(key, cacheEntry{
		computedAtMs: nowMs,
		expiresAtMs:  nowMs + int64(cacheSeconds*1000),
		value:        node,
	})
}

// shapeHistory projects per-entity point lists into the requested mode:
// values is the first listed entity's raw point list, series one object per
// entity with overrides merged by display-name-or-id.
func shapeHistory(spec *token.History, perEntity map[string][]Point) document.Node {
	if spec.Mode == token.ModeSeries {
		out := make(document.ArrayNode, 0, len(spec.Entities))
		for _, ent := range spec.Entities {
			out = append(out, seriesObject(ent, spec.SeriesType, spec.Overrides, perEntity[ent.ID]))
		}
		return out
	}
	if len(spec.Entities) == 0 {
		return document.ArrayNode{}
	}
	return pointsNode(perEntity[spec.Entities[0].ID])
}

func shapeStatistics(spec *token.Statistics, resp map[string][]StatRow) document.Node {
	perEntity := make(map[string][]Point, len(resp))
	sums := make(map[string]float64, len(resp))
	for id, rows := range resp {
		points := make([]Point, 0, len(rows))
		sum := 0.0
		for _, row := range rows {
			v := row.Value(spec.StatType)
			if v == nil {
				continue
			}
			ts, ok := parseTimeInput(row.Start)
			if !ok {
				continue
			}
			val := transform.RoundTo(*v, 2)
			points = append(points, Point{T: ts, V: val})
			sum += val
		}
		sortPoints(points)
		perEntity[id] = points
		sums[id] = transform.RoundTo(sum, 2)
	}

	switch spec.Mode {
	case token.ModePairs:
		out := make(document.ArrayNode, 0, len(spec.Entities))
		for _, ent := range spec.Entities {
			out = append(out, document.ObjectNode{
				"name":  document.StringNode(ent.DisplayName()),
				"value": document.NumberNode(sums[ent.ID]),
			})
		}
		return out
	case token.ModeSeries:
		out := make(document.ArrayNode, 0, len(spec.Entities))
		for _, ent := range spec.Entities {
			out = append(out, seriesObject(ent, spec.SeriesType, spec.Overrides, perEntity[ent.ID]))
		}
		return out
	default:
		if len(spec.Entities) == 0 {
			return document.ArrayNode{}
		}
		return pointsNode(perEntity[spec.Entities[0].ID])
	}
}

func pointsNode(points []Point) document.Node {
	out := make(document.ArrayNode, 0, len(points))
	for _, p := range points {
		out = append(out, document.ArrayNode{
			document.NumberNode(float64(p.T)),
			document.NumberNode(p.V),
		})
	}
	return out
}

// seriesObject builds one per-entity series map. Override fields win over
// the generated name, type, and data.
func seriesObject(ent token.EntitySpec, seriesType string, overrides map[string]document.ObjectNode, points []Point) document.Node {
	name := ent.DisplayName()
	obj := document.ObjectNode{
		"name": document.StringNode(name),
		"type": document.StringNode(seriesType),
		"data": pointsNode(points),
	}
	ov, ok := overrides[name]
	if !ok {
		ov = overrides[ent.ID]
	}
	for k, v := range ov {
		obj[k] = v
	}
	return obj
}

// historyKey fingerprints every parameter that can change a history result.
// Display names participate because they name series in series mode.
func historyKey(spec *token.History, rng Range) string {
	return strings.Join([]string{
		"h",
		entityListFingerprint(spec.Entities),
		strconv.FormatInt(rng.StartMs, 10),
		strconv.FormatInt(rng.EndMs, 10),
		spec.Attr,
		string(spec.Coerce),
		spec.Transform.Fingerprint(),
		string(spec.Mode),
		spec.SeriesType,
		strconv.Itoa(spec.Points),
		string(spec.Sample),
		overridesFingerprint(spec.Overrides),
		strconv.FormatBool(spec.MinimalResponse),
	}, "|")
}

func statisticsKey(spec *token.Statistics, rng Range) string {
	return strings.Join([]string{
		"s",
		entityListFingerprint(spec.Entities),
		strconv.FormatInt(rng.StartMs, 10),
		strconv.FormatInt(rng.EndMs, 10),
		string(spec.Period),
		string(spec.StatType),
		string(spec.Mode),
		spec.SeriesType,
		overridesFingerprint(spec.Overrides),
	}, "|")
}

func entityListFingerprint(specs []token.EntitySpec) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		if s.Name != "" {
			parts = append(parts, s.ID+"~"+s.Name)
		} else {
			parts = append(parts, s.ID)
		}
	}
	return strings.Join(parts, ",")
}

func overridesFingerprint(overrides map[string]document.ObjectNode) string {
	if len(overrides) == 0 {
		return ""
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+overrides[k].String())
	}
	return strings.Join(parts, ";")
}

func entityIDList(specs []token.EntitySpec) []string {
	ids := make([]string, 0, len(specs))
	for _, s := range specs {
		ids = append(ids, s.ID)
	}
	return ids
}
