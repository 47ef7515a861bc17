package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/transform"
)

func node(v any) document.Node {
	return document.MustFromGo(v)
}

func TestIsGenerator(t *testing.T) {
	assert.True(t, IsGenerator(node(map[string]any{"$entity": "sensor.x"})))
	assert.True(t, IsGenerator(node(map[string]any{"$history": map[string]any{}})))

	assert.False(t, IsGenerator(node(map[string]any{"title": "plain"})))
	assert.False(t, IsGenerator(node([]any{"$entity"})))
	assert.False(t, IsGenerator(node("$entity")))
	assert.False(t, IsGenerator(node(nil)))
}

func TestClassifyEntity(t *testing.T) {
	t.Run("bare string shorthand", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": "sensor.living_temp"}))
		require.NoError(t, err)
		require.NotNil(t, tok)
		assert.Equal(t, KindEntity, tok.Kind)
		assert.Equal(t, "sensor.living_temp", tok.Entity.ID)
		assert.Equal(t, transform.CoerceAuto, tok.Entity.Coerce)
		assert.Nil(t, tok.Entity.Transform)
	})

	t.Run("object payload", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": map[string]any{
			"id":      "sensor.power",
			"attr":    "voltage",
			"coerce":  "number",
			"default": 0,
			"scale":   2,
			"offset":  5,
			"round":   1,
		}}))
		require.NoError(t, err)
		e := tok.Entity
		assert.Equal(t, "sensor.power", e.ID)
		assert.Equal(t, "voltage", e.Attr)
		assert.Equal(t, transform.CoerceNumber, e.Coerce)
		assert.Equal(t, 0.0, e.Default)
		require.NotNil(t, e.Transform)
		assert.Equal(t, 2.0, *e.Transform.Scale)
		assert.Equal(t, 5.0, *e.Transform.Offset)
		assert.Equal(t, 1, *e.Transform.Round)
		assert.Equal(t, 0.0, e.Transform.Default)
	})

	t.Run("entity field alias", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": map[string]any{"entity": "sensor.x"}}))
		require.NoError(t, err)
		assert.Equal(t, "sensor.x", tok.Entity.ID)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Classify(node(map[string]any{"$entity": map[string]any{"attr": "x"}}))
		assert.Error(t, err)

		_, err = Classify(node(map[string]any{"$entity": ""}))
		assert.Error(t, err)

		_, err = Classify(node(map[string]any{"$entity": nil}))
		assert.Error(t, err)

		_, err = Classify(node(map[string]any{"$entity": 42}))
		assert.Error(t, err)
	})
}

func TestClassifyPrecedence(t *testing.T) {
	// A node carrying several reserved keys classifies as the first in
	// $entity, $data, $history, $statistics order.
	tok, err := Classify(node(map[string]any{
		"$history": map[string]any{"entities": []any{"sensor.a"}},
		"$entity":  "sensor.b",
	}))
	require.NoError(t, err)
	assert.Equal(t, KindEntity, tok.Kind)
	assert.Equal(t, "sensor.b", tok.Entity.ID)

	tok, err = Classify(node(map[string]any{
		"$statistics": map[string]any{"entities": []any{"sensor.a"}},
		"$data":       map[string]any{"entities": []any{"sensor.c"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, KindData, tok.Kind)
}

func TestClassifyPlainNodes(t *testing.T) {
	for _, v := range []any{
		map[string]any{"series": []any{}},
		[]any{1, 2},
		"text",
		3.5,
		nil,
	} {
		tok, err := Classify(node(v))
		assert.NoError(t, err)
		assert.Nil(t, tok)
	}
}

func TestClassifyData(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$data": map[string]any{
			"entities": []any{"sensor.a", map[string]any{"id": "sensor.b", "name": "B"}},
		}}))
		require.NoError(t, err)
		d := tok.Data
		require.Len(t, d.Entities, 2)
		assert.Equal(t, EntitySpec{ID: "sensor.a"}, d.Entities[0])
		assert.Equal(t, EntitySpec{ID: "sensor.b", Name: "B"}, d.Entities[1])
		assert.Equal(t, DataPairs, d.Mode)
		assert.Equal(t, SortNone, d.Sort)
		assert.Equal(t, 0, d.Limit)
		assert.True(t, d.ExcludeUnavailable)
		assert.False(t, d.ExcludeZero)
		assert.Equal(t, transform.CoerceAuto, d.Coerce)
	})

	t.Run("options", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$data": map[string]any{
			"entities":     []any{"sensor.a"},
			"mode":         "values",
			"sort":         "desc",
			"limit":        5,
			"exclude_zero": true,
			"attr":         "battery",
		}}))
		require.NoError(t, err)
		d := tok.Data
		assert.Equal(t, DataValues, d.Mode)
		assert.Equal(t, SortDesc, d.Sort)
		assert.Equal(t, 5, d.Limit)
		assert.True(t, d.ExcludeZero)
		assert.Equal(t, "battery", d.Attr)
	})

	t.Run("legacy include_unavailable wins", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$data": map[string]any{
			"entities":            []any{"sensor.a"},
			"exclude_unavailable": true,
			"include_unavailable": true,
		}}))
		require.NoError(t, err)
		assert.False(t, tok.Data.ExcludeUnavailable)
	})

	t.Run("single entity string accepted", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$data": map[string]any{
			"entities": "sensor.only",
		}}))
		require.NoError(t, err)
		require.Len(t, tok.Data.Entities, 1)
		assert.Equal(t, "sensor.only", tok.Data.Entities[0].ID)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Classify(node(map[string]any{"$data": map[string]any{}}))
		assert.Error(t, err)

		_, err = Classify(node(map[string]any{"$data": map[string]any{"entities": []any{}}}))
		assert.Error(t, err)

		_, err = Classify(node(map[string]any{"$data": map[string]any{"entities": []any{7}}}))
		assert.Error(t, err)

		_, err = Classify(node(map[string]any{"$data": "sensor.a"}))
		assert.Error(t, err)
	})
}

func TestClassifyHistory(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$history": map[string]any{
			"entities": []any{"sensor.temp"},
		}}))
		require.NoError(t, err)
		h := tok.History
		assert.Equal(t, 24.0, h.Hours)
		assert.Equal(t, transform.CoerceNumber, h.Coerce)
		assert.Equal(t, ModeValues, h.Mode)
		assert.Equal(t, 0, h.Points)
		assert.Equal(t, SampleMean, h.Sample)
		assert.Equal(t, 30.0, h.CacheSeconds)
		assert.Equal(t, "line", h.SeriesType)
		assert.False(t, h.MinimalResponse)
		assert.Nil(t, h.Start)
		assert.Nil(t, h.End)
	})

	t.Run("options", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$history": map[string]any{
			"entities":         []any{"sensor.temp"},
			"hours":            6,
			"end":              "2026-08-22T12:00:00Z",
			"mode":             "series",
			"points":           100,
			"sample":           "last",
			"cache_seconds":    60,
			"series_type":      "bar",
			"minimal_response": true,
			"scale":            0.001,
			"overrides": map[string]any{
				"temp": map[string]any{"color": "#ff0000"},
				"bad":  "not an object",
			},
		}}))
		require.NoError(t, err)
		h := tok.History
		assert.Equal(t, 6.0, h.Hours)
		assert.Equal(t, "2026-08-22T12:00:00Z", h.End)
		assert.Equal(t, ModeSeries, h.Mode)
		assert.Equal(t, 100, h.Points)
		assert.Equal(t, SampleLast, h.Sample)
		assert.Equal(t, 60.0, h.CacheSeconds)
		assert.Equal(t, "bar", h.SeriesType)
		assert.True(t, h.MinimalResponse)
		require.NotNil(t, h.Transform)
		assert.Equal(t, 0.001, *h.Transform.Scale)
		require.Contains(t, h.Overrides, "temp")
		assert.NotContains(t, h.Overrides, "bad")
	})

	t.Run("pairs mode not available", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$history": map[string]any{
			"entities": []any{"sensor.temp"},
			"mode":     "pairs",
		}}))
		require.NoError(t, err)
		assert.Equal(t, ModeValues, tok.History.Mode)
	})

	t.Run("epoch end", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$history": map[string]any{
			"entities": []any{"sensor.temp"},
			"end":      1755855600.0,
		}}))
		require.NoError(t, err)
		assert.Equal(t, 1755855600.0, tok.History.End)
	})
}

func TestClassifyStatistics(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$statistics": map[string]any{
			"entities": []any{"sensor.energy"},
		}}))
		require.NoError(t, err)
		s := tok.Statistics
		assert.Equal(t, PeriodHour, s.Period)
		assert.Equal(t, StatMean, s.StatType)
		assert.Equal(t, 1.0, s.Days)
		assert.Equal(t, ModeValues, s.Mode)
		assert.Equal(t, 300.0, s.CacheSeconds)
	})

	t.Run("options", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$statistics": map[string]any{
			"entities":  []any{"sensor.energy"},
			"period":    "day",
			"stat_type": "sum",
			"days":      7,
			"mode":      "pairs",
		}}))
		require.NoError(t, err)
		s := tok.Statistics
		assert.Equal(t, PeriodDay, s.Period)
		assert.Equal(t, StatSum, s.StatType)
		assert.Equal(t, 7.0, s.Days)
		assert.Equal(t, ModePairs, s.Mode)
	})

	t.Run("unknown values fall back", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$statistics": map[string]any{
			"entities":  []any{"sensor.energy"},
			"period":    "fortnight",
			"stat_type": "median",
		}}))
		require.NoError(t, err)
		assert.Equal(t, PeriodHour, tok.Statistics.Period)
		assert.Equal(t, StatMean, tok.Statistics.StatType)
	})
}

func TestParseTransformMapStage(t *testing.T) {
	t.Run("log forms", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "log": true,
		}}))
		require.NoError(t, err)
		require.NotNil(t, tok.Entity.Transform)
		assert.Equal(t, transform.MapLog, tok.Entity.Transform.Map.Op)

		tok, err = Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "log": 2,
		}}))
		require.NoError(t, err)
		assert.Equal(t, 2.0, tok.Entity.Transform.Map.Base)

		tok, err = Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "log": map[string]any{"base": 2, "add": 1},
		}}))
		require.NoError(t, err)
		assert.Equal(t, 2.0, tok.Entity.Transform.Map.Base)
		assert.Equal(t, 1.0, tok.Entity.Transform.Map.Add)
	})

	t.Run("sqrt and pow", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "sqrt": true,
		}}))
		require.NoError(t, err)
		assert.Equal(t, transform.MapSqrt, tok.Entity.Transform.Map.Op)

		tok, err = Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "pow": 2,
		}}))
		require.NoError(t, err)
		assert.Equal(t, transform.MapPow, tok.Entity.Transform.Map.Op)
		assert.Equal(t, 2.0, tok.Entity.Transform.Map.Exponent)
	})

	t.Run("log false falls through to sqrt", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "log": false, "sqrt": true,
		}}))
		require.NoError(t, err)
		assert.Equal(t, transform.MapSqrt, tok.Entity.Transform.Map.Op)
	})

	t.Run("clamp", func(t *testing.T) {
		tok, err := Classify(node(map[string]any{"$entity": map[string]any{
			"id": "sensor.x", "clamp": []any{0, 100},
		}}))
		require.NoError(t, err)
		require.NotNil(t, tok.Entity.Transform)
		assert.Equal(t, [2]float64{0, 100}, *tok.Entity.Transform.Clamp)
	})
}

func TestDeriveName(t *testing.T) {
	assert.Equal(t, "living temp", DeriveName("sensor.living_temp"))
	assert.Equal(t, "power", DeriveName("sensor.power"))
	assert.Equal(t, "no domain", DeriveName("no_domain"))

	spec := EntitySpec{ID: "sensor.living_temp", Name: "Wohnzimmer"}
	assert.Equal(t, "Wohnzimmer", spec.DisplayName())
	assert.Equal(t, "living temp", EntitySpec{ID: "sensor.living_temp"}.DisplayName())
}

func TestEntityIDs(t *testing.T) {
	tok, err := Classify(node(map[string]any{"$data": map[string]any{
		"entities": []any{"sensor.a", map[string]any{"id": "sensor.b"}},
	}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor.a", "sensor.b"}, tok.EntityIDs())

	tok, err = Classify(node(map[string]any{"$entity": "sensor.solo"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor.solo"}, tok.EntityIDs())
}

func TestContainsTimeSeries(t *testing.T) {
	t.Run("deep inside arrays and objects", func(t *testing.T) {
		tree := node(map[string]any{
			"series": []any{
				map[string]any{
					"data": map[string]any{
						"$history": map[string]any{"entities": []any{"sensor.a"}},
					},
				},
			},
		})
		assert.True(t, ContainsTimeSeries(tree))
	})

	t.Run("statistics count too", func(t *testing.T) {
		tree := node(map[string]any{
			"data": map[string]any{"$statistics": map[string]any{"entities": []any{"s.a"}}},
		})
		assert.True(t, ContainsTimeSeries(tree))
	})

	t.Run("entity and data generators do not", func(t *testing.T) {
		tree := node(map[string]any{
			"a": map[string]any{"$entity": "sensor.a"},
			"b": map[string]any{"$data": map[string]any{"entities": []any{"sensor.b"}}},
		})
		assert.False(t, ContainsTimeSeries(tree))
	})

	t.Run("precedence shadows a history key", func(t *testing.T) {
		tree := node(map[string]any{
			"$entity":  "sensor.a",
			"$history": map[string]any{"entities": []any{"sensor.b"}},
		})
		assert.False(t, ContainsTimeSeries(tree))
	})
}

func TestMinCacheSeconds(t *testing.T) {
	t.Run("minimum across generators", func(t *testing.T) {
		tree := node(map[string]any{
			"a": map[string]any{"$history": map[string]any{
				"entities": []any{"sensor.a"}, "cache_seconds": 10,
			}},
			"b": map[string]any{"$statistics": map[string]any{
				"entities": []any{"sensor.b"},
			}},
		})
		assert.Equal(t, 10.0, MinCacheSeconds(tree, 60))
	})

	t.Run("variant defaults apply", func(t *testing.T) {
		tree := node(map[string]any{
			"a": map[string]any{"$history": map[string]any{"entities": []any{"sensor.a"}}},
		})
		assert.Equal(t, 30.0, MinCacheSeconds(tree, 60))

		tree = node(map[string]any{
			"a": map[string]any{"$statistics": map[string]any{"entities": []any{"sensor.a"}}},
		})
		assert.Equal(t, 300.0, MinCacheSeconds(tree, 60))
	})

	t.Run("fallback when no time series", func(t *testing.T) {
		tree := node(map[string]any{"title": "static"})
		assert.Equal(t, 60.0, MinCacheSeconds(tree, 60))
	})
}
