package dochcl

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panels.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMultiplePanels(t *testing.T) {
	path := writeFile(t, `
panel "living_room" {
  option = {
    title = "Living Room"
    series = [
      {
        "$history" = {
          entities = ["sensor.temp", "sensor.out"]
          hours    = 12
        }
      },
    ]
    smooth = true
  }
}

panel "doors" {
  option = {
    "$data" = {
      entities = ["binary_sensor.front"]
      coerce   = "bool"
    }
  }
}
`)

	panels, err := NewLoader().Load(testCtx(), path)
	require.NoError(t, err)
	require.Len(t, panels, 2)

	assert.Equal(t, "living_room", panels[0].Name)
	wantFirst := document.MustFromGo(map[string]any{
		"title": "Living Room",
		"series": []any{
			map[string]any{
				"$history": map[string]any{
					"entities": []any{"sensor.temp", "sensor.out"},
					"hours":    12,
				},
			},
		},
		"smooth": true,
	})
	assert.Equal(t, wantFirst, panels[0].Option)

	assert.Equal(t, "doors", panels[1].Name)
	wantSecond := document.MustFromGo(map[string]any{
		"$data": map[string]any{
			"entities": []any{"binary_sensor.front"},
			"coerce":   "bool",
		},
	})
	assert.Equal(t, wantSecond, panels[1].Option)
}

func TestLoadScalarAndNullValues(t *testing.T) {
	path := writeFile(t, `
panel "mixed" {
  option = {
    count   = 2.5
    label   = "x"
    enabled = false
    gap     = null
  }
}
`)

	panels, err := NewLoader().Load(testCtx(), path)
	require.NoError(t, err)
	require.Len(t, panels, 1)

	want := document.ObjectNode{
		"count":   document.Number(2.5),
		"label":   document.String("x"),
		"enabled": document.Bool(false),
		"gap":     document.Null(),
	}
	assert.Equal(t, document.Node(want), panels[0].Option)
}

func TestLoadErrors(t *testing.T) {
	t.Run("unparsable file", func(t *testing.T) {
		path := writeFile(t, `panel "broken" {`)
		_, err := NewLoader().Load(testCtx(), path)
		assert.ErrorContains(t, err, "failed to parse HCL file")
	})

	t.Run("missing option attribute", func(t *testing.T) {
		path := writeFile(t, `panel "bare" {}`)
		_, err := NewLoader().Load(testCtx(), path)
		assert.ErrorContains(t, err, "failed to decode HCL file")
	})

	t.Run("non-literal option", func(t *testing.T) {
		path := writeFile(t, `
panel "dynamic" {
  option = { value = var.reading }
}
`)
		_, err := NewLoader().Load(testCtx(), path)
		assert.ErrorContains(t, err, `invalid option for panel "dynamic"`)
	})

	t.Run("null option tree", func(t *testing.T) {
		path := writeFile(t, `
panel "ghost" {
  option = null
}
`)
		_, err := NewLoader().Load(testCtx(), path)
		assert.ErrorContains(t, err, "has no option tree")
	})
}
