package docyaml

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

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAMLPanel(t *testing.T) {
	path := writeFile(t, "temps.yaml", `
panel: living_room
option:
  title: Living Room
  series:
    - "$history":
        entities: ["sensor.temp"]
        hours: 12
  smooth: true
`)

	panels, err := NewLoader().Load(testCtx(), path)
	require.NoError(t, err)
	require.Len(t, panels, 1)

	assert.Equal(t, "living_room", panels[0].Name)
	want := document.MustFromGo(map[string]any{
		"title": "Living Room",
		"series": []any{
			map[string]any{
				"$history": map[string]any{
					"entities": []any{"sensor.temp"},
					"hours":    12,
				},
			},
		},
		"smooth": true,
	})
	assert.Equal(t, want, panels[0].Option)
}

func TestLoadNameDefaultsToFileStem(t *testing.T) {
	path := writeFile(t, "hallway-motion.yml", `
option:
  value: {"$entity": "binary_sensor.motion"}
`)

	panels, err := NewLoader().Load(testCtx(), path)
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, "hallway-motion", panels[0].Name)
}

func TestLoadJSONPanel(t *testing.T) {
	path := writeFile(t, "energy.json", `{
  "panel": "energy",
  "option": {"$statistics": {"entities": ["sensor.grid"], "period": "hour"}}
}`)

	panels, err := NewLoader().Load(testCtx(), path)
	require.NoError(t, err)
	require.Len(t, panels, 1)
	assert.Equal(t, "energy", panels[0].Name)
	want := document.MustFromGo(map[string]any{
		"$statistics": map[string]any{
			"entities": []any{"sensor.grid"},
			"period":   "hour",
		},
	})
	assert.Equal(t, want, panels[0].Option)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().Load(testCtx(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read panel file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "panel: [unclosed")
		_, err := NewLoader().Load(testCtx(), path)
		assert.ErrorContains(t, err, "failed to parse panel file")
	})

	t.Run("no option tree", func(t *testing.T) {
		path := writeFile(t, "empty.yaml", "panel: ghost\n")
		_, err := NewLoader().Load(testCtx(), path)
		assert.ErrorContains(t, err, "has no option tree")
	})
}
