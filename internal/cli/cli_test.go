package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	out := &bytes.Buffer{}
	inv, shouldExit, err := Parse([]string{
		"-hub-url", "ws://hub.local:6789",
		"-api-url", "http://hub.local:8123",
		"-api-token", "tok",
		"-addr", "127.0.0.1:9000",
		"-log-format", "text",
		"-log-level", "debug",
		"-cache-seconds", "60",
		"-once",
		"./panels",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)

	assert.True(t, inv.Once)
	assert.Equal(t, "./panels", inv.Config.PanelsPath)
	assert.Equal(t, "ws://hub.local:6789", inv.Config.HubURL)
	assert.Equal(t, "/", inv.Config.HubNamespace)
	assert.Equal(t, "http://hub.local:8123", inv.Config.APIBaseURL)
	assert.Equal(t, "tok", inv.Config.APIToken)
	assert.Equal(t, "127.0.0.1:9000", inv.Config.ServerAddr)
	assert.Equal(t, "text", inv.Config.LogFormat)
	assert.Equal(t, "debug", inv.Config.LogLevel)
	assert.Equal(t, 60, inv.Config.CacheFallbackSeconds)
}

func TestParsePanelsFlagPrecedence(t *testing.T) {
	out := &bytes.Buffer{}
	inv, shouldExit, err := Parse([]string{"-panels", "./a", "./b"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "./a", inv.Config.PanelsPath)

	inv, _, err = Parse([]string{"-p", "./c"}, out)
	require.NoError(t, err)
	assert.Equal(t, "./c", inv.Config.PanelsPath)
}

func TestParseHelp(t *testing.T) {
	out := &bytes.Buffer{}
	_, shouldExit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseNoPathPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	_, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Contains(t, out.String(), "PANELS_PATH")
}

func TestParseErrors(t *testing.T) {
	t.Run("unknown flag", func(t *testing.T) {
		_, _, err := Parse([]string{"--nope"}, &bytes.Buffer{})
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})

	t.Run("bad log format", func(t *testing.T) {
		_, _, err := Parse([]string{"-log-format", "xml", "./panels"}, &bytes.Buffer{})
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-format")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, _, err := Parse([]string{"-log-level", "loud", "./panels"}, &bytes.Buffer{})
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "log-level")
	})
}
