package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, shutdown, err := Setup(Options{Format: FormatText, Writer: &buf})
	require.NoError(t, err)

	logger.Info("run started", "graph", "vecadd")
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "run started")
	assert.Contains(t, out, "graph=vecadd")
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := Setup(Options{Level: slog.LevelWarn, Writer: &buf})
	require.NoError(t, err)

	logger.Debug("noise")
	logger.Info("still noise")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "noise")
	assert.Contains(t, out, "kept")
}

func TestSetup_OTelFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, shutdown, err := Setup(Options{Format: FormatOTel, Writer: &buf})
	require.NoError(t, err)

	logger.Info("run completed", "status", "completed")
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "run completed")
}

func TestSetup_UnknownFormat(t *testing.T) {
	_, _, err := Setup(Options{Format: "xml"})
	assert.Error(t, err)
}
