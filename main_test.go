package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfa-probe/mfa-probe/config"
)

func TestSetupLoggerWritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, cleanup, err := setupLogger(config.Config{LogLevel: "warn", LogDir: dir})
	require.NoError(t, err)

	require.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	logger.Warn("mail poll finished", "found", 1)
	require.NoError(t, cleanup())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "mfaprobe-"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(data), `msg="mail poll finished" found=1`)
}

func TestSetupLoggerLevels(t *testing.T) {
	logger, cleanup, err := setupLogger(config.Config{LogLevel: "debug"})
	require.NoError(t, err)
	require.NoError(t, cleanup())
	require.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
