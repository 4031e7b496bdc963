package common

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("chatty")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSetupLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	require.NoError(t, SetupLogger(slog.LevelInfo, "json"))
	require.NoError(t, SetupLogger(slog.LevelInfo, "console"))
	assert.ErrorIs(t, SetupLogger(slog.LevelInfo, "xml"), ErrInvalidConfig)
}

func TestLogHelpers(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	LogInfo("sweep complete", Fields{"executed": 2})
	LogDebug("action processed", Fields{"status": "noop"})
	LogError(errors.New("disk full"), "backup failed", Fields{"kind": "BACKUP"})

	out := buf.String()
	assert.Contains(t, out, "msg=\"sweep complete\" executed=2")
	assert.NotContains(t, out, "action processed")
	assert.Contains(t, out, "level=ERROR msg=\"backup failed\" error=\"disk full\" kind=BACKUP")

	buf.Reset()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	LogDebug("action processed", Fields{"status": "noop"})
	assert.Contains(t, buf.String(), "level=DEBUG msg=\"action processed\" status=noop")
}
