package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/config"
)

func TestSetup_WritesTimestampedFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	start := time.UnixMilli(1485388800000)
	h, err := Setup(config.LoggingConfig{Level: "debug", Format: "json", Dir: dir}, "run-1", start)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1485388800000.log"), h.Path())

	WithComponent("test").Warn("duplicate record found", "id", "42")
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"duplicate record found"`)
	assert.Contains(t, string(data), `"run_id":"run-1"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestFatal_ClosesLogAndExits(t *testing.T) {
	prev := slog.Default()
	prevExit := exitFunc
	t.Cleanup(func() {
		slog.SetDefault(prev)
		exitFunc = prevExit
	})

	var code int
	exitFunc = func(c int) { code = c }

	h, err := Setup(config.LoggingConfig{Format: "text", Dir: t.TempDir()}, "", time.Now())
	require.NoError(t, err)

	Fatal("record source failed", "error", "disk gone")

	assert.Equal(t, 1, code)
	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "record source failed")
	assert.Contains(t, string(data), "fatal=true")

	h.mu.Lock()
	closed := h.file == nil
	h.mu.Unlock()
	assert.True(t, closed)
}
