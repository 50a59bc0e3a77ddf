package zlog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nhle/dabir-notify/internal/zlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dabir.log")
	closeFn, err := zlog.Init(zlog.Options{Path: path, Level: "debug"})
	require.NoError(t, err)
	t.Cleanup(func() { zlog.SetLogger(nil) })

	zlog.Info("push connected", zap.String("url", "ws://example/ws/notifications/"))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"push connected"`)
	assert.Contains(t, string(data), `"url":"ws://example/ws/notifications/"`)
}

func TestInitRejectsBadLevel(t *testing.T) {
	_, err := zlog.Init(zlog.Options{Path: filepath.Join(t.TempDir(), "x.log"), Level: "loud"})
	assert.Error(t, err)
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	zlog.SetLogger(zap.New(core))
	t.Cleanup(func() { zlog.SetLogger(nil) })

	zlog.Info("dropped")
	zlog.Warn("kept", zap.Int("n", 1))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}
