package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"candlesync/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "candlesync.log")
	log, err := New(config.LogConfig{Level: "info", Format: "json", OutputFile: path, Environment: "prod"})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("engine started", zap.String("symbol", "BTCUSDT"))
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "engine started", entry["msg"])
	assert.Equal(t, "BTCUSDT", entry["symbol"])
}

func TestNewRejectsLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
