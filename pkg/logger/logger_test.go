package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func restoreLog(t *testing.T) {
	prev := Log
	t.Cleanup(func() {
		Log = prev
		zap.ReplaceGlobals(prev)
	})
}

func TestInit_WritesJSONToFile(t *testing.T) {
	restoreLog(t)
	path := filepath.Join(t.TempDir(), "app.log")

	require.NoError(t, Init("info", "json", path))
	Debug("hidden")
	Info("analysis completed", zap.String("survey_type", "citizen"))
	Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "analysis completed", entry["message"])
	assert.Equal(t, "citizen", entry["survey_type"])
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	restoreLog(t)
	err := Init("chatty", "json", "stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestGetLogger_UsableBeforeInit(t *testing.T) {
	restoreLog(t)
	Log = zap.NewNop()
	assert.NotPanics(t, func() {
		GetLogger().Info("no-op")
		Warn("no-op")
	})
}
