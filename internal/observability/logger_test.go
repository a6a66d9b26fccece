package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewRunLogger_WritesDebugFile(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "5")
	var console bytes.Buffer

	opts := DefaultLoggerOptions()
	opts.Console = zapcore.AddSync(&console)

	logger, closeFn, err := NewRunLogger(opts, runDir, "5")
	require.NoError(t, err)

	logger.Debug("debug only in file", zap.String("stage", "INIT"))
	logger.Info("visible everywhere")
	require.NoError(t, closeFn())

	assert.NotContains(t, console.String(), "debug only in file")
	assert.Contains(t, console.String(), "visible everywhere")

	f, err := os.Open(filepath.Join(runDir, DebugLogName))
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "DEBUG", entries[0]["level"])
	assert.Equal(t, "5", entries[0]["run_id"])
	assert.Equal(t, "INIT", entries[0]["stage"])
	assert.Equal(t, "run", entries[1]["logger"])
}

func TestNewRunLogger_SeparateFilesPerRun(t *testing.T) {
	root := t.TempDir()
	opts := DefaultLoggerOptions()
	opts.Console = zapcore.AddSync(&bytes.Buffer{})

	a, closeA, err := NewRunLogger(opts, filepath.Join(root, "0"), "0")
	require.NoError(t, err)
	b, closeB, err := NewRunLogger(opts, filepath.Join(root, "1"), "1")
	require.NoError(t, err)

	a.Info("from a")
	b.Info("from b")
	require.NoError(t, closeA())
	require.NoError(t, closeB())

	dataA, err := os.ReadFile(filepath.Join(root, "0", DebugLogName))
	require.NoError(t, err)
	dataB, err := os.ReadFile(filepath.Join(root, "1", DebugLogName))
	require.NoError(t, err)

	assert.Contains(t, string(dataA), "from a")
	assert.NotContains(t, string(dataA), "from b")
	assert.Contains(t, string(dataB), "from b")
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	logger := NewLogger(LoggerOptions{Level: "loud", Format: "json", Console: zapcore.AddSync(&console)})

	logger.Debug("hidden")
	logger.Info("shown")
	_ = logger.Sync()

	assert.NotContains(t, console.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(console.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "fee_agent", entry["logger"])
}
