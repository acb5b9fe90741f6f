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

func TestFileMode(t *testing.T) {
	var m FileMode
	require.NoError(t, m.Set("rotate"))
	assert.Equal(t, FileModeRotate, m)
	require.NoError(t, m.Set(""))
	assert.Equal(t, FileModeAppend, m)
	assert.EqualError(t, m.Set("sideways"), "invalid file mode: sideways")
}

func readEntries(t *testing.T, path string) []map[string]interface{} {
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.log")
	logger, err := New(Config{Path: path, Mode: FileModeTruncate, Level: zap.DebugLevel})
	require.NoError(t, err)
	logger.Named("kernels").Debug("Kernel compiled", zap.String("compiler", "host"))
	require.NoError(t, logger.Sync())
	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "Kernel compiled", entries[0]["msg"])
	assert.Equal(t, "kernels", entries[0]["logger"])
	assert.Equal(t, "host", entries[0]["compiler"])
}

func TestNameFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.log")
	logger, err := New(Config{Path: path, Level: zap.InfoLevel, Name: "interp"})
	require.NoError(t, err)
	logger.Named("kernels").Info("dropped")
	logger.Named("interp").Info("kept")
	logger.Named("interp").Debug("below level")
	require.NoError(t, logger.Sync())
	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
}
