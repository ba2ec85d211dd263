package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	logger, err := newLogger(dir, "test", false, &console, now)
	require.NoError(t, err)

	logger.Debug("debug only in file")
	logger.Info("Category allocated")
	require.NoError(t, logger.Sync())

	assert.Contains(t, console.String(), "Category allocated")
	assert.NotContains(t, console.String(), "debug only in file")

	data, err := os.ReadFile(filepath.Join(dir, "test_2026-10-16_09-30-00.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "Category allocated", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test", entry["env"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_VerboseConsole(t *testing.T) {
	var console bytes.Buffer

	logger, err := newLogger(t.TempDir(), "", true, &console, time.Now())
	require.NoError(t, err)

	logger.Debug("Transaction conflict, retrying")
	require.NoError(t, logger.Sync())

	assert.Contains(t, console.String(), "Transaction conflict, retrying")
}
