package sysinfo

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProc(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func TestSnapshotReadsProcfs(t *testing.T) {
	root := writeProc(t, map[string]string{
		"loadavg": "0.10 0.25 0.30 1/100 1234\n",
		"meminfo": "MemTotal:       16000000 kB\nMemFree:         1000000 kB\nMemAvailable:    6000000 kB\n",
	})

	snap := NewProviderAt(nil, root).Snapshot()
	assert.Equal(t, "0.25", snap.Load5)
	assert.Equal(t, "10000000", snap.UsedMemoryKB)

	goroutines, err := strconv.Atoi(snap.Goroutines)
	require.NoError(t, err)
	assert.Positive(t, goroutines)
}

func TestSnapshotDegradesToUnknown(t *testing.T) {
	snap := NewProviderAt(nil, t.TempDir()).Snapshot()
	assert.Equal(t, Unknown, snap.Load5)
	assert.Equal(t, Unknown, snap.UsedMemoryKB)
	assert.NotEmpty(t, snap.Goroutines)

	missing := NewProviderAt(nil, filepath.Join(t.TempDir(), "absent")).Snapshot()
	assert.Equal(t, Unknown, missing.Load5)
}
