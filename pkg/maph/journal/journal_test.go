package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndActiveKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.AppendInsert([]byte("alpha")))
	require.NoError(t, j.AppendInsert([]byte("beta")))
	require.NoError(t, j.AppendRemove([]byte("alpha")))
	require.NoError(t, j.AppendInsert([]byte("gamma")))

	active := toSet(j.ActiveKeys())
	require.Equal(t, map[string]bool{"beta": true, "gamma": true}, active)
}

func TestReplayReconstructsActiveSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, j.AppendInsert([]byte("one")))
	require.NoError(t, j.AppendInsert([]byte("two")))
	require.NoError(t, j.AppendRemove([]byte("two")))
	require.NoError(t, j.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	active := toSet(j2.ActiveKeys())
	require.Equal(t, map[string]bool{"one": true}, active)
}

// TestReplayToleratesTruncatedTail verifies that a journal whose last
// record was cut short mid-write (simulating a crash between two
// Write calls) still recovers every well-formed record before the cut.
func TestReplayToleratesTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.AppendInsert([]byte("whole")))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.Write([]byte("I:10:trunc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	active := toSet(j2.ActiveKeys())
	require.Equal(t, map[string]bool{"whole": true}, active)
}

func TestCompactKeepsOnlyActiveKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.AppendInsert([]byte("keep")))
	require.NoError(t, j.AppendInsert([]byte("drop")))
	require.NoError(t, j.AppendRemove([]byte("drop")))

	require.NoError(t, j.Compact())

	active := toSet(j.ActiveKeys())
	require.Equal(t, map[string]bool{"keep": true}, active)

	require.NoError(t, j.AppendInsert([]byte("after-compact")))
	active = toSet(j.ActiveKeys())
	require.Equal(t, map[string]bool{"keep": true, "after-compact": true}, active)
}

func toSet(keys [][]byte) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[string(k)] = true
	}
	return out
}
