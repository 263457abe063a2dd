package progress

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestMarkAndQuery(t *testing.T) {
	store, _ := openTestStore(t)

	done, err := store.IsDone("post1")
	require.NoError(t, err)
	assert.False(t, done, "fresh store should have nothing marked")

	require.NoError(t, store.MarkDone("post1"))

	done, err = store.IsDone("post1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = store.IsDone("post2")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkDoneIdempotent(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.MarkDone("post1"))
	require.NoError(t, store.MarkDone("post1"))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)
	require.NoError(t, store.MarkDone("post1"))
	require.NoError(t, store.MarkDone("post2"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	done, err := reopened.IsDone("post1")
	require.NoError(t, err)
	assert.True(t, done, "marks must survive across runs")

	n, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
