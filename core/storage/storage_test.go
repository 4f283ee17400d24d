package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("registry/agents", record{Name: "research", Count: 3}))

	var out record
	require.NoError(t, store.Read("registry/agents", &out))
	assert.Equal(t, record{Name: "research", Count: 3}, out)
}

func TestFileStoreFilesAreReadableJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write("plans/p1", record{Name: "plan"}))

	data, err := os.ReadFile(filepath.Join(dir, "plans", "p1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n")
	assert.Contains(t, string(data), `"name": "plan"`)
}

func TestFileStoreReadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	var out record
	err = store.Read("absent", &out)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("a", record{}))
	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("a"))

	var out record
	require.ErrorIs(t, store.Read("a", &out), ErrNotFound)
}

func TestFileStoreRejectsTraversalKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Write("../escape", record{}), ErrInvalidKey)
	assert.ErrorIs(t, store.Write("", record{}), ErrInvalidKey)
}

func TestFileStoreList(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Write("registry/agents", record{}))
	require.NoError(t, store.Write("registry/roles", record{}))
	require.NoError(t, store.Write("plans/p1", record{}))

	keys, err := store.List("registry/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"registry/agents", "registry/roles"}, keys)
}

func TestMemoryStoreMatchesFileStoreBehavior(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Write("k", record{Name: "x"}))
	var out record
	require.NoError(t, store.Read("k", &out))
	assert.Equal(t, "x", out.Name)

	require.NoError(t, store.Delete("k"))
	require.ErrorIs(t, store.Read("k", &out), ErrNotFound)

	require.NoError(t, store.Write("a/1", record{}))
	require.NoError(t, store.Write("b/1", record{}))
	keys, err := store.List("a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1"}, keys)
}
