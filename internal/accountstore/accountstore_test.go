package accountstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInitializesOnFirstAccess(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "a_account.json"), 200)
	balance, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 200.0, balance)
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_account.json")
	s := New(path, 200)
	require.NoError(t, s.EnsureInitialized())
	require.NoError(t, s.Write(50))
	require.NoError(t, s.EnsureInitialized())

	balance, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance, "EnsureInitialized must not clobber an already-initialized balance")
}

func TestWritePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_account.json")
	s1 := New(path, 200)
	require.NoError(t, s1.Write(350))

	s2 := New(path, 0)
	balance, err := s2.Read()
	require.NoError(t, err)
	assert.Equal(t, 350.0, balance)
}

func TestReadCachesBetweenCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_account.json")
	s := New(path, 200)
	_, err := s.Read()
	require.NoError(t, err)

	// Overwrite the balance through a distinct Store, bypassing s's cache.
	other := New(path, 0)
	require.NoError(t, other.Write(999))

	balance, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 200.0, balance, "Read must serve from cache, not re-read the file on every call")
}
