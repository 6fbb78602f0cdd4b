package credential_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GrooveGauge/internal/credential"
)

func testStore(t *testing.T, store credential.Store) {
	_, err := store.Get(credential.DefaultServer)
	assert.ErrorIs(t, err, credential.ErrNotFound)

	require.NoError(t, store.Set(credential.DefaultServer, "token-1"))
	require.NoError(t, store.Set("other.example", "token-2"))

	secret, err := store.Get(credential.DefaultServer)
	require.NoError(t, err)
	assert.Equal(t, "token-1", secret)

	require.NoError(t, store.Set(credential.DefaultServer, "token-3"))
	secret, err = store.Get(credential.DefaultServer)
	require.NoError(t, err)
	assert.Equal(t, "token-3", secret)

	require.NoError(t, store.Clear(credential.DefaultServer))
	require.NoError(t, store.Clear(credential.DefaultServer))
	_, err = store.Get(credential.DefaultServer)
	assert.ErrorIs(t, err, credential.ErrNotFound)

	secret, err = store.Get("other.example")
	require.NoError(t, err)
	assert.Equal(t, "token-2", secret)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, credential.NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	testStore(t, credential.NewFileStore(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, credential.NewFileStore(path).Set(credential.DefaultServer, "abc"))

	secret, err := credential.NewFileStore(path).Get(credential.DefaultServer)
	require.NoError(t, err)
	assert.Equal(t, "abc", secret)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := credential.NewFileStore(path).Get(credential.DefaultServer)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, credential.ErrNotFound)
}

func TestTokenSource(t *testing.T) {
	store := credential.NewMemoryStore()
	ts := credential.TokenSource{Store: store, Server: credential.DefaultServer}

	token, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Set(credential.DefaultServer, "bearer-me"))
	token, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bearer-me", token)
}
