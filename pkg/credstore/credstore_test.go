package credstore

import (
	"testing"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	creds := models.Credentials{Host: "192.168.1.1", Username: "root", Password: "s3cret"}
	require.NoError(t, store.Save(creds))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, creds, loaded)
}

func TestFileStore_LoadWithoutSave(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_Clear(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(models.Credentials{Host: "h", Username: "u", Password: "p"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is fine")

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_OverwriteReplacesCredentials(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(models.Credentials{Host: "a", Username: "u1", Password: "p1"}))
	require.NoError(t, store.Save(models.Credentials{Host: "b", Username: "u2", Password: "p2"}))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", loaded.Host)
	assert.Equal(t, "u2", loaded.Username)
}
