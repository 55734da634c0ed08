package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put("index", []byte(`{"v":1}`)))

	blob, err := s.Get("index")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(blob))
}

func TestFileStore_MissingKeyIsNilNil(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	blob, err := s.Get("absent")
	assert.NoError(t, err)
	assert.Nil(t, blob)
}

func TestFileStore_PutReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put("index", []byte("first")))
	require.NoError(t, s.Put("index", []byte("second")))

	blob, err := s.Get("index")
	require.NoError(t, err)
	assert.Equal(t, "second", string(blob))

	// No temp file left behind.
	_, err = os.Stat(filepath.Join(dir, "index.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_CreatesDataDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".lls")

	_, err := NewFileStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
