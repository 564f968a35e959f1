package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
)

func sum(t *testing.T, data []byte) string {
	t.Helper()
	h, err := hasher.SHA256{}.Sum(data)
	require.NoError(t, err)
	return h
}

func TestPutGetDelete(t *testing.T) {
	area, err := Open(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)

	data := []byte("normalized bytes")
	hash := sum(t, data)

	assert.False(t, area.Has(hash))
	_, err = area.Get(hash)
	assert.ErrorIs(t, err, ErrMissing)

	require.NoError(t, area.Put(hash, data))
	assert.True(t, area.Has(hash))

	got, err := area.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// No temp file left behind
	_, err = os.Stat(filepath.Join(area.Dir(), hash[:2], hash+".tmp"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, area.Delete(hash))
	require.NoError(t, area.Delete(hash))
	assert.False(t, area.Has(hash))
}

func TestGetDamagedContent(t *testing.T) {
	area, err := Open(t.TempDir())
	require.NoError(t, err)

	hash := sum(t, []byte("original"))
	require.NoError(t, area.Put(hash, []byte("tampered")))

	_, err = area.Get(hash)
	assert.ErrorIs(t, err, ErrMissing)
	assert.False(t, area.Has(hash), "damaged content should be removed")
}

func TestInvalidKey(t *testing.T) {
	area, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "abc", "../../etc/passwd", "ABCDEF"} {
		assert.ErrorIs(t, area.Put(key, []byte("x")), ErrInvalidKey, key)
		_, err := area.Get(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.False(t, area.Has(key))
	}
}

func TestClear(t *testing.T) {
	area, err := Open(t.TempDir())
	require.NoError(t, err)

	a, b := []byte("a"), []byte("b")
	require.NoError(t, area.Put(sum(t, a), a))
	require.NoError(t, area.Put(sum(t, b), b))

	require.NoError(t, area.Clear())
	assert.False(t, area.Has(sum(t, a)))
	assert.False(t, area.Has(sum(t, b)))
}
