package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("v")))

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	// Stored values are isolated from caller mutations.
	got[0] = 'x'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), again)
}

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	_, err := db.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDBDelete(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Delete([]byte("k")))
	_, err := db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is a no-op.
	require.NoError(t, db.Delete([]byte("k")))
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}
