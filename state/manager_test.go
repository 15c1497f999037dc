package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stayer/storage"
)

type record struct {
	Owner  string   `json:"owner"`
	Amount *big.Int `json:"amount"`
}

func TestManagerRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	var missing record
	ok, err := mgr.KVGet([]byte("vault/position/alice"), &missing)
	require.NoError(t, err)
	require.False(t, ok)

	stored := record{Owner: "alice", Amount: big.NewInt(100_000_000_000)}
	require.NoError(t, mgr.KVPut([]byte("vault/position/alice"), stored))

	var loaded record
	ok, err = mgr.KVGet([]byte("vault/position/alice"), &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", loaded.Owner)
	require.Zero(t, loaded.Amount.Cmp(big.NewInt(100_000_000_000)))
}

func TestManagerDelete(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.KVPut([]byte("k"), "v"))
	require.NoError(t, mgr.KVDelete([]byte("k")))

	var out string
	ok, err := mgr.KVGet([]byte("k"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting an absent key is a no-op.
	require.NoError(t, mgr.KVDelete([]byte("k")))
}

func TestManagerNilDatabase(t *testing.T) {
	var mgr *Manager
	_, err := mgr.KVGet([]byte("k"), nil)
	require.Error(t, err)
	require.Error(t, mgr.KVPut([]byte("k"), "v"))
}
