package anchor

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"anchorledger/storage"
)

func TestNonceRegistryConsume(t *testing.T) {
	db := storage.NewMemDB()
	tx := storage.NewTx(db)
	nonces := NewNonceRegistry(tx)
	user := common.HexToAddress("0xaa")

	current, err := nonces.Current(user)
	require.NoError(t, err)
	require.True(t, current.IsZero())

	require.NoError(t, nonces.Consume(user, uint256.NewInt(0)))
	require.ErrorIs(t, nonces.Consume(user, uint256.NewInt(0)), ErrInvalidSignature)
	require.ErrorIs(t, nonces.Consume(user, uint256.NewInt(5)), ErrInvalidSignature)
	require.ErrorIs(t, nonces.Consume(user, nil), ErrInvalidSignature)
	require.NoError(t, nonces.Consume(user, uint256.NewInt(1)))
	require.NoError(t, tx.Commit())

	reloaded, err := NewNonceRegistry(storage.NewTx(db)).Current(user)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reloaded.Uint64())

	other, err := NewNonceRegistry(storage.NewTx(db)).Current(common.HexToAddress("0xbb"))
	require.NoError(t, err)
	require.True(t, other.IsZero())
}

func TestNonceRegistryRejectsOverflow(t *testing.T) {
	tx := storage.NewTx(storage.NewMemDB())
	user := common.HexToAddress("0xaa")
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, tx.KVPut(nonceKey(user), max.Bytes()))
	require.ErrorIs(t, NewNonceRegistry(tx).Consume(user, max), ErrInvalidSignature)
}
