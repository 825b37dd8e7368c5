package anchor

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"anchorledger/storage"
)

func hashOf(label string) Hash {
	return ethcrypto.Keccak256Hash([]byte(label))
}

func TestStoreRecordIfNew(t *testing.T) {
	tx := storage.NewTx(storage.NewMemDB())
	store := NewStore(tx)
	user := common.HexToAddress("0x01")

	_, _, err := store.RecordIfNew(user, ActionAddAsset, Hash{}, t0)
	require.ErrorIs(t, err, ErrInvalidDataHash)

	record, created, err := store.RecordIfNew(user, ActionAddAsset, hashOf("a"), t0)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, RecordID(user, hashOf("a")), record.ID())

	dup, created, err := store.RecordIfNew(user, ActionRebalance, hashOf("a"), t0+100)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, record, dup)

	count, err := store.Count(user)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	ok, err := store.Exists(user, hashOf("a"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Exists(common.HexToAddress("0x02"), hashOf("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreHistoryPagination(t *testing.T) {
	db := storage.NewMemDB()
	tx := storage.NewTx(db)
	store := NewStore(tx)
	user := common.HexToAddress("0x01")
	for i := 0; i < 5; i++ {
		_, _, err := store.RecordIfNew(user, ActionType(i%4), hashOf(string(rune('a'+i))), t0+uint64(i))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	reader := NewStore(storage.NewTx(db))
	page, err := reader.History(user, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, hashOf("b"), page[0].DataHash)
	require.Equal(t, hashOf("c"), page[1].DataHash)
	require.Equal(t, ActionDeleteAsset, page[1].ActionType)

	tail, err := reader.History(user, 3, 50)
	require.NoError(t, err)
	require.Len(t, tail, 2)

	all, err := reader.History(user, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	empty, err := reader.History(user, 5, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStoreHistoryClampsLimit(t *testing.T) {
	tx := storage.NewTx(storage.NewMemDB())
	store := NewStore(tx)
	user := common.HexToAddress("0x01")
	for i := 0; i < MaxHistoryPage+5; i++ {
		var h Hash
		h[0] = 1
		h[31] = byte(i)
		h[30] = byte(i >> 8)
		_, _, err := store.RecordIfNew(user, ActionAddAsset, h, t0)
		require.NoError(t, err)
	}
	page, err := store.History(user, 0, 1000)
	require.NoError(t, err)
	require.Len(t, page, MaxHistoryPage)
}
