package anchor

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"anchorledger/storage"
)

const t0 = uint64(1_700_000_000)

func TestCheckWindowQuotaAndReset(t *testing.T) {
	limits := DefaultLimits()
	var (
		w      Window
		exists bool
		err    error
	)
	for i := uint64(0); i < 10; i++ {
		w, err = CheckWindow(limits, w, exists, t0+i*61, 1)
		require.NoError(t, err, "anchor %d", i)
		exists = true
	}
	require.Equal(t, uint64(10), w.Count)

	denied, err := CheckWindow(limits, w, true, t0+10*61, 1)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	require.Equal(t, w, denied)

	w, err = CheckWindow(limits, w, true, t0+3600, 1)
	require.NoError(t, err)
	require.Equal(t, t0+3600, w.WindowStart)
	require.Equal(t, uint64(1), w.Count)
}

func TestCheckWindowCooldownSurvivesReset(t *testing.T) {
	limits := Limits{MaxPerWindow: 10, Window: 100 * time.Second, MinDelay: 60 * time.Second}
	w, err := CheckWindow(limits, Window{}, false, t0+90, 1)
	require.NoError(t, err)
	w.WindowStart = t0

	_, err = CheckWindow(limits, w, true, t0+100, 1)
	require.ErrorIs(t, err, ErrTooSoon)

	_, err = CheckWindow(limits, w, true, t0+150, 1)
	require.NoError(t, err)
}

func TestCheckWindowQuotaBeforeCooldown(t *testing.T) {
	limits := Limits{MaxPerWindow: 1, Window: time.Hour, MinDelay: time.Minute}
	w, err := CheckWindow(limits, Window{}, false, t0, 1)
	require.NoError(t, err)
	_, err = CheckWindow(limits, w, true, t0+1, 1)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestCheckWindowBatchMustFit(t *testing.T) {
	limits := DefaultLimits()
	w, err := CheckWindow(limits, Window{}, false, t0, 8)
	require.NoError(t, err)
	_, err = CheckWindow(limits, w, true, t0+120, 3)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	w, err = CheckWindow(limits, w, true, t0+120, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(10), w.Count)

	_, err = CheckWindow(limits, Window{}, false, t0, 11)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	_, err = CheckWindow(limits, Window{}, false, t0, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestWindowReads(t *testing.T) {
	limits := DefaultLimits()
	require.Equal(t, uint64(10), Window{}.Remaining(limits, false, t0))
	require.Zero(t, Window{}.NextAnchorTime(limits))

	w := Window{WindowStart: t0, Count: 4, LastAnchor: t0 + 200, HasAnchored: true}
	require.Equal(t, uint64(6), w.Remaining(limits, true, t0+300))
	require.Equal(t, uint64(10), w.Remaining(limits, true, t0+3600))
	require.Equal(t, t0+260, w.NextAnchorTime(limits))
}

func TestLimitsDefaults(t *testing.T) {
	require.Equal(t, DefaultLimits(), Limits{}.withDefaults())
	custom := Limits{MaxPerWindow: 3, MinDelay: -time.Second}.withDefaults()
	require.Equal(t, uint64(3), custom.MaxPerWindow)
	require.Equal(t, DefaultWindow, custom.Window)
	require.Zero(t, custom.MinDelay)

	noDelay := Limits{MaxPerWindow: 2, Window: time.Minute}
	w, err := CheckWindow(noDelay, Window{}, false, t0, 1)
	require.NoError(t, err)
	_, err = CheckWindow(noDelay, w, true, t0, 1)
	require.NoError(t, err)
}

func TestRateLimiterPersistsThroughState(t *testing.T) {
	db := storage.NewMemDB()
	user := common.HexToAddress("0x01")
	tx := storage.NewTx(db)
	limiter := NewRateLimiter(tx, DefaultLimits())
	require.NoError(t, limiter.CheckAndRecord(user, t0))
	err := limiter.CheckAndRecord(user, t0+10)
	require.True(t, errors.Is(err, ErrTooSoon))
	require.NoError(t, tx.Commit())

	reader := NewRateLimiter(storage.NewTx(db), DefaultLimits())
	remaining, err := reader.Remaining(user, t0+10)
	require.NoError(t, err)
	require.Equal(t, uint64(9), remaining)
	next, err := reader.NextAnchorTime(user)
	require.NoError(t, err)
	require.Equal(t, t0+60, next)

	other, err := reader.Remaining(common.HexToAddress("0x02"), t0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), other)
}
