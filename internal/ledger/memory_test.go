package ledger

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/curveforge/curved/internal/types"
)

func testProfile(token types.Address) types.TokenProfile {
	return types.TokenProfile{
		Token:       token,
		Creator:     "0xcreator",
		Kind:        types.KindZeroSimple,
		TotalSupply: sdkmath.NewIntWithDecimal(1, 24),
		CurveCap:    sdkmath.NewIntWithDecimal(8, 23),
	}
}

func newStoreWithToken(t *testing.T, token types.Address) *MemoryStore {
	t.Helper()
	store := NewMemoryStore([]string{ActorTradingEngine, ActorGraduation, ActorAdmin})

	tx, err := store.Begin(context.Background(), ActorAdmin)
	require.NoError(t, err)
	require.NoError(t, tx.PutProfile(testProfile(token)))
	require.NoError(t, tx.PutRuntime(types.RuntimeState{
		Token:             token,
		EthPool:           sdkmath.ZeroInt(),
		CirculatingSupply: sdkmath.ZeroInt(),
		StartTime:         time.Now(),
		LimitsStart:       time.Now(),
	}))
	require.NoError(t, tx.Commit())
	return store
}

func TestUnknownActorCannotWrite(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")

	tx, err := store.Begin(context.Background(), "price_indexer")
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.SetHolderBalance("0xtoken", "0xmallory", sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnauthorizedWriter)
	err = tx.CreditNative("0xmallory", sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnauthorizedWriter)
	err = tx.MarkGraduated("0xtoken", "0xreal", "0xlp", false)
	require.ErrorIs(t, err, ErrUnauthorizedWriter)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")
	ctx := context.Background()

	tx, err := store.Begin(ctx, ActorTradingEngine)
	require.NoError(t, err)
	require.NoError(t, tx.CreditNative("0xalice", sdkmath.NewInt(500)))
	require.NoError(t, tx.SetHolderBalance("0xtoken", "0xalice", sdkmath.NewInt(7)))
	require.NoError(t, tx.Rollback())

	tx, err = store.Begin(ctx, ActorTradingEngine)
	require.NoError(t, err)
	defer tx.Rollback()
	balance, err := tx.NativeBalance("0xalice")
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	held, err := tx.HolderBalance("0xtoken", "0xalice")
	require.NoError(t, err)
	require.True(t, held.IsZero())
}

func TestCommitIsFinal(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")

	tx, err := store.Begin(context.Background(), ActorAdmin)
	require.NoError(t, err)
	require.NoError(t, tx.CreditNative("0xalice", sdkmath.NewInt(42)))
	require.NoError(t, tx.Commit())
	require.ErrorIs(t, tx.Commit(), ErrTxDone)
	require.ErrorIs(t, tx.Rollback(), ErrTxDone)
}

func TestHolderRegistryTracksNonzeroBalances(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")

	tx, err := store.Begin(context.Background(), ActorTradingEngine)
	require.NoError(t, err)

	require.NoError(t, tx.SetHolderBalance("0xtoken", "0xalice", sdkmath.NewInt(10)))
	require.NoError(t, tx.SetHolderBalance("0xtoken", "0xbob", sdkmath.NewInt(20)))
	require.NoError(t, tx.SetHolderBalance("0xtoken", "0xcarol", sdkmath.NewInt(30)))

	holders, err := tx.Holders("0xtoken")
	require.NoError(t, err)
	require.Len(t, holders, 3)

	// dropping to zero removes the holder from the registry
	require.NoError(t, tx.SetHolderBalance("0xtoken", "0xbob", sdkmath.ZeroInt()))
	holders, err = tx.Holders("0xtoken")
	require.NoError(t, err)
	require.Len(t, holders, 2)
	require.NotContains(t, holders, types.Address("0xbob"))

	// and coming back re-registers
	require.NoError(t, tx.SetHolderBalance("0xtoken", "0xbob", sdkmath.NewInt(5)))
	holders, err = tx.Holders("0xtoken")
	require.NoError(t, err)
	require.Len(t, holders, 3)
	require.NoError(t, tx.Commit())
}

func TestNativeDebitRequiresFunds(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")

	tx, err := store.Begin(context.Background(), ActorTradingEngine)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.CreditNative("0xalice", sdkmath.NewInt(100)))
	require.ErrorIs(t, tx.DebitNative("0xalice", sdkmath.NewInt(101)), ErrInsufficientNative)
	require.NoError(t, tx.DebitNative("0xalice", sdkmath.NewInt(100)))

	require.ErrorIs(t, tx.CreditNative("0xalice", sdkmath.NewInt(-1)), ErrNegativeAmount)
}

func TestRuntimeInvariantsEnforced(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")

	tx, err := store.Begin(context.Background(), ActorTradingEngine)
	require.NoError(t, err)
	defer tx.Rollback()

	err = tx.PutRuntime(types.RuntimeState{
		Token:             "0xtoken",
		EthPool:           sdkmath.NewInt(-1),
		CirculatingSupply: sdkmath.ZeroInt(),
	})
	require.ErrorIs(t, err, ErrNegativePool)

	err = tx.PutRuntime(types.RuntimeState{
		Token:             "0xtoken",
		EthPool:           sdkmath.ZeroInt(),
		CirculatingSupply: sdkmath.NewIntWithDecimal(2, 24),
	})
	require.ErrorIs(t, err, ErrSupplyExceeded)
}

func TestDuplicateProfileRejected(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")

	tx, err := store.Begin(context.Background(), ActorAdmin)
	require.NoError(t, err)
	defer tx.Rollback()
	require.ErrorIs(t, tx.PutProfile(testProfile("0xtoken")), ErrTokenExists)
}

func TestRecentEventsNewestFirst(t *testing.T) {
	store := newStoreWithToken(t, "0xtoken")
	ctx := context.Background()

	tx, err := store.Begin(ctx, ActorTradingEngine)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.RecordEvent(types.MarketEvent{
			ID:          string(rune('a' + i)),
			Kind:        types.EventTrade,
			Token:       "0xtoken",
			EthAmount:   sdkmath.NewInt(int64(i)),
			TokenAmount: sdkmath.ZeroInt(),
			PlatformFee: sdkmath.ZeroInt(),
			DevFee:      sdkmath.ZeroInt(),
		}))
	}
	require.NoError(t, tx.Commit())

	events, err := store.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "c", events[0].ID)
	require.Equal(t, "b", events[1].ID)
}
