package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestGuardAcceptsFreshQuote(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	feed := &StaticFeed{
		Quote: Quote{Price: sdkmath.NewInt(300_000_000_000), UpdatedAt: now.Add(-time.Minute)},
	}
	guard := NewGuard(feed, clock, 5*time.Minute, sdkmath.NewInt(1), sdkmath.NewInt(1))

	price, err := guard.EthUsd(context.Background())
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(300_000_000_000), price)
}

func TestGuardRejectsStaleQuote(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	feed := &StaticFeed{
		Quote: Quote{Price: sdkmath.NewInt(300_000_000_000), UpdatedAt: now.Add(-time.Hour)},
	}
	guard := NewGuard(feed, clock, 5*time.Minute, sdkmath.NewInt(1), sdkmath.NewInt(1))

	_, err := guard.EthUsd(context.Background())
	require.ErrorIs(t, err, ErrStaleQuote)
}

func TestFallbackPriceOnStaleOrFailedFeed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	fallback := sdkmath.NewInt(250_000_000_000)

	stale := &StaticFeed{
		Quote: Quote{Price: sdkmath.NewInt(1), UpdatedAt: now.Add(-time.Hour)},
	}
	guard := NewGuard(stale, clock, 5*time.Minute, fallback, sdkmath.NewInt(1))
	require.Equal(t, fallback, guard.EthUsdOrFallback(context.Background()))

	broken := &StaticFeed{Err: errors.New("connection refused")}
	guard = NewGuard(broken, clock, 5*time.Minute, fallback, sdkmath.NewInt(1))
	require.Equal(t, fallback, guard.EthUsdOrFallback(context.Background()))
}

func TestGasPriceFallsBackToBaseFee(t *testing.T) {
	clock := clockwork.NewFakeClock()
	base := sdkmath.NewInt(2_000_000_000)

	broken := &StaticFeed{Err: errors.New("timeout")}
	guard := NewGuard(broken, clock, time.Minute, sdkmath.NewInt(1), base)
	require.Equal(t, base, guard.GasPriceOrBase(context.Background()))

	live := &StaticFeed{Gas: sdkmath.NewInt(7_000_000_000)}
	guard = NewGuard(live, clock, time.Minute, sdkmath.NewInt(1), base)
	require.Equal(t, sdkmath.NewInt(7_000_000_000), guard.GasPriceOrBase(context.Background()))
}
