package fees

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/curveforge/curved/internal/types"
)

func tokens(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

func basicProfile() types.TokenProfile {
	return types.TokenProfile{
		Token:        "0xbasic",
		Creator:      "0xcreator",
		Kind:         types.KindBasic,
		TotalSupply:  tokens(1_000_000),
		CurveCap:     tokens(800_000),
		FinalTaxRate: 2,
		Basic: &types.BasicParams{
			StartingTax:   10,
			TaxDuration:   time.Hour,
			MaxTx:         tokens(10_000),
			MaxWallet:     tokens(20_000),
			LimitDuration: 2 * time.Hour,
		},
	}
}

func advancedProfile() types.TokenProfile {
	return types.TokenProfile{
		Token:        "0xadv",
		Creator:      "0xcreator",
		Kind:         types.KindAdvanced,
		TotalSupply:  tokens(1_000_000),
		CurveCap:     tokens(800_000),
		FinalTaxRate: 2,
		Advanced: &types.AdvancedParams{
			StartingTax:     10,
			TaxDropStep:     1,
			TaxDropInterval: 10 * time.Minute,
			MaxTx:           tokens(10_000),
			MaxWallet:       tokens(20_000),
			LimitGrowStep:   tokens(100_000),
			LimitInterval:   time.Hour,
		},
	}
}

func TestBasicTaxSnapsToFinalRate(t *testing.T) {
	p := basicProfile()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tax, err := TaxAt(p, start, start.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, uint64(10), tax)

	tax, err = TaxAt(p, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(2), tax)

	tax, err = TaxAt(p, start, start.Add(48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(2), tax)
}

func TestAdvancedTaxDecaysLinearly(t *testing.T) {
	p := advancedProfile()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tax, err := TaxAt(p, start, start)
	require.NoError(t, err)
	require.Equal(t, uint64(10), tax)

	// one percent per ten minutes: five intervals in, five points off
	tax, err = TaxAt(p, start, start.Add(50*time.Minute))
	require.NoError(t, err)
	require.Equal(t, uint64(5), tax)

	// decay clamps at the final rate, never below
	tax, err = TaxAt(p, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(2), tax)
}

func TestAdvancedTaxSubSecondInterval(t *testing.T) {
	p := advancedProfile()
	p.Advanced.TaxDropInterval = 500 * time.Millisecond
	require.NoError(t, p.Validate())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// three full half-second intervals in, three points off
	tax, err := TaxAt(p, start, start.Add(1500*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, uint64(7), tax)

	tax, err = TaxAt(p, start, start.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, uint64(2), tax)
}

func TestTaxBeforeAnchorUsesStartingRate(t *testing.T) {
	p := advancedProfile()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tax, err := TaxAt(p, start, start.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(10), tax)
}

func TestUntaxedKinds(t *testing.T) {
	for _, kind := range []types.ProfileKind{types.KindSuperSimple, types.KindZeroSimple} {
		p := types.TokenProfile{Kind: kind, FinalTaxRate: 0}
		tax, err := TaxAt(p, time.Now(), time.Now())
		require.NoError(t, err)
		require.Zero(t, tax)
	}
}

func TestBasicLimitsExpire(t *testing.T) {
	p := basicProfile()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	limits, err := LimitsAt(p, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, limits.Lifted)
	require.Equal(t, tokens(10_000), limits.MaxTx)
	require.Equal(t, tokens(20_000), limits.MaxWallet)

	limits, err = LimitsAt(p, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, limits.Lifted)
}

func TestAdvancedLimitsGrowAndLift(t *testing.T) {
	p := advancedProfile()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	limits, err := LimitsAt(p, start, start.Add(3*time.Hour))
	require.NoError(t, err)
	require.False(t, limits.Lifted)
	require.Equal(t, tokens(310_000), limits.MaxTx)
	require.Equal(t, tokens(320_000), limits.MaxWallet)

	// once both ceilings reach total supply the limits lift for good
	limits, err = LimitsAt(p, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, limits.Lifted)
}

func TestSuperSimpleLimitsNeverLift(t *testing.T) {
	p := types.TokenProfile{
		Kind:        types.KindSuperSimple,
		TotalSupply: tokens(1_000_000),
		SuperSimple: &types.SuperSimpleParams{MaxTx: tokens(5_000), MaxWallet: tokens(9_000)},
	}
	limits, err := LimitsAt(p, time.Now(), time.Now().Add(1000*time.Hour))
	require.NoError(t, err)
	require.False(t, limits.Lifted)
	require.Equal(t, tokens(5_000), limits.MaxTx)
}

func TestZeroSimpleHasNoLimits(t *testing.T) {
	limits, err := LimitsAt(types.TokenProfile{Kind: types.KindZeroSimple}, time.Now(), time.Now())
	require.NoError(t, err)
	require.True(t, limits.Lifted)
}

func TestSplitAmountOrderAndExactness(t *testing.T) {
	r := NewResolver(Params{
		PlatformBps:     map[types.ProfileKind]uint64{types.KindBasic: 100},
		TreasurySkimBps: 5000,
	})
	p := basicProfile()

	gross := sdkmath.NewInt(1_000_003)
	split := r.SplitAmount(p, gross, 10)

	// platform first on the gross, tax on the remainder
	require.Equal(t, sdkmath.NewInt(10_000), split.PlatformFee)
	require.Equal(t, sdkmath.NewInt(99_000), split.DevFee)

	sum := split.PlatformFee.Add(split.DevFee).Add(split.Remainder)
	require.Equal(t, gross, sum, "fee slices must partition the gross exactly")
}

func TestSkimForTreasurySumsExactly(t *testing.T) {
	r := NewResolver(Params{TreasurySkimBps: 3333})

	devFee := sdkmath.NewInt(999_999)
	treasury, payee := r.SkimForTreasury(devFee)
	require.Equal(t, devFee, treasury.Add(payee))
	require.True(t, treasury.LT(payee))
}

func TestUnknownKindRejected(t *testing.T) {
	p := types.TokenProfile{Kind: "WAT"}
	_, err := TaxAt(p, time.Now(), time.Now())
	require.ErrorIs(t, err, ErrUnknownProfileKind)
	_, err = LimitsAt(p, time.Now(), time.Now())
	require.ErrorIs(t, err, ErrUnknownProfileKind)
}
