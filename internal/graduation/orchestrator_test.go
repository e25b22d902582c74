package graduation

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/curveforge/curved/internal/collab"
	"github.com/curveforge/curved/internal/ledger"
	"github.com/curveforge/curved/internal/oracle"
	"github.com/curveforge/curved/internal/pricing"
	"github.com/curveforge/curved/internal/types"
)

const (
	treasury = types.Address("0xtreasury")
	alice    = types.Address("0xalice")
	bob      = types.Address("0xbob")
	carol    = types.Address("0xcarol")
	trigger  = types.Address("0xtrigger")
)

func tokens(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

type harness struct {
	orch     *Orchestrator
	store    *ledger.MemoryStore
	deployer *collab.InProcessDeployer
	venue    *collab.InProcessVenue
	clock    *clockwork.FakeClock
	params   Params
}

func newHarness(t *testing.T, mutate func(*Params)) *harness {
	t.Helper()
	store := ledger.NewMemoryStore([]string{
		ledger.ActorTradingEngine, ledger.ActorGraduation, ledger.ActorAdmin,
	})
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	feed := &oracle.StaticFeed{
		Quote: oracle.Quote{Price: sdkmath.NewInt(300_000_000_000), UpdatedAt: clock.Now()}, // 3000 USD
		Gas:   sdkmath.NewInt(2_000_000_000),
	}
	guard := oracle.NewGuard(feed, clock, 5*time.Minute, sdkmath.NewInt(300_000_000_000), sdkmath.NewInt(1_000_000_000))

	deployer := collab.NewInProcessDeployer()
	venue := collab.NewInProcessVenue(deployer)
	locker := collab.NewInProcessLocker()

	params := Params{
		Treasury:             treasury,
		VenueAccount:         collab.VenueAccount,
		GradFee:              sdkmath.NewInt(10_000_000_000_000_000), // 0.01 ETH
		LockFee:              sdkmath.NewInt(5_000_000_000_000_000),
		MinPoolUsd:           100,
		MaxPoolUsd:           1_000_000,
		ClaimModeThreshold:   300,
		StipendMultiplierBps: 12_000,
		StipendFloor:         sdkmath.NewInt(1_000_000_000_000),
		StipendCap:           sdkmath.NewInt(100_000_000_000_000_000),
	}
	if mutate != nil {
		mutate(&params)
	}

	return &harness{
		orch:     New(store, deployer, venue, locker, guard, clock, params),
		store:    store,
		deployer: deployer,
		venue:    venue,
		clock:    clock,
		params:   params,
	}
}

// seedAtCap writes a token sitting exactly at its graduation cap with the given holder
// balances, pool sized by the curve inverse.
func (h *harness) seedAtCap(t *testing.T, profile types.TokenProfile, balances map[types.Address]sdkmath.Int) types.RuntimeState {
	t.Helper()
	circ := profile.CurveCap
	pool, err := pricing.EthAtSupply(profile.TotalSupply, circ)
	require.NoError(t, err)

	tx, err := h.store.Begin(context.Background(), ledger.ActorAdmin)
	require.NoError(t, err)
	require.NoError(t, tx.PutProfile(profile))
	require.NoError(t, tx.PutRuntime(types.RuntimeState{
		Token:             profile.Token,
		EthPool:           pool,
		CirculatingSupply: circ,
		StartTime:         h.clock.Now(),
		LimitsStart:       h.clock.Now(),
	}))
	for holder, balance := range balances {
		require.NoError(t, tx.SetHolderBalance(profile.Token, holder, balance))
	}
	require.NoError(t, tx.Commit())

	state, err := h.store.ReadRuntime(context.Background(), profile.Token)
	require.NoError(t, err)
	return state
}

func halfCapProfile() types.TokenProfile {
	return types.TokenProfile{
		Token:       "0xtoken",
		Name:        "Curve Test",
		Symbol:      "CRV",
		Creator:     "0xcreator",
		Kind:        types.KindZeroSimple,
		TotalSupply: tokens(1_000_000),
		CurveCap:    tokens(500_000),
		LPBurn:      true,
	}
}

func standardBalances() map[types.Address]sdkmath.Int {
	return map[types.Address]sdkmath.Int{
		alice: tokens(300_000),
		bob:   tokens(150_000),
		carol: tokens(50_000),
	}
}

func TestGraduateAirdropPath(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())
	ctx := context.Background()

	result, err := h.orch.Graduate(ctx, profile.Token, trigger)
	require.NoError(t, err)
	require.False(t, result.ClaimMode)
	require.Equal(t, 3, result.HolderCount)
	require.NotEmpty(t, result.RealToken)
	require.NotEmpty(t, result.LPAddress)

	// the curve is closed: pool drained, flag set, registry cleared
	state, err := h.store.ReadRuntime(ctx, profile.Token)
	require.NoError(t, err)
	require.True(t, state.Graduated)
	require.True(t, state.EthPool.IsZero())
	require.Equal(t, result.RealToken, state.RealToken)

	// every holder got the real token one for one
	for holder, balance := range standardBalances() {
		got, err := h.deployer.BalanceOf(ctx, result.RealToken, holder)
		require.NoError(t, err)
		require.Equal(t, balance, got)
	}

	// treasury received the fixed fee in wei and the one percent token fee
	tx, err := h.store.Begin(ctx, ledger.ActorAdmin)
	require.NoError(t, err)
	defer tx.Rollback()
	treasuryNative, err := tx.NativeBalance(treasury)
	require.NoError(t, err)
	require.Equal(t, h.params.GradFee, treasuryNative)
	treasuryTokens, err := h.deployer.BalanceOf(ctx, result.RealToken, treasury)
	require.NoError(t, err)
	require.Equal(t, profile.CurveCap.QuoRaw(100), treasuryTokens)

	// the trigger was reimbursed for gas
	stipend, err := tx.NativeBalance(trigger)
	require.NoError(t, err)
	require.Equal(t, result.Params.Stipend, stipend)
	require.True(t, stipend.IsPositive())
}

func TestGraduatePartitionsSupplyExactly(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())

	result, err := h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.NoError(t, err)

	p := result.Params
	total := p.TokensToLiquidity.Add(p.TokenFee).Add(profile.CurveCap).Add(p.TokensToBurn)
	require.Equal(t, profile.TotalSupply, total,
		"liquidity, token fee, circulating and burn must partition the supply exactly")
	require.True(t, p.BuyAndBurnEth.IsZero(), "ample headroom leaves nothing to redirect")
}

func TestGraduateHeadroomCapsLiquidity(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	profile.CurveCap = tokens(950_000) // deep curve, little unminted headroom
	h.seedAtCap(t, profile, map[types.Address]sdkmath.Int{alice: profile.CurveCap})
	ctx := context.Background()

	result, err := h.orch.Graduate(ctx, profile.Token, trigger)
	require.NoError(t, err)

	p := result.Params
	headroom := profile.TotalSupply.Sub(profile.CurveCap).Sub(p.TokenFee)
	require.Equal(t, headroom, p.TokensToLiquidity, "the pairing is capped at the unminted headroom")
	require.True(t, p.BuyAndBurnEth.IsPositive(), "excess ETH is redirected to the buy and burn")
	require.True(t, p.TokensToBurn.IsZero())
	require.True(t, result.TokensBought.IsPositive())

	// the swapped tokens ended at the burn address
	burned, err := h.deployer.BalanceOf(ctx, result.RealToken, types.BurnAddress)
	require.NoError(t, err)
	require.True(t, burned.GTE(result.TokensBought))

	total := p.TokensToLiquidity.Add(p.TokenFee).Add(profile.CurveCap).Add(p.TokensToBurn)
	require.Equal(t, profile.TotalSupply, total)
}

func TestGraduateBelowCapRejected(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	state := h.seedAtCap(t, profile, standardBalances())

	state.CirculatingSupply = state.CirculatingSupply.Sub(tokens(1))
	tx, err := h.store.Begin(context.Background(), ledger.ActorAdmin)
	require.NoError(t, err)
	require.NoError(t, tx.PutRuntime(state))
	require.NoError(t, tx.Commit())

	_, err = h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.ErrorIs(t, err, ErrNotAtCap)
}

func TestGraduateRejectsExcessiveFinalTax(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	profile.FinalTaxRate = types.MaxFinalTaxRate + 1
	h.seedAtCap(t, profile, standardBalances())

	_, err := h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.ErrorIs(t, err, types.ErrFinalTaxTooHigh)

	state, err := h.store.ReadRuntime(context.Background(), profile.Token)
	require.NoError(t, err)
	require.False(t, state.Graduated)
}

func TestGraduateTwiceRejected(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())

	_, err := h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.NoError(t, err)
	_, err = h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.ErrorIs(t, err, ErrAlreadyGraduated)
}

func TestGraduatePoolBoundsEnforced(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.MinPoolUsd = 1_000_000_000 })
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())

	_, err := h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.ErrorIs(t, err, ErrPoolOutOfBounds)

	state, err := h.store.ReadRuntime(context.Background(), profile.Token)
	require.NoError(t, err)
	require.False(t, state.Graduated)
	require.True(t, state.EthPool.IsPositive())
}

func TestStipendClampedToFloorAndCap(t *testing.T) {
	floor := sdkmath.NewInt(50_000_000_000_000_000)
	h := newHarness(t, func(p *Params) { p.StipendFloor = floor; p.StipendCap = floor.MulRaw(2) })
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())

	result, err := h.orch.Graduate(context.Background(), profile.Token, trigger)
	require.NoError(t, err)
	require.Equal(t, floor, result.Params.Stipend)

	cap := sdkmath.NewInt(1_000_000_000_000)
	h2 := newHarness(t, func(p *Params) {
		p.StipendMultiplierBps = 100_000_000
		p.StipendCap = cap
		p.StipendFloor = sdkmath.NewInt(1)
	})
	h2.seedAtCap(t, profile, standardBalances())
	result, err = h2.orch.Graduate(context.Background(), profile.Token, trigger)
	require.NoError(t, err)
	require.Equal(t, cap, result.Params.Stipend)
}

// failingVenue aborts the liquidity seeding step.
type failingVenue struct{}

func (failingVenue) AddLiquidity(context.Context, types.Address, sdkmath.Int, sdkmath.Int, types.Address) (types.Address, sdkmath.Int, error) {
	return "", sdkmath.Int{}, errors.New("venue unavailable")
}
func (failingVenue) SwapEthForTokens(context.Context, types.Address, sdkmath.Int, types.Address) (sdkmath.Int, error) {
	return sdkmath.Int{}, errors.New("venue unavailable")
}
func (failingVenue) TransferLiquidity(context.Context, types.Address, types.Address, types.Address, sdkmath.Int) error {
	return errors.New("venue unavailable")
}

func TestVenueFailureAbortsWholeGraduation(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.venue = failingVenue{}
	profile := halfCapProfile()
	before := h.seedAtCap(t, profile, standardBalances())
	ctx := context.Background()

	_, err := h.orch.Graduate(ctx, profile.Token, trigger)
	require.Error(t, err)

	// nothing in the ledger moved: pool intact, no fees, flag unset
	state, err := h.store.ReadRuntime(ctx, profile.Token)
	require.NoError(t, err)
	require.False(t, state.Graduated)
	require.Equal(t, before.EthPool, state.EthPool)

	tx, err := h.store.Begin(ctx, ledger.ActorAdmin)
	require.NoError(t, err)
	defer tx.Rollback()
	treasuryNative, err := tx.NativeBalance(treasury)
	require.NoError(t, err)
	require.True(t, treasuryNative.IsZero())
}

func TestClaimModeDistribution(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.ClaimModeThreshold = 2 })
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())
	ctx := context.Background()

	result, err := h.orch.Graduate(ctx, profile.Token, trigger)
	require.NoError(t, err)
	require.True(t, result.ClaimMode)

	// nothing was airdropped; holders claim individually
	got, err := h.deployer.BalanceOf(ctx, result.RealToken, alice)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	amount, err := h.orch.Claim(ctx, profile.Token, alice)
	require.NoError(t, err)
	require.Equal(t, tokens(300_000), amount)
	got, err = h.deployer.BalanceOf(ctx, result.RealToken, alice)
	require.NoError(t, err)
	require.Equal(t, tokens(300_000), got)

	// claims are idempotent per holder
	_, err = h.orch.Claim(ctx, profile.Token, alice)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = h.orch.Claim(ctx, profile.Token, "0xstranger")
	require.ErrorIs(t, err, ErrNothingToClaim)
}

func TestClaimRequiresClaimModeGraduation(t *testing.T) {
	h := newHarness(t, nil)
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())
	ctx := context.Background()

	_, err := h.orch.Claim(ctx, profile.Token, alice)
	require.ErrorIs(t, err, ErrNotGraduated)

	_, err = h.orch.Graduate(ctx, profile.Token, trigger)
	require.NoError(t, err)

	// an airdrop graduation has no claim phase
	_, err = h.orch.Claim(ctx, profile.Token, alice)
	require.ErrorIs(t, err, ErrNotClaimMode)
}

func TestSweepClaimsResumesFromCursor(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.ClaimModeThreshold = 2 })
	profile := halfCapProfile()
	h.seedAtCap(t, profile, standardBalances())
	ctx := context.Background()

	result, err := h.orch.Graduate(ctx, profile.Token, trigger)
	require.NoError(t, err)
	require.True(t, result.ClaimMode)

	// one holder claims on their own; the sweep must skip them
	_, err = h.orch.Claim(ctx, profile.Token, alice)
	require.NoError(t, err)

	totalSettled := 0
	for {
		settled, done, err := h.orch.SweepClaims(ctx, profile.Token, 2)
		require.NoError(t, err)
		totalSettled += settled
		if done {
			break
		}
	}
	require.Equal(t, 2, totalSettled)

	// everyone holds their real balance exactly once
	for holder, balance := range standardBalances() {
		got, err := h.deployer.BalanceOf(ctx, result.RealToken, holder)
		require.NoError(t, err)
		require.Equal(t, balance, got)
	}

	// a finished sweep stays finished
	settled, done, err := h.orch.SweepClaims(ctx, profile.Token, 2)
	require.NoError(t, err)
	require.Zero(t, settled)
	require.True(t, done)
}
