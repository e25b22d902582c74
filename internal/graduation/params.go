/*

This file contains the graduation parameter derivation. All amounts are computed up front
from the frozen curve position before any external step runs, so a failed graduation
leaves nothing to reconcile. The partition TokensToLiquidity + TokenFee + circulating +
TokensToBurn == TotalSupply holds exactly by construction.

*/

package graduation

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/curveforge/curved/internal/pricing"
	"github.com/curveforge/curved/internal/types"
)

var (
	ErrNotAtCap         = errors.New("circulating supply has not reached the graduation cap")
	ErrAlreadyGraduated = errors.New("token has already graduated")
	ErrPoolOutOfBounds  = errors.New("pool value is outside the allowed USD range")
	ErrPoolTooSmall     = errors.New("pool cannot cover the graduation fees")
)

const (
	bpsDenominator = 10_000

	// Gas-unit estimates for the graduation transaction, tiered by distribution mode.
	// Deployment plus liquidity seeding dominates; airdrops add a per-holder transfer.
	gasBaseline  = 2_500_000
	gasPerHolder = 45_000
	gasClaimMode = 3_000_000

	usdDecimals = 8
)

var (
	weiPerEth   = sdkmath.NewIntWithDecimal(1, 18)
	usdUnit     = sdkmath.NewIntWithDecimal(1, usdDecimals)
	tokenFeeDiv = sdkmath.NewInt(100)
)

// validatePoolBounds converts the pool to whole USD at the oracle price and checks it
// against the configured window. A stale oracle degrades to the fallback price rather
// than blocking the graduation.
func (o *Orchestrator) validatePoolBounds(ctx context.Context, pool sdkmath.Int) error {
	price := o.prices.EthUsdOrFallback(ctx)
	poolUsd := pool.Mul(price).Quo(weiPerEth).Quo(usdUnit)

	min := sdkmath.NewIntFromUint64(o.params.MinPoolUsd)
	max := sdkmath.NewIntFromUint64(o.params.MaxPoolUsd)
	if poolUsd.LT(min) || poolUsd.GT(max) {
		return fmt.Errorf("%w: pool is %s USD, window [%s, %s]", ErrPoolOutOfBounds, poolUsd, min, max)
	}
	return nil
}

// stipendFor sizes the gas stipend refunded to the triggering party. The raw estimate is
// priced at the oracle gas price (base fee when unusable), scaled by the safety
// multiplier, then clamped to the configured floor and cap.
func (o *Orchestrator) stipendFor(ctx context.Context, holderCount int, claimMode bool) sdkmath.Int {
	gasUnits := int64(gasBaseline + gasPerHolder*holderCount)
	if claimMode {
		gasUnits = gasClaimMode
	}

	gasPrice := o.prices.GasPriceOrBase(ctx)
	stipend := gasPrice.MulRaw(gasUnits).
		MulRaw(int64(o.params.StipendMultiplierBps)).
		QuoRaw(bpsDenominator)

	if stipend.LT(o.params.StipendFloor) {
		return o.params.StipendFloor
	}
	if stipend.GT(o.params.StipendCap) {
		return o.params.StipendCap
	}
	return stipend
}

// computeParams derives every graduation amount from the current curve position.
func (o *Orchestrator) computeParams(ctx context.Context, profile types.TokenProfile, state types.RuntimeState, holderCount int, claimMode bool) (types.GradParams, error) {
	if state.Graduated {
		return types.GradParams{}, ErrAlreadyGraduated
	}
	if state.CirculatingSupply.LT(profile.CurveCap) {
		return types.GradParams{}, fmt.Errorf("%w: circulating %s, cap %s",
			ErrNotAtCap, state.CirculatingSupply, profile.CurveCap)
	}
	if profile.FinalTaxRate > types.MaxFinalTaxRate {
		return types.GradParams{}, fmt.Errorf("%w: got %d", types.ErrFinalTaxTooHigh, profile.FinalTaxRate)
	}
	if err := o.validatePoolBounds(ctx, state.EthPool); err != nil {
		return types.GradParams{}, err
	}

	gradFee := o.params.GradFee
	lockFee := sdkmath.ZeroInt()
	if !profile.LPBurn {
		lockFee = o.params.LockFee
	}
	stipend := o.stipendFor(ctx, holderCount, claimMode)
	totalFees := gradFee.Add(lockFee).Add(stipend)

	if state.EthPool.LTE(totalFees) {
		return types.GradParams{}, fmt.Errorf("%w: pool %s, fees %s",
			ErrPoolTooSmall, state.EthPool, totalFees)
	}
	ethForLiquidity := state.EthPool.Sub(totalFees)

	tokenFee := state.CirculatingSupply.Quo(tokenFeeDiv)

	marginalPrice, err := pricing.MarginalPriceAt(profile.TotalSupply, state.CirculatingSupply)
	if err != nil {
		return types.GradParams{}, err
	}
	tokensToLiquidity := ethForLiquidity.Mul(weiPerEth).Quo(marginalPrice)

	// the pairing may ask for more tokens than remain unminted; cap it at the headroom
	// and redirect the excess ETH to the buy-and-burn leg so the seeded price is kept
	headroom := profile.TotalSupply.Sub(state.CirculatingSupply).Sub(tokenFee)
	buyAndBurn := sdkmath.ZeroInt()
	if tokensToLiquidity.GT(headroom) {
		tokensToLiquidity = headroom
		ethNeeded := tokensToLiquidity.Mul(marginalPrice).Quo(weiPerEth)
		buyAndBurn = ethForLiquidity.Sub(ethNeeded)
		ethForLiquidity = ethNeeded
	}

	tokensToBurn := profile.TotalSupply.
		Sub(state.CirculatingSupply).
		Sub(tokenFee).
		Sub(tokensToLiquidity)

	return types.GradParams{
		GradFee:           gradFee,
		LockFee:           lockFee,
		Stipend:           stipend,
		TotalFees:         totalFees,
		TokenFee:          tokenFee,
		MarginalPrice:     marginalPrice,
		EthForLiquidity:   ethForLiquidity,
		TokensToLiquidity: tokensToLiquidity,
		TokensToBurn:      tokensToBurn,
		BuyAndBurnEth:     buyAndBurn,
	}, nil
}
