/*

This file contains the closed-form constant-product curve math. The curve is seeded with
a fixed virtual ETH offset so the price is well-defined at zero real liquidity. Every
function is pure and every derived output truncates toward the pool: the quote functions
subtract a quotient from a reserve, so that quotient rounds up. The rounding direction is
the anti-drain invariant and must not be changed.

*/

package pricing

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrZeroEthIn        = errors.New("eth input is zero")
	ErrCurveSoldOut     = errors.New("curve supply is sold out")
	ErrOverSell         = errors.New("token input exceeds tokens sold")
	ErrSupplyOutOfRange = errors.New("supply is outside the open curve domain")
	ErrInvalidAmount    = errors.New("amount is nil or negative")
)

// VirtualOffset is the phantom wei added to the real raised ETH on every reserve
// computation. One whole native unit.
var VirtualOffset = sdkmath.NewIntWithDecimal(1, 18)

// unitToken is one whole token in smallest units, used for marginal price probes.
var unitToken = sdkmath.NewIntWithDecimal(1, 18)

// quoCeil divides rounding the quotient up. The quotient is subtracted from a reserve in
// both quote functions, so rounding it up rounds the output down.
func quoCeil(num, den sdkmath.Int) sdkmath.Int {
	return num.Add(den.SubRaw(1)).Quo(den)
}

func validAmount(values ...sdkmath.Int) error {
	for _, v := range values {
		if v.IsNil() || v.IsNegative() {
			return ErrInvalidAmount
		}
	}
	return nil
}

// TokensForEth quotes the token output for ethIn wei against the current curve position.
// tokenReserve = totalSupply - tokensSold, ethReserve = ethRaised + VirtualOffset,
// out = tokenReserve - k/(ethReserve + ethIn).
func TokensForEth(totalSupply, ethRaised, tokensSold, ethIn sdkmath.Int) (sdkmath.Int, error) {
	if err := validAmount(totalSupply, ethRaised, tokensSold, ethIn); err != nil {
		return sdkmath.Int{}, err
	}
	if ethIn.IsZero() {
		return sdkmath.Int{}, ErrZeroEthIn
	}
	if tokensSold.GTE(totalSupply) {
		return sdkmath.Int{}, ErrCurveSoldOut
	}

	tokenReserve := totalSupply.Sub(tokensSold)
	ethReserve := ethRaised.Add(VirtualOffset)
	k := tokenReserve.Mul(ethReserve)

	return tokenReserve.Sub(quoCeil(k, ethReserve.Add(ethIn))), nil
}

// EthForTokens quotes the gross wei released for selling tokenIn back into the curve.
// A zero tokenIn quotes zero; selling more than has been sold is an error.
func EthForTokens(totalSupply, ethRaised, tokensSold, tokenIn sdkmath.Int) (sdkmath.Int, error) {
	if err := validAmount(totalSupply, ethRaised, tokensSold, tokenIn); err != nil {
		return sdkmath.Int{}, err
	}
	if tokenIn.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if tokenIn.GT(tokensSold) {
		return sdkmath.Int{}, ErrOverSell
	}

	tokenReserve := totalSupply.Sub(tokensSold)
	ethReserve := ethRaised.Add(VirtualOffset)
	k := tokenReserve.Mul(ethReserve)

	return ethReserve.Sub(quoCeil(k, tokenReserve.Add(tokenIn))), nil
}

// EthAtSupply inverts the curve: the wei that must have been raised from genesis for the
// circulating supply to sit at the given point. Defined on the open interval
// 0 < supply < totalSupply.
func EthAtSupply(totalSupply, supply sdkmath.Int) (sdkmath.Int, error) {
	if err := validAmount(totalSupply, supply); err != nil {
		return sdkmath.Int{}, err
	}
	if supply.IsZero() || supply.GTE(totalSupply) {
		return sdkmath.Int{}, ErrSupplyOutOfRange
	}
	return supply.Mul(VirtualOffset).Quo(totalSupply.Sub(supply)), nil
}

// MarginalPriceAt returns the wei released by selling one whole token at a hypothetical
// supply point, i.e. the price of the marginal unit in wei per 1e18 token units.
func MarginalPriceAt(totalSupply, supply sdkmath.Int) (sdkmath.Int, error) {
	if err := validAmount(totalSupply, supply); err != nil {
		return sdkmath.Int{}, err
	}
	if supply.LT(unitToken) {
		return sdkmath.Int{}, ErrSupplyOutOfRange
	}
	ethRaised, err := EthAtSupply(totalSupply, supply)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return EthForTokens(totalSupply, ethRaised, supply, unitToken)
}
