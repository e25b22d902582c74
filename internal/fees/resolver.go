/*

This file contains the per-trade fee and limit resolution. Two independent skims apply in
fixed order on every trade: the platform fee (basis points, by profile kind) and then the
dev tax (percent, schedule-driven) on the remainder. Limit resolution mirrors the tax
schedule of each profile kind and governs the max-transaction and max-wallet ceilings.

*/

package fees

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/curveforge/curved/internal/types"
)

var ErrUnknownProfileKind = errors.New("fee resolution for unknown profile kind")

const bpsDenominator = 10_000

// Params carries the platform-side fee configuration shared by all tokens.
type Params struct {
	PlatformBps map[types.ProfileKind]uint64 // platform fee in basis points, by profile kind
	TreasurySkimBps uint64                   // share of the dev tax diverted to the treasury
}

// Resolver computes effective rates for a token at an instant.
type Resolver struct {
	params Params
}

// NewResolver builds a resolver over the given platform parameters.
func NewResolver(params Params) *Resolver {
	return &Resolver{params: params}
}

// TaxAt resolves the dev tax percentage effective at now, anchored at limitsStart.
func TaxAt(p types.TokenProfile, limitsStart, now time.Time) (uint64, error) {
	elapsed := now.Sub(limitsStart)
	if elapsed < 0 {
		elapsed = 0
	}

	switch p.Kind {
	case types.KindBasic:
		if elapsed < p.Basic.TaxDuration {
			return p.Basic.StartingTax, nil
		}
		return p.FinalTaxRate, nil
	case types.KindAdvanced:
		adv := p.Advanced
		decay := uint64(elapsed/adv.TaxDropInterval) * adv.TaxDropStep
		if decay >= adv.StartingTax || adv.StartingTax-decay <= p.FinalTaxRate {
			return p.FinalTaxRate, nil
		}
		return adv.StartingTax - decay, nil
	case types.KindSuperSimple, types.KindZeroSimple:
		return 0, nil
	default:
		return 0, ErrUnknownProfileKind
	}
}

// LimitsAt resolves the currently effective anti-whale ceilings. Lifted is evaluated
// first; when it is set the numeric ceilings are unbounded sentinels and must not be
// consulted.
func LimitsAt(p types.TokenProfile, limitsStart, now time.Time) (types.Limits, error) {
	elapsed := now.Sub(limitsStart)
	if elapsed < 0 {
		elapsed = 0
	}

	switch p.Kind {
	case types.KindBasic:
		if elapsed >= p.Basic.LimitDuration {
			return types.Limits{Lifted: true}, nil
		}
		return types.Limits{MaxTx: p.Basic.MaxTx, MaxWallet: p.Basic.MaxWallet}, nil
	case types.KindAdvanced:
		adv := p.Advanced
		intervals := sdkmath.NewInt(int64(elapsed / adv.LimitInterval))
		growth := adv.LimitGrowStep.Mul(intervals)
		maxTx := adv.MaxTx.Add(growth)
		maxWallet := adv.MaxWallet.Add(growth)
		if maxTx.GTE(p.TotalSupply) && maxWallet.GTE(p.TotalSupply) {
			return types.Limits{Lifted: true}, nil
		}
		return types.Limits{MaxTx: maxTx, MaxWallet: maxWallet}, nil
	case types.KindSuperSimple:
		return types.Limits{MaxTx: p.SuperSimple.MaxTx, MaxWallet: p.SuperSimple.MaxWallet}, nil
	case types.KindZeroSimple:
		return types.Limits{Lifted: true}, nil
	default:
		return types.Limits{}, ErrUnknownProfileKind
	}
}

// Split is the fee decomposition of one trade's gross amount.
type Split struct {
	PlatformFee sdkmath.Int
	DevFee      sdkmath.Int
	Remainder   sdkmath.Int // fed to / derived from the pricing engine
}

// SplitAmount skims the platform fee first and the dev tax on what is left. Both
// divisions truncate, so the three slices always sum exactly to gross.
func (r *Resolver) SplitAmount(p types.TokenProfile, gross sdkmath.Int, taxPercent uint64) Split {
	bps := r.params.PlatformBps[p.Kind]
	platformFee := gross.MulRaw(int64(bps)).QuoRaw(bpsDenominator)
	afterPlatform := gross.Sub(platformFee)
	devFee := afterPlatform.MulRaw(int64(taxPercent)).QuoRaw(100)
	return Split{
		PlatformFee: platformFee,
		DevFee:      devFee,
		Remainder:   afterPlatform.Sub(devFee),
	}
}

// SkimForTreasury splits a dev fee into the treasury's share and the tax payee's share.
func (r *Resolver) SkimForTreasury(devFee sdkmath.Int) (treasury, payee sdkmath.Int) {
	treasury = devFee.MulRaw(int64(r.params.TreasurySkimBps)).QuoRaw(bpsDenominator)
	return treasury, devFee.Sub(treasury)
}
