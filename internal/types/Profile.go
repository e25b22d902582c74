/*

This file contains the token profile tagged union. A profile is selected once at token
creation and is immutable afterwards; the Fee Resolver and the Graduation Orchestrator
dispatch exhaustively on the profile kind.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Address identifies an account, token contract, or fee recipient.
type Address string

const (
	// ZeroAddress is the null account.
	ZeroAddress Address = "0x0000000000000000000000000000000000000000"
	// BurnAddress receives permanently destroyed tokens and LP positions.
	BurnAddress Address = "0x000000000000000000000000000000000000dEaD"
)

// IsZero reports whether the address is empty or the null account.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// ProfileKind discriminates the four token profile variants.
type ProfileKind string

const (
	KindBasic       ProfileKind = "BASIC"        // static tax with a flip to the final rate, static caps with expiry
	KindAdvanced    ProfileKind = "ADVANCED"     // tax decays and caps grow by a step-per-interval law
	KindSuperSimple ProfileKind = "SUPER_SIMPLE" // no tax, static caps that are never lifted
	KindZeroSimple  ProfileKind = "ZERO_SIMPLE"  // no tax, no caps
)

// MaxFinalTaxRate is the hard ceiling (percent) any profile's final tax may carry.
const MaxFinalTaxRate = 5

// BasicParams holds the schedule parameters for KindBasic.
type BasicParams struct {
	StartingTax   uint64        `json:"starting_tax"`   // percent, applied until TaxDuration elapses
	TaxDuration   time.Duration `json:"tax_duration"`   // after this the tax snaps to the final rate
	MaxTx         sdkmath.Int   `json:"max_tx"`         // per-trade ceiling in token units
	MaxWallet     sdkmath.Int   `json:"max_wallet"`     // post-trade wallet ceiling in token units
	LimitDuration time.Duration `json:"limit_duration"` // caps lift entirely once this elapses
}

// AdvancedParams holds the schedule parameters for KindAdvanced.
type AdvancedParams struct {
	StartingTax     uint64        `json:"starting_tax"`      // percent at limitsStart
	TaxDropStep     uint64        `json:"tax_drop_step"`     // percent removed per interval
	TaxDropInterval time.Duration `json:"tax_drop_interval"` // decay interval
	MaxTx           sdkmath.Int   `json:"max_tx"`            // initial per-trade ceiling
	MaxWallet       sdkmath.Int   `json:"max_wallet"`        // initial wallet ceiling
	LimitGrowStep   sdkmath.Int   `json:"limit_grow_step"`   // ceiling growth per interval
	LimitInterval   time.Duration `json:"limit_interval"`    // growth interval
}

// SuperSimpleParams holds the static caps for KindSuperSimple.
type SuperSimpleParams struct {
	MaxTx     sdkmath.Int `json:"max_tx"`
	MaxWallet sdkmath.Int `json:"max_wallet"`
}

// TokenProfile is the immutable per-token configuration. Exactly one of the variant
// parameter blocks is populated, matching Kind.
type TokenProfile struct {
	Token        Address     `json:"token"`
	Name         string      `json:"name"`
	Symbol       string      `json:"symbol"`
	Creator      Address     `json:"creator"`
	TaxPayee     Address     `json:"tax_payee"`
	Kind         ProfileKind `json:"kind"`
	TotalSupply  sdkmath.Int `json:"total_supply"`   // total virtual supply in smallest units
	CurveCap     sdkmath.Int `json:"curve_cap"`      // graduation cap in circulating-supply units
	FinalTaxRate uint64      `json:"final_tax_rate"` // percent, capped at MaxFinalTaxRate
	LPBurn       bool        `json:"lp_burn"`        // burn the LP position instead of locking it
	LPLockTime   time.Duration `json:"lp_lock_time"` // lock duration when LPBurn is false
	Headerless   bool        `json:"headerless"`     // deploy the real token without the standard header
	CreatedAt    time.Time   `json:"created_at"`

	Basic       *BasicParams       `json:"basic,omitempty"`
	Advanced    *AdvancedParams    `json:"advanced,omitempty"`
	SuperSimple *SuperSimpleParams `json:"super_simple,omitempty"`
}

var (
	ErrProfileInvalid     = errors.New("invalid token profile")
	ErrFinalTaxTooHigh    = errors.New("final tax rate exceeds the 5 percent ceiling")
	ErrUnknownProfileKind = errors.New("unknown profile kind")
)

// Validate checks the structural invariants of a profile. It does not consult any
// runtime state.
func (p TokenProfile) Validate() error {
	if p.Token.IsZero() {
		return fmt.Errorf("%w: token address is required", ErrProfileInvalid)
	}
	if p.Creator.IsZero() {
		return fmt.Errorf("%w: creator address is required", ErrProfileInvalid)
	}
	if p.TotalSupply.IsNil() || !p.TotalSupply.IsPositive() {
		return fmt.Errorf("%w: total supply must be positive", ErrProfileInvalid)
	}
	if p.CurveCap.IsNil() || !p.CurveCap.IsPositive() || p.CurveCap.GTE(p.TotalSupply) {
		return fmt.Errorf("%w: curve cap must be positive and below total supply", ErrProfileInvalid)
	}
	if p.FinalTaxRate > MaxFinalTaxRate {
		return fmt.Errorf("%w: got %d", ErrFinalTaxTooHigh, p.FinalTaxRate)
	}

	switch p.Kind {
	case KindBasic:
		if p.Basic == nil {
			return fmt.Errorf("%w: basic parameters missing", ErrProfileInvalid)
		}
		if p.Basic.MaxTx.IsNil() || p.Basic.MaxWallet.IsNil() {
			return fmt.Errorf("%w: basic caps missing", ErrProfileInvalid)
		}
	case KindAdvanced:
		if p.Advanced == nil {
			return fmt.Errorf("%w: advanced parameters missing", ErrProfileInvalid)
		}
		if p.Advanced.TaxDropInterval <= 0 || p.Advanced.LimitInterval <= 0 {
			return fmt.Errorf("%w: advanced intervals must be positive", ErrProfileInvalid)
		}
		if p.Advanced.MaxTx.IsNil() || p.Advanced.MaxWallet.IsNil() || p.Advanced.LimitGrowStep.IsNil() {
			return fmt.Errorf("%w: advanced caps missing", ErrProfileInvalid)
		}
	case KindSuperSimple:
		if p.SuperSimple == nil {
			return fmt.Errorf("%w: super simple parameters missing", ErrProfileInvalid)
		}
		if p.SuperSimple.MaxTx.IsNil() || p.SuperSimple.MaxWallet.IsNil() {
			return fmt.Errorf("%w: super simple caps missing", ErrProfileInvalid)
		}
	case KindZeroSimple:
		// no variant parameters
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProfileKind, p.Kind)
	}
	return nil
}

// Taxed reports whether the profile ever applies a dev tax.
func (p TokenProfile) Taxed() bool {
	return p.Kind == KindBasic || p.Kind == KindAdvanced
}
