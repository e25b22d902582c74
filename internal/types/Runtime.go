/*

This file contains the mutable per-token runtime state and the derived graduation
parameters. RuntimeState is owned by the Trading Engine and the Graduation Orchestrator
and is only ever written through the ledger's authorization gate.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RuntimeState is the mutable bookkeeping for one curve-phase token.
type RuntimeState struct {
	Token             Address     `json:"token"`
	EthPool           sdkmath.Int `json:"eth_pool"`           // wei notionally held by the virtual curve
	CirculatingSupply sdkmath.Int `json:"circulating_supply"` // token units issued to buyers so far
	Graduated         bool        `json:"graduated"`          // terminal flag, monotonic false -> true
	StartTime         time.Time   `json:"start_time"`         // trading begins at or after this instant
	LimitsStart       time.Time   `json:"limits_start"`       // anchor for tax/limit decay schedules
	RealToken         Address     `json:"real_token"`         // set at graduation
	LPAddress         Address     `json:"lp_address"`         // set at graduation
	ClaimMode         bool        `json:"claim_mode"`         // deferred distribution after graduation
}

// TradeSide distinguishes the two trading entry points.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeReceipt summarizes a committed buy or sell.
type TradeReceipt struct {
	ID          string      `json:"id"`
	Token       Address     `json:"token"`
	Trader      Address     `json:"trader"`
	Side        TradeSide   `json:"side"`
	EthAmount   sdkmath.Int `json:"eth_amount"`   // wei into the curve (buy) or wei paid out (sell)
	TokenAmount sdkmath.Int `json:"token_amount"` // token units out (buy) or in (sell)
	PlatformFee sdkmath.Int `json:"platform_fee"`
	DevFee      sdkmath.Int `json:"dev_fee"`
	Refund      sdkmath.Int `json:"refund"`
	DustBurn    bool        `json:"dust_burn"` // the sell resolved through the dust path
	Graduated   bool        `json:"graduated"` // this buy crossed the cap and graduated the token
	Timestamp   time.Time   `json:"timestamp"`
}

// GradParams is derived once per graduation attempt and discarded with it.
// The partition invariant TokensToLiquidity + TokenFee + circulating + TokensToBurn ==
// TotalSupply holds exactly.
type GradParams struct {
	GradFee           sdkmath.Int `json:"grad_fee"`            // fixed platform graduation fee, wei
	LockFee           sdkmath.Int `json:"lock_fee"`            // locker fee, zero when the LP is burned
	Stipend           sdkmath.Int `json:"stipend"`             // gas stipend for the triggering party, wei
	TotalFees         sdkmath.Int `json:"total_fees"`          // GradFee + LockFee + Stipend
	TokenFee          sdkmath.Int `json:"token_fee"`           // treasury cut, 1% of circulating supply
	MarginalPrice     sdkmath.Int `json:"marginal_price"`      // wei per 1e18 token units at the cap
	EthForLiquidity   sdkmath.Int `json:"eth_for_liquidity"`   // wei paired into the external venue
	TokensToLiquidity sdkmath.Int `json:"tokens_to_liquidity"` // token units paired at MarginalPrice
	TokensToBurn      sdkmath.Int `json:"tokens_to_burn"`      // unminted remainder destroyed at graduation
	BuyAndBurnEth     sdkmath.Int `json:"buy_and_burn_eth"`    // wei redirected when headroom caps the pairing
}

// GraduationResult records the outcome of a completed graduation.
type GraduationResult struct {
	ID           string      `json:"id"`
	Token        Address     `json:"token"`
	RealToken    Address     `json:"real_token"`
	LPAddress    Address     `json:"lp_address"`
	Params       GradParams  `json:"params"`
	HolderCount  int         `json:"holder_count"`
	ClaimMode    bool        `json:"claim_mode"`
	TokensBought sdkmath.Int `json:"tokens_bought"` // bought and burned with BuyAndBurnEth
	Timestamp    time.Time   `json:"timestamp"`
}

// Limits is the currently effective pair of anti-whale ceilings. When Lifted is true the
// numeric fields carry no meaning and must not be consulted.
type Limits struct {
	MaxTx     sdkmath.Int `json:"max_tx"`
	MaxWallet sdkmath.Int `json:"max_wallet"`
	Lifted    bool        `json:"lifted"`
}
