/*

This file contains the interfaces for the external collaborators of the graduation
sequence: the real-token deployer, the external liquidity venue, and the LP locker.
They are injected into the orchestrator; every call happens inside the reentrancy-guarded
window because any of them may attempt to call back into the trading surface.

*/

package collab

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/curveforge/curved/internal/types"
)

// DeploySpec carries the resolved parameters of a real-token deployment.
type DeploySpec struct {
	Name         string
	Symbol       string
	Creator      types.Address
	TaxPayee     types.Address
	IsTax        bool
	Headerless   bool
	FinalTaxRate uint64
	MaxSupply    sdkmath.Int
}

// TokenDeployer deploys and manages real ERC-20 style tokens.
type TokenDeployer interface {
	Deploy(ctx context.Context, spec DeploySpec) (types.Address, error)
	Mint(ctx context.Context, token, to types.Address, amount sdkmath.Int) error
	Transfer(ctx context.Context, token, from, to types.Address, amount sdkmath.Int) error
	BalanceOf(ctx context.Context, token, account types.Address) (sdkmath.Int, error)
}

// LiquidityVenue seeds external liquidity and executes the post-graduation buy-and-burn
// swap.
type LiquidityVenue interface {
	// AddLiquidity pairs tokenAmount with ethAmount and returns the LP token address
	// and the liquidity units credited to owner.
	AddLiquidity(ctx context.Context, token types.Address, tokenAmount, ethAmount sdkmath.Int, owner types.Address) (types.Address, sdkmath.Int, error)
	// SwapEthForTokens swaps ethIn against the seeded pool, crediting the bought
	// tokens to the recipient.
	SwapEthForTokens(ctx context.Context, token types.Address, ethIn sdkmath.Int, recipient types.Address) (sdkmath.Int, error)
	// TransferLiquidity moves liquidity units between owners (burn disposition moves
	// them to the burn address).
	TransferLiquidity(ctx context.Context, lpToken types.Address, from, to types.Address, amount sdkmath.Int) error
}

// LiquidityLocker escrows an LP position for a duration, charging a payable fee.
type LiquidityLocker interface {
	Lock(ctx context.Context, lpToken types.Address, amount sdkmath.Int, duration time.Duration, owner types.Address, fee sdkmath.Int) error
}
