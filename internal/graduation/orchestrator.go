/*

This file contains the Graduation Orchestrator: the one-way transition of a curve token
into a real, liquidity-backed token. The whole sequence runs inside a single ledger
transaction, usually the one opened by the buy that crossed the cap, so any failing step
rolls the trade and the graduation back together and the graduated flag is never set on a
partial run.

*/

package graduation

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/curveforge/curved/internal/collab"
	"github.com/curveforge/curved/internal/ledger"
	"github.com/curveforge/curved/internal/logger"
	"github.com/curveforge/curved/internal/oracle"
	"github.com/curveforge/curved/internal/types"
)

var (
	ErrNotGraduated   = errors.New("token has not graduated")
	ErrNotClaimMode   = errors.New("token did not graduate in claim mode")
	ErrNothingToClaim = errors.New("holder has nothing to claim")
	ErrAlreadyClaimed = errors.New("holder has already claimed")
)

// Params is the platform-side graduation configuration.
type Params struct {
	Treasury             types.Address
	VenueAccount         types.Address // token-side funding account of the liquidity venue
	GradFee              sdkmath.Int
	LockFee              sdkmath.Int
	MinPoolUsd           uint64
	MaxPoolUsd           uint64
	ClaimModeThreshold   int // holder count above which distribution defers to claims
	StipendMultiplierBps uint64
	StipendFloor         sdkmath.Int
	StipendCap           sdkmath.Int
}

// Orchestrator executes graduations and the deferred claim distribution.
type Orchestrator struct {
	store    ledger.Store
	deployer collab.TokenDeployer
	venue    collab.LiquidityVenue
	locker   collab.LiquidityLocker
	prices   *oracle.Guard
	clock    clockwork.Clock
	params   Params
	logger   zerolog.Logger
}

// New builds a graduation orchestrator.
func New(store ledger.Store, deployer collab.TokenDeployer, venue collab.LiquidityVenue, locker collab.LiquidityLocker, prices *oracle.Guard, clock clockwork.Clock, params Params) *Orchestrator {
	return &Orchestrator{
		store:    store,
		deployer: deployer,
		venue:    venue,
		locker:   locker,
		prices:   prices,
		clock:    clock,
		params:   params,
		logger:   logger.GetForComponent("graduation_orchestrator"),
	}
}

// GraduateInTx runs the full graduation sequence inside the caller's transaction. The
// trigger receives the gas stipend.
func (o *Orchestrator) GraduateInTx(ctx context.Context, tx ledger.Tx, token, trigger types.Address) (*types.GraduationResult, error) {
	profile, err := tx.Profile(token)
	if err != nil {
		return nil, err
	}
	state, err := tx.Runtime(token)
	if err != nil {
		return nil, err
	}
	holders, err := tx.Holders(token)
	if err != nil {
		return nil, err
	}
	claimMode := len(holders) > o.params.ClaimModeThreshold

	params, err := o.computeParams(ctx, profile, state, len(holders), claimMode)
	if err != nil {
		return nil, err
	}

	// freeze the curve: the whole pool leaves in this transaction, split exactly into
	// fees, stipend, liquidity and the buy-and-burn leg
	pool := state.EthPool
	state.EthPool = sdkmath.ZeroInt()
	if err := tx.PutRuntime(state); err != nil {
		return nil, err
	}
	if err := tx.CreditNative(o.params.Treasury, params.GradFee); err != nil {
		return nil, err
	}
	if params.Stipend.IsPositive() {
		if err := tx.CreditNative(trigger, params.Stipend); err != nil {
			return nil, err
		}
	}

	realToken, err := o.deployer.Deploy(ctx, collab.DeploySpec{
		Name:         profile.Name,
		Symbol:       profile.Symbol,
		Creator:      profile.Creator,
		TaxPayee:     profile.TaxPayee,
		IsTax:        profile.Taxed(),
		Headerless:   profile.Headerless,
		FinalTaxRate: profile.FinalTaxRate,
		MaxSupply:    profile.TotalSupply,
	})
	if err != nil {
		return nil, fmt.Errorf("real token deployment failed: %w", err)
	}

	if !claimMode {
		for _, holder := range holders {
			balance, err := tx.HolderBalance(token, holder)
			if err != nil {
				return nil, err
			}
			if balance.IsZero() {
				continue
			}
			if err := o.deployer.Mint(ctx, realToken, holder, balance); err != nil {
				return nil, fmt.Errorf("airdrop to %s failed: %w", holder, err)
			}
		}
		if err := tx.ClearHolders(token); err != nil {
			return nil, err
		}
	}

	if params.TokenFee.IsPositive() {
		if err := o.deployer.Mint(ctx, realToken, o.params.Treasury, params.TokenFee); err != nil {
			return nil, fmt.Errorf("token fee mint failed: %w", err)
		}
	}

	// the venue's token side is funded by mint so the swap leg below can pay out of it
	if err := o.deployer.Mint(ctx, realToken, o.params.VenueAccount, params.TokensToLiquidity); err != nil {
		return nil, fmt.Errorf("liquidity mint failed: %w", err)
	}
	lpAddress, lpUnits, err := o.venue.AddLiquidity(ctx, realToken, params.TokensToLiquidity, params.EthForLiquidity, o.params.Treasury)
	if err != nil {
		return nil, fmt.Errorf("liquidity seeding failed: %w", err)
	}

	if profile.LPBurn {
		if err := o.venue.TransferLiquidity(ctx, lpAddress, o.params.Treasury, types.BurnAddress, lpUnits); err != nil {
			return nil, fmt.Errorf("lp burn failed: %w", err)
		}
	} else {
		if err := o.locker.Lock(ctx, lpAddress, lpUnits, profile.LPLockTime, profile.Creator, params.LockFee); err != nil {
			return nil, fmt.Errorf("lp lock failed: %w", err)
		}
	}

	tokensBought := sdkmath.ZeroInt()
	if params.BuyAndBurnEth.IsPositive() {
		tokensBought, err = o.venue.SwapEthForTokens(ctx, realToken, params.BuyAndBurnEth, types.BurnAddress)
		if err != nil {
			return nil, fmt.Errorf("buy-and-burn swap failed: %w", err)
		}
	}

	if params.TokensToBurn.IsPositive() {
		if err := o.deployer.Mint(ctx, realToken, types.BurnAddress, params.TokensToBurn); err != nil {
			return nil, fmt.Errorf("remainder burn failed: %w", err)
		}
	}

	if err := tx.MarkGraduated(token, realToken, lpAddress, claimMode); err != nil {
		return nil, err
	}
	if claimMode {
		if err := tx.SetClaimCursor(token, 0); err != nil {
			return nil, err
		}
	}

	now := o.clock.Now()
	result := &types.GraduationResult{
		ID:           uuid.New().String(),
		Token:        token,
		RealToken:    realToken,
		LPAddress:    lpAddress,
		Params:       params,
		HolderCount:  len(holders),
		ClaimMode:    claimMode,
		TokensBought: tokensBought,
		Timestamp:    now,
	}
	if err := tx.RecordEvent(types.MarketEvent{
		ID:          result.ID,
		Kind:        types.EventGraduation,
		Token:       token,
		Actor:       trigger,
		EthAmount:   pool,
		TokenAmount: params.TokensToLiquidity,
		PlatformFee: params.GradFee,
		DevFee:      sdkmath.ZeroInt(),
		Timestamp:   now,
	}); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("token", string(token)).
		Str("real_token", string(realToken)).
		Str("lp", string(lpAddress)).
		Int("holders", len(holders)).
		Bool("claim_mode", claimMode).
		Str("eth_for_liquidity", params.EthForLiquidity.String()).
		Str("buy_and_burn_eth", params.BuyAndBurnEth.String()).
		Msg("Token graduated")
	return result, nil
}

// Graduate opens its own transaction and graduates the token. This is the manual path
// for tokens that sit exactly at the cap without a crossing buy.
func (o *Orchestrator) Graduate(ctx context.Context, token, trigger types.Address) (*types.GraduationResult, error) {
	tx, err := o.store.Begin(ctx, ledger.ActorGraduation)
	if err != nil {
		return nil, err
	}
	defer rollbackQuietly(tx)

	result, err := o.GraduateInTx(ctx, tx, token, trigger)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// Claim mints a single holder's graduated balance. Idempotent per holder.
func (o *Orchestrator) Claim(ctx context.Context, token, holder types.Address) (sdkmath.Int, error) {
	tx, err := o.store.Begin(ctx, ledger.ActorGraduation)
	if err != nil {
		return sdkmath.Int{}, err
	}
	defer rollbackQuietly(tx)

	state, err := tx.Runtime(token)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !state.Graduated {
		return sdkmath.Int{}, ErrNotGraduated
	}
	if !state.ClaimMode {
		return sdkmath.Int{}, ErrNotClaimMode
	}

	claimed, err := tx.Claimed(token, holder)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if claimed {
		return sdkmath.Int{}, ErrAlreadyClaimed
	}
	balance, err := tx.HolderBalance(token, holder)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if balance.IsZero() {
		return sdkmath.Int{}, ErrNothingToClaim
	}

	if err := o.deployer.Mint(ctx, state.RealToken, holder, balance); err != nil {
		return sdkmath.Int{}, fmt.Errorf("claim mint failed: %w", err)
	}
	if err := tx.MarkClaimed(token, holder); err != nil {
		return sdkmath.Int{}, err
	}

	now := o.clock.Now()
	if err := tx.RecordEvent(types.MarketEvent{
		ID:          uuid.New().String(),
		Kind:        types.EventClaim,
		Token:       token,
		Actor:       holder,
		EthAmount:   sdkmath.ZeroInt(),
		TokenAmount: balance,
		PlatformFee: sdkmath.ZeroInt(),
		DevFee:      sdkmath.ZeroInt(),
		Timestamp:   now,
	}); err != nil {
		return sdkmath.Int{}, err
	}
	if err := tx.Commit(); err != nil {
		return sdkmath.Int{}, err
	}

	o.logger.Info().
		Str("token", string(token)).
		Str("holder", string(holder)).
		Str("amount", balance.String()).
		Msg("Claim settled")
	return balance, nil
}

// SweepClaims pushes up to batchSize outstanding claims out on holders' behalf, resuming
// from the persisted cursor. It returns the number of claims settled in this batch and
// whether the sweep has reached the end of the registry.
func (o *Orchestrator) SweepClaims(ctx context.Context, token types.Address, batchSize int) (int, bool, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	tx, err := o.store.Begin(ctx, ledger.ActorGraduation)
	if err != nil {
		return 0, false, err
	}
	defer rollbackQuietly(tx)

	state, err := tx.Runtime(token)
	if err != nil {
		return 0, false, err
	}
	if !state.Graduated {
		return 0, false, ErrNotGraduated
	}
	if !state.ClaimMode {
		return 0, false, ErrNotClaimMode
	}

	holders, err := tx.Holders(token)
	if err != nil {
		return 0, false, err
	}
	cursor, err := tx.ClaimCursor(token)
	if err != nil {
		return 0, false, err
	}
	if cursor >= len(holders) {
		return 0, true, nil
	}

	end := cursor + batchSize
	if end > len(holders) {
		end = len(holders)
	}

	settled := 0
	now := o.clock.Now()
	for _, holder := range holders[cursor:end] {
		claimed, err := tx.Claimed(token, holder)
		if err != nil {
			return 0, false, err
		}
		if claimed {
			continue
		}
		balance, err := tx.HolderBalance(token, holder)
		if err != nil {
			return 0, false, err
		}
		if balance.IsZero() {
			continue
		}
		if err := o.deployer.Mint(ctx, state.RealToken, holder, balance); err != nil {
			return 0, false, fmt.Errorf("sweep mint to %s failed: %w", holder, err)
		}
		if err := tx.MarkClaimed(token, holder); err != nil {
			return 0, false, err
		}
		if err := tx.RecordEvent(types.MarketEvent{
			ID:          uuid.New().String(),
			Kind:        types.EventClaim,
			Token:       token,
			Actor:       holder,
			EthAmount:   sdkmath.ZeroInt(),
			TokenAmount: balance,
			PlatformFee: sdkmath.ZeroInt(),
			DevFee:      sdkmath.ZeroInt(),
			Timestamp:   now,
		}); err != nil {
			return 0, false, err
		}
		settled++
	}

	if err := tx.SetClaimCursor(token, end); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}

	done := end >= len(holders)
	o.logger.Info().
		Str("token", string(token)).
		Int("settled", settled).
		Int("cursor", end).
		Bool("done", done).
		Msg("Claim sweep batch committed")
	return settled, done, nil
}

func rollbackQuietly(tx ledger.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, ledger.ErrTxDone) {
		l := logger.GetForComponent("graduation_orchestrator")
		l.Error().Err(err).Msg("rollback failed")
	}
}
