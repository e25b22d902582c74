/*

This file contains the Trading Engine: the buy and sell entry points over the virtual
curve. Each call loads runtime state, resolves current rates, quotes the pricing curve,
enforces the anti-whale ceilings and slippage guards, then commits the state mutation and
the native-coin settlement in one ledger transaction. A buy that crosses the graduation
cap hands the same transaction to the Graduation Orchestrator, so the whole transition is
one atomic unit of work.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/curveforge/curved/internal/fees"
	"github.com/curveforge/curved/internal/ledger"
	"github.com/curveforge/curved/internal/logger"
	"github.com/curveforge/curved/internal/pricing"
	"github.com/curveforge/curved/internal/types"
)

var (
	ErrNotLive             = errors.New("trading has not started for this token")
	ErrAlreadyGraduated    = errors.New("token has already graduated")
	ErrCapReached          = errors.New("graduation cap already reached")
	ErrZeroQuote           = errors.New("trade quotes zero output")
	ErrSlippageExceeded    = errors.New("output below the requested minimum")
	ErrMaxTxExceeded       = errors.New("trade size exceeds the transaction ceiling")
	ErrMaxWalletExceeded   = errors.New("post-trade balance exceeds the wallet ceiling")
	ErrOvershootExceeded   = errors.New("buy overshoots the graduation cap beyond tolerance")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrDustNeedsFullAmount = errors.New("zero-value sell must liquidate the full balance")
	ErrNoGraduator         = errors.New("graduation orchestrator is not wired")
)

const bpsDenominator = 10_000

// Params is the platform-side trading configuration.
type Params struct {
	Treasury              types.Address
	CreatorGraceWindow    time.Duration
	OvershootToleranceBps uint64
}

// Graduator runs the graduation sequence inside the caller's ledger transaction.
type Graduator interface {
	GraduateInTx(ctx context.Context, tx ledger.Tx, token, trigger types.Address) (*types.GraduationResult, error)
}

// Engine is the trading entry surface for all curve-phase tokens.
type Engine struct {
	store     ledger.Store
	resolver  *fees.Resolver
	params    Params
	clock     clockwork.Clock
	guard     *reentrancyGuard
	graduator Graduator
	logger    zerolog.Logger
}

// New builds a trading engine. The graduation orchestrator is attached afterwards with
// SetGraduator because the two reference each other.
func New(store ledger.Store, resolver *fees.Resolver, params Params, clock clockwork.Clock) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		params:   params,
		clock:    clock,
		guard:    newReentrancyGuard(),
		logger:   logger.GetForComponent("trading_engine"),
	}
}

// SetGraduator wires the orchestrator invoked when a buy crosses the cap.
func (e *Engine) SetGraduator(g Graduator) {
	e.graduator = g
}

// RegisterToken records a validated profile and its initial runtime state. This is the
// hand-off point from the out-of-scope creation dispatcher.
func (e *Engine) RegisterToken(ctx context.Context, profile types.TokenProfile, startTime time.Time) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	if startTime.IsZero() {
		startTime = e.clock.Now()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = e.clock.Now()
	}

	tx, err := e.store.Begin(ctx, ledger.ActorAdmin)
	if err != nil {
		return err
	}
	defer rollbackQuietly(tx)

	if err := tx.PutProfile(profile); err != nil {
		return err
	}
	if err := tx.PutRuntime(types.RuntimeState{
		Token:             profile.Token,
		EthPool:           sdkmath.ZeroInt(),
		CirculatingSupply: sdkmath.ZeroInt(),
		StartTime:         startTime,
		LimitsStart:       startTime,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.logger.Info().
		Str("token", string(profile.Token)).
		Str("kind", string(profile.Kind)).
		Str("total_supply", profile.TotalSupply.String()).
		Msg("Token registered for curve trading")
	return nil
}

// Deposit credits an account's native balance. In a hosted deployment this is the
// on-ramp from the payment layer.
func (e *Engine) Deposit(ctx context.Context, account types.Address, amount sdkmath.Int) error {
	tx, err := e.store.Begin(ctx, ledger.ActorAdmin)
	if err != nil {
		return err
	}
	defer rollbackQuietly(tx)
	if err := tx.CreditNative(account, amount); err != nil {
		return err
	}
	return tx.Commit()
}

// Buy spends ethIn wei on the token's curve. minTokensOut of zero disables the
// slippage guard.
func (e *Engine) Buy(ctx context.Context, token, buyer types.Address, ethIn, minTokensOut sdkmath.Int) (*types.TradeReceipt, error) {
	if err := e.guard.enter(token); err != nil {
		return nil, err
	}
	defer e.guard.exit(token)

	tx, err := e.store.Begin(ctx, ledger.ActorTradingEngine)
	if err != nil {
		return nil, err
	}
	defer rollbackQuietly(tx)

	if ethIn.IsNil() || !ethIn.IsPositive() {
		return nil, pricing.ErrInvalidAmount
	}

	profile, err := tx.Profile(token)
	if err != nil {
		return nil, err
	}
	state, err := tx.Runtime(token)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	if now.Before(state.StartTime) {
		return nil, ErrNotLive
	}
	if state.Graduated {
		return nil, ErrAlreadyGraduated
	}
	if state.CirculatingSupply.GTE(profile.CurveCap) {
		return nil, ErrCapReached
	}

	tax, err := fees.TaxAt(profile, state.LimitsStart, now)
	if err != nil {
		return nil, err
	}
	split := e.resolver.SplitAmount(profile, ethIn, tax)

	tokensOut, err := pricing.TokensForEth(
		profile.TotalSupply, state.EthPool, state.CirculatingSupply, split.Remainder)
	if err != nil {
		return nil, err
	}
	if tokensOut.IsZero() {
		return nil, ErrZeroQuote
	}
	if !minTokensOut.IsNil() && minTokensOut.IsPositive() && tokensOut.LT(minTokensOut) {
		return nil, fmt.Errorf("%w: quoted %s, wanted at least %s",
			ErrSlippageExceeded, tokensOut, minTokensOut)
	}

	balance, err := tx.HolderBalance(token, buyer)
	if err != nil {
		return nil, err
	}

	// the creator may seed an initial position during the short grace window without
	// tripping the anti-whale ceilings
	graceActive := buyer == profile.Creator && now.Sub(profile.CreatedAt) < e.params.CreatorGraceWindow
	if !graceActive {
		limits, err := fees.LimitsAt(profile, state.LimitsStart, now)
		if err != nil {
			return nil, err
		}
		if !limits.Lifted {
			if tokensOut.GT(limits.MaxTx) {
				return nil, ErrMaxTxExceeded
			}
			if balance.Add(tokensOut).GT(limits.MaxWallet) {
				return nil, ErrMaxWalletExceeded
			}
		}
	}

	post := state.CirculatingSupply.Add(tokensOut)
	crossesCap := post.GTE(profile.CurveCap)
	if crossesCap {
		bound := profile.CurveCap.
			MulRaw(int64(bpsDenominator + e.params.OvershootToleranceBps)).
			QuoRaw(bpsDenominator)
		if post.GT(bound) {
			return nil, fmt.Errorf("%w: post-trade supply %s, bound %s",
				ErrOvershootExceeded, post, bound)
		}
	}

	// settlement: the buyer funds the whole gross, fee recipients are credited in the
	// same unit of work, so a failed transfer aborts the entire call
	if err := tx.DebitNative(buyer, ethIn); err != nil {
		return nil, err
	}
	if err := e.settleFees(tx, profile, split); err != nil {
		return nil, err
	}
	refund := ethIn.Sub(split.PlatformFee).Sub(split.DevFee).Sub(split.Remainder)
	if refund.IsPositive() {
		if err := tx.CreditNative(buyer, refund); err != nil {
			return nil, err
		}
	}

	state.EthPool = state.EthPool.Add(split.Remainder)
	state.CirculatingSupply = post
	if err := tx.PutRuntime(state); err != nil {
		return nil, err
	}
	if err := tx.SetHolderBalance(token, buyer, balance.Add(tokensOut)); err != nil {
		return nil, err
	}

	receipt := &types.TradeReceipt{
		ID:          uuid.New().String(),
		Token:       token,
		Trader:      buyer,
		Side:        types.SideBuy,
		EthAmount:   split.Remainder,
		TokenAmount: tokensOut,
		PlatformFee: split.PlatformFee,
		DevFee:      split.DevFee,
		Refund:      refund,
		Timestamp:   now,
	}
	if err := tx.RecordEvent(types.MarketEvent{
		ID:          receipt.ID,
		Kind:        types.EventTrade,
		Token:       token,
		Actor:       buyer,
		Side:        types.SideBuy,
		EthAmount:   split.Remainder,
		TokenAmount: tokensOut,
		PlatformFee: split.PlatformFee,
		DevFee:      split.DevFee,
		Timestamp:   now,
	}); err != nil {
		return nil, err
	}

	if crossesCap {
		if e.graduator == nil {
			return nil, ErrNoGraduator
		}
		if _, err := e.graduator.GraduateInTx(ctx, tx, token, buyer); err != nil {
			return nil, fmt.Errorf("graduation triggered by buy failed: %w", err)
		}
		receipt.Graduated = true
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("token", string(token)).
		Str("buyer", string(buyer)).
		Str("eth_in", ethIn.String()).
		Str("tokens_out", tokensOut.String()).
		Bool("graduated", receipt.Graduated).
		Msg("Buy committed")
	return receipt, nil
}

// Sell returns amount token units to the curve. minEthOut of zero disables the slippage
// guard. A quote of exactly zero wei takes the dust path: the full remaining balance is
// burned with no value motion.
func (e *Engine) Sell(ctx context.Context, token, seller types.Address, amount, minEthOut sdkmath.Int) (*types.TradeReceipt, error) {
	if err := e.guard.enter(token); err != nil {
		return nil, err
	}
	defer e.guard.exit(token)

	tx, err := e.store.Begin(ctx, ledger.ActorTradingEngine)
	if err != nil {
		return nil, err
	}
	defer rollbackQuietly(tx)

	profile, err := tx.Profile(token)
	if err != nil {
		return nil, err
	}
	state, err := tx.Runtime(token)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	if now.Before(state.StartTime) {
		return nil, ErrNotLive
	}
	if state.Graduated {
		return nil, ErrAlreadyGraduated
	}

	balance, err := tx.HolderBalance(token, seller)
	if err != nil {
		return nil, err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return nil, pricing.ErrInvalidAmount
	}
	if balance.LT(amount) {
		return nil, ErrInsufficientBalance
	}

	limits, err := fees.LimitsAt(profile, state.LimitsStart, now)
	if err != nil {
		return nil, err
	}
	if !limits.Lifted && amount.GT(limits.MaxTx) {
		return nil, ErrMaxTxExceeded
	}

	gross, err := pricing.EthForTokens(
		profile.TotalSupply, state.EthPool, state.CirculatingSupply, amount)
	if err != nil {
		return nil, err
	}

	if gross.IsZero() {
		return e.sellDust(tx, token, seller, amount, balance, state, now)
	}

	tax, err := fees.TaxAt(profile, state.LimitsStart, now)
	if err != nil {
		return nil, err
	}
	split := e.resolver.SplitAmount(profile, gross, tax)
	if !minEthOut.IsNil() && minEthOut.IsPositive() && split.Remainder.LT(minEthOut) {
		return nil, fmt.Errorf("%w: quoted %s, wanted at least %s",
			ErrSlippageExceeded, split.Remainder, minEthOut)
	}

	// fees come out of the gross pulled from the pool, never on top of it
	state.EthPool = state.EthPool.Sub(gross)
	state.CirculatingSupply = state.CirculatingSupply.Sub(amount)
	if err := tx.PutRuntime(state); err != nil {
		return nil, err
	}
	if err := tx.SetHolderBalance(token, seller, balance.Sub(amount)); err != nil {
		return nil, err
	}
	if err := tx.CreditNative(seller, split.Remainder); err != nil {
		return nil, err
	}
	if err := e.settleFees(tx, profile, split); err != nil {
		return nil, err
	}

	receipt := &types.TradeReceipt{
		ID:          uuid.New().String(),
		Token:       token,
		Trader:      seller,
		Side:        types.SideSell,
		EthAmount:   split.Remainder,
		TokenAmount: amount,
		PlatformFee: split.PlatformFee,
		DevFee:      split.DevFee,
		Refund:      sdkmath.ZeroInt(),
		Timestamp:   now,
	}
	if err := tx.RecordEvent(types.MarketEvent{
		ID:          receipt.ID,
		Kind:        types.EventTrade,
		Token:       token,
		Actor:       seller,
		Side:        types.SideSell,
		EthAmount:   split.Remainder,
		TokenAmount: amount,
		PlatformFee: split.PlatformFee,
		DevFee:      split.DevFee,
		Timestamp:   now,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("token", string(token)).
		Str("seller", string(seller)).
		Str("amount", amount.String()).
		Str("eth_out", split.Remainder.String()).
		Msg("Sell committed")
	return receipt, nil
}

// sellDust burns an un-sellable remainder. The quote rounded to zero wei, so the whole
// remaining balance is destroyed instead of leaving a position that can never exit.
func (e *Engine) sellDust(tx ledger.Tx, token, seller types.Address, amount, balance sdkmath.Int, state types.RuntimeState, now time.Time) (*types.TradeReceipt, error) {
	if !amount.Equal(balance) {
		return nil, ErrDustNeedsFullAmount
	}

	state.CirculatingSupply = state.CirculatingSupply.Sub(amount)
	if err := tx.PutRuntime(state); err != nil {
		return nil, err
	}
	if err := tx.SetHolderBalance(token, seller, sdkmath.ZeroInt()); err != nil {
		return nil, err
	}

	receipt := &types.TradeReceipt{
		ID:          uuid.New().String(),
		Token:       token,
		Trader:      seller,
		Side:        types.SideSell,
		EthAmount:   sdkmath.ZeroInt(),
		TokenAmount: amount,
		PlatformFee: sdkmath.ZeroInt(),
		DevFee:      sdkmath.ZeroInt(),
		Refund:      sdkmath.ZeroInt(),
		DustBurn:    true,
		Timestamp:   now,
	}
	if err := tx.RecordEvent(types.MarketEvent{
		ID:          receipt.ID,
		Kind:        types.EventTrade,
		Token:       token,
		Actor:       seller,
		Side:        types.SideSell,
		EthAmount:   sdkmath.ZeroInt(),
		TokenAmount: amount,
		PlatformFee: sdkmath.ZeroInt(),
		DevFee:      sdkmath.ZeroInt(),
		Timestamp:   now,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("token", string(token)).
		Str("seller", string(seller)).
		Str("burned", amount.String()).
		Msg("Dust balance burned")
	return receipt, nil
}

// settleFees credits the platform fee and the dev-tax split.
func (e *Engine) settleFees(tx ledger.Tx, profile types.TokenProfile, split fees.Split) error {
	if split.PlatformFee.IsPositive() {
		if err := tx.CreditNative(e.params.Treasury, split.PlatformFee); err != nil {
			return err
		}
	}
	if split.DevFee.IsPositive() {
		skim, payee := e.resolver.SkimForTreasury(split.DevFee)
		if skim.IsPositive() {
			if err := tx.CreditNative(e.params.Treasury, skim); err != nil {
				return err
			}
		}
		if payee.IsPositive() {
			target := profile.TaxPayee
			if target.IsZero() {
				target = profile.Creator
			}
			if err := tx.CreditNative(target, payee); err != nil {
				return err
			}
		}
	}
	return nil
}

// Quote is the read-only price preview used by the web surface.
func (e *Engine) Quote(ctx context.Context, token types.Address, side types.TradeSide, amount sdkmath.Int) (sdkmath.Int, error) {
	profile, err := e.store.ReadProfile(ctx, token)
	if err != nil {
		return sdkmath.Int{}, err
	}
	state, err := e.store.ReadRuntime(ctx, token)
	if err != nil {
		return sdkmath.Int{}, err
	}
	now := e.clock.Now()
	tax, err := fees.TaxAt(profile, state.LimitsStart, now)
	if err != nil {
		return sdkmath.Int{}, err
	}

	switch side {
	case types.SideBuy:
		split := e.resolver.SplitAmount(profile, amount, tax)
		return pricing.TokensForEth(
			profile.TotalSupply, state.EthPool, state.CirculatingSupply, split.Remainder)
	case types.SideSell:
		gross, err := pricing.EthForTokens(
			profile.TotalSupply, state.EthPool, state.CirculatingSupply, amount)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return e.resolver.SplitAmount(profile, gross, tax).Remainder, nil
	default:
		return sdkmath.Int{}, fmt.Errorf("unknown trade side %q", side)
	}
}

// rollbackQuietly discards a transaction that was not committed; the double-finish
// error after a successful commit is expected and dropped.
func rollbackQuietly(tx ledger.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, ledger.ErrTxDone) {
		l := logger.GetForComponent("trading_engine")
		l.Error().Err(err).Msg("rollback failed")
	}
}
