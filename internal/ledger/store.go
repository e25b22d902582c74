/*

This file contains the Curve Ledger contract: the store interface every other component
programs against, and the authorization gate guarding all mutating access. RuntimeState
and holder balances are owned by the Trading Engine and the Graduation Orchestrator;
nothing else may write them.

*/

package ledger

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/curveforge/curved/internal/types"
)

// Writer identities accepted by the authorization gate.
const (
	ActorTradingEngine = "trading_engine"
	ActorGraduation    = "graduation_orchestrator"
	ActorAdmin         = "admin"
)

var (
	ErrUnauthorizedWriter  = errors.New("actor is not authorized to write the ledger")
	ErrTokenUnknown        = errors.New("token is not registered in the ledger")
	ErrTokenExists         = errors.New("token is already registered")
	ErrInsufficientNative  = errors.New("insufficient native balance")
	ErrNegativeAmount      = errors.New("ledger amount is nil or negative")
	ErrNegativePool        = errors.New("eth pool would go negative")
	ErrSupplyExceeded      = errors.New("circulating supply would exceed total supply")
	ErrTxDone              = errors.New("ledger transaction already finished")
)

// Tx is one atomic unit of ledger work. Reads are open; every mutating call passes
// through the authorization gate. Either Commit or Rollback must be called exactly once.
type Tx interface {
	// Reads.
	Profile(token types.Address) (types.TokenProfile, error)
	Runtime(token types.Address) (types.RuntimeState, error)
	HolderBalance(token, holder types.Address) (sdkmath.Int, error)
	Holders(token types.Address) ([]types.Address, error)
	NativeBalance(account types.Address) (sdkmath.Int, error)
	Claimed(token, holder types.Address) (bool, error)
	ClaimCursor(token types.Address) (int, error)

	// Writes, authorization-gated.
	PutProfile(p types.TokenProfile) error
	PutRuntime(s types.RuntimeState) error
	SetHolderBalance(token, holder types.Address, balance sdkmath.Int) error
	CreditNative(account types.Address, amount sdkmath.Int) error
	DebitNative(account types.Address, amount sdkmath.Int) error
	MarkGraduated(token, realToken, lpAddress types.Address, claimMode bool) error
	ClearHolders(token types.Address) error
	MarkClaimed(token, holder types.Address) error
	SetClaimCursor(token types.Address, cursor int) error
	RecordEvent(ev types.MarketEvent) error

	Commit() error
	Rollback() error
}

// Store opens ledger transactions on behalf of a named actor.
type Store interface {
	Begin(ctx context.Context, actor string) (Tx, error)

	// Read-only conveniences used by the web surface.
	ReadRuntime(ctx context.Context, token types.Address) (types.RuntimeState, error)
	ReadProfile(ctx context.Context, token types.Address) (types.TokenProfile, error)
	RecentEvents(ctx context.Context, limit int) ([]types.MarketEvent, error)

	Close() error
}

// gate is the shared authorization allow-list.
type gate struct {
	allowed map[string]bool
}

func newGate(writers []string) gate {
	allowed := make(map[string]bool, len(writers))
	for _, w := range writers {
		allowed[w] = true
	}
	return gate{allowed: allowed}
}

func (g gate) authorize(actor string) error {
	if !g.allowed[actor] {
		return ErrUnauthorizedWriter
	}
	return nil
}

// checkRuntime enforces the ledger-level invariants on a runtime-state write.
func checkRuntime(p types.TokenProfile, s types.RuntimeState) error {
	if s.EthPool.IsNil() || s.EthPool.IsNegative() {
		return ErrNegativePool
	}
	if s.CirculatingSupply.IsNil() || s.CirculatingSupply.IsNegative() ||
		s.CirculatingSupply.GT(p.TotalSupply) {
		return ErrSupplyExceeded
	}
	return nil
}
