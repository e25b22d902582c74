/*

This file contains in-process reference implementations of the external collaborators.
They keep real-token balances, venue pools and lock records in memory so the market runs
end-to-end without external contracts; deployments that front real contracts replace
these with their own adapters.

*/

package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curveforge/curved/internal/logger"
	"github.com/curveforge/curved/internal/types"
)

var (
	ErrTokenNotDeployed   = errors.New("token has not been deployed")
	ErrInsufficientTokens = errors.New("insufficient token balance")
	ErrPoolNotSeeded      = errors.New("liquidity pool has not been seeded")
)

type deployedToken struct {
	spec     DeploySpec
	minted   sdkmath.Int
	balances map[types.Address]sdkmath.Int
}

// InProcessDeployer is a TokenDeployer backed by process memory.
type InProcessDeployer struct {
	mu     sync.Mutex
	tokens map[types.Address]*deployedToken
	logger zerolog.Logger
}

func NewInProcessDeployer() *InProcessDeployer {
	return &InProcessDeployer{
		tokens: make(map[types.Address]*deployedToken),
		logger: logger.GetForComponent("token_deployer"),
	}
}

func (d *InProcessDeployer) Deploy(_ context.Context, spec DeploySpec) (types.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	addr := types.Address("0xreal-" + uuid.New().String())
	d.tokens[addr] = &deployedToken{
		spec:     spec,
		minted:   sdkmath.ZeroInt(),
		balances: make(map[types.Address]sdkmath.Int),
	}
	d.logger.Info().
		Str("token", string(addr)).
		Str("symbol", spec.Symbol).
		Bool("headerless", spec.Headerless).
		Bool("is_tax", spec.IsTax).
		Msg("Deployed real token")
	return addr, nil
}

func (d *InProcessDeployer) Mint(_ context.Context, token, to types.Address, amount sdkmath.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tokens[token]
	if !ok {
		return ErrTokenNotDeployed
	}
	if t.minted.Add(amount).GT(t.spec.MaxSupply) {
		return fmt.Errorf("mint of %s exceeds max supply %s", amount, t.spec.MaxSupply)
	}
	t.minted = t.minted.Add(amount)
	cur := t.balances[to]
	if cur.IsNil() {
		cur = sdkmath.ZeroInt()
	}
	t.balances[to] = cur.Add(amount)
	return nil
}

func (d *InProcessDeployer) Transfer(_ context.Context, token, from, to types.Address, amount sdkmath.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tokens[token]
	if !ok {
		return ErrTokenNotDeployed
	}
	cur := t.balances[from]
	if cur.IsNil() || cur.LT(amount) {
		return ErrInsufficientTokens
	}
	t.balances[from] = cur.Sub(amount)
	dst := t.balances[to]
	if dst.IsNil() {
		dst = sdkmath.ZeroInt()
	}
	t.balances[to] = dst.Add(amount)
	return nil
}

func (d *InProcessDeployer) BalanceOf(_ context.Context, token, account types.Address) (sdkmath.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tokens[token]
	if !ok {
		return sdkmath.Int{}, ErrTokenNotDeployed
	}
	b := t.balances[account]
	if b.IsNil() {
		return sdkmath.ZeroInt(), nil
	}
	return b, nil
}

type venuePool struct {
	lpToken      types.Address
	tokenReserve sdkmath.Int
	ethReserve   sdkmath.Int
	liquidity    map[types.Address]sdkmath.Int
}

// InProcessVenue is a LiquidityVenue with constant-product pools in memory.
type InProcessVenue struct {
	mu       sync.Mutex
	deployer *InProcessDeployer
	pools    map[types.Address]*venuePool // real token -> pool
	logger   zerolog.Logger
}

func NewInProcessVenue(deployer *InProcessDeployer) *InProcessVenue {
	return &InProcessVenue{
		deployer: deployer,
		pools:    make(map[types.Address]*venuePool),
		logger:   logger.GetForComponent("liquidity_venue"),
	}
}

func (v *InProcessVenue) AddLiquidity(ctx context.Context, token types.Address, tokenAmount, ethAmount sdkmath.Int, owner types.Address) (types.Address, sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool, ok := v.pools[token]
	if !ok {
		pool = &venuePool{
			lpToken:      types.Address("0xlp-" + uuid.New().String()),
			tokenReserve: sdkmath.ZeroInt(),
			ethReserve:   sdkmath.ZeroInt(),
			liquidity:    make(map[types.Address]sdkmath.Int),
		}
		v.pools[token] = pool
	}
	pool.tokenReserve = pool.tokenReserve.Add(tokenAmount)
	pool.ethReserve = pool.ethReserve.Add(ethAmount)

	// liquidity units are the token side of the deposit; adequate for lock/burn
	// accounting in a single-venue deployment
	units := tokenAmount
	cur := pool.liquidity[owner]
	if cur.IsNil() {
		cur = sdkmath.ZeroInt()
	}
	pool.liquidity[owner] = cur.Add(units)

	v.logger.Info().
		Str("token", string(token)).
		Str("token_amount", tokenAmount.String()).
		Str("eth_amount", ethAmount.String()).
		Msg("Seeded external liquidity")
	return pool.lpToken, units, nil
}

func (v *InProcessVenue) SwapEthForTokens(ctx context.Context, token types.Address, ethIn sdkmath.Int, recipient types.Address) (sdkmath.Int, error) {
	v.mu.Lock()
	pool, ok := v.pools[token]
	if !ok || pool.tokenReserve.IsZero() {
		v.mu.Unlock()
		return sdkmath.Int{}, ErrPoolNotSeeded
	}

	k := pool.tokenReserve.Mul(pool.ethReserve)
	newEth := pool.ethReserve.Add(ethIn)
	newTokens := k.Quo(newEth)
	out := pool.tokenReserve.Sub(newTokens)
	pool.ethReserve = newEth
	pool.tokenReserve = newTokens
	v.mu.Unlock()

	// the pool's token side was funded by the orchestrator's mint at seeding time, so
	// the swap output is transferred out of the venue's own holding
	if err := v.deployer.Transfer(ctx, token, VenueAccount, recipient, out); err != nil {
		return sdkmath.Int{}, err
	}
	return out, nil
}

func (v *InProcessVenue) TransferLiquidity(_ context.Context, lpToken types.Address, from, to types.Address, amount sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, pool := range v.pools {
		if pool.lpToken != lpToken {
			continue
		}
		cur := pool.liquidity[from]
		if cur.IsNil() || cur.LT(amount) {
			return ErrInsufficientTokens
		}
		pool.liquidity[from] = cur.Sub(amount)
		dst := pool.liquidity[to]
		if dst.IsNil() {
			dst = sdkmath.ZeroInt()
		}
		pool.liquidity[to] = dst.Add(amount)
		return nil
	}
	return ErrPoolNotSeeded
}

// VenueAccount holds the venue's own token-side reserves.
const VenueAccount = types.Address("0xvenue")

type lockRecord struct {
	lpToken  types.Address
	amount   sdkmath.Int
	owner    types.Address
	unlockAt time.Time
}

// InProcessLocker records LP locks in memory.
type InProcessLocker struct {
	mu     sync.Mutex
	locks  []lockRecord
	logger zerolog.Logger
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{logger: logger.GetForComponent("lp_locker")}
}

func (l *InProcessLocker) Lock(_ context.Context, lpToken types.Address, amount sdkmath.Int, duration time.Duration, owner types.Address, fee sdkmath.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.locks = append(l.locks, lockRecord{
		lpToken:  lpToken,
		amount:   amount,
		owner:    owner,
		unlockAt: time.Now().Add(duration),
	})
	l.logger.Info().
		Str("lp_token", string(lpToken)).
		Str("amount", amount.String()).
		Dur("duration", duration).
		Str("fee", fee.String()).
		Msg("Locked LP position")
	return nil
}
