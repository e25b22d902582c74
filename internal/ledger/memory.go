/*

This file contains the in-memory ledger. It backs tests (the fake ledger the
authorization invariant is verified against) and single-process deployments without
postgres. A transaction snapshots the full state under the store lock and swaps it back
on commit, so rollback is a no-op discard.

*/

package ledger

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/curveforge/curved/internal/types"
)

type memState struct {
	profiles map[types.Address]types.TokenProfile
	runtime  map[types.Address]types.RuntimeState
	balances map[types.Address]map[types.Address]sdkmath.Int
	holders  map[types.Address][]types.Address
	holderIx map[types.Address]map[types.Address]int
	native   map[types.Address]sdkmath.Int
	claimed  map[types.Address]map[types.Address]bool
	cursors  map[types.Address]int
	events   []types.MarketEvent
}

func newMemState() *memState {
	return &memState{
		profiles: make(map[types.Address]types.TokenProfile),
		runtime:  make(map[types.Address]types.RuntimeState),
		balances: make(map[types.Address]map[types.Address]sdkmath.Int),
		holders:  make(map[types.Address][]types.Address),
		holderIx: make(map[types.Address]map[types.Address]int),
		native:   make(map[types.Address]sdkmath.Int),
		claimed:  make(map[types.Address]map[types.Address]bool),
		cursors:  make(map[types.Address]int),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.runtime {
		c.runtime[k] = v
	}
	for token, m := range s.balances {
		inner := make(map[types.Address]sdkmath.Int, len(m))
		for h, b := range m {
			inner[h] = b
		}
		c.balances[token] = inner
	}
	for token, list := range s.holders {
		c.holders[token] = append([]types.Address(nil), list...)
	}
	for token, ix := range s.holderIx {
		inner := make(map[types.Address]int, len(ix))
		for h, i := range ix {
			inner[h] = i
		}
		c.holderIx[token] = inner
	}
	for k, v := range s.native {
		c.native[k] = v
	}
	for token, m := range s.claimed {
		inner := make(map[types.Address]bool, len(m))
		for h, v := range m {
			inner[h] = v
		}
		c.claimed[token] = inner
	}
	for k, v := range s.cursors {
		c.cursors[k] = v
	}
	c.events = append([]types.MarketEvent(nil), s.events...)
	return c
}

// MemoryStore is a Store kept entirely in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	gate  gate
	state *memState
}

// NewMemoryStore builds an empty in-memory ledger authorizing the given writers.
func NewMemoryStore(writers []string) *MemoryStore {
	return &MemoryStore{
		gate:  newGate(writers),
		state: newMemState(),
	}
}

// Begin takes the store lock for the lifetime of the transaction; calls against the
// ledger are serialized exactly as the execution model requires.
func (m *MemoryStore) Begin(_ context.Context, actor string) (Tx, error) {
	m.mu.Lock()
	return &memTx{store: m, actor: actor, work: m.state.clone()}, nil
}

func (m *MemoryStore) ReadRuntime(_ context.Context, token types.Address) (types.RuntimeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.runtime[token]
	if !ok {
		return types.RuntimeState{}, ErrTokenUnknown
	}
	return s, nil
}

func (m *MemoryStore) ReadProfile(_ context.Context, token types.Address) (types.TokenProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.profiles[token]
	if !ok {
		return types.TokenProfile{}, ErrTokenUnknown
	}
	return p, nil
}

func (m *MemoryStore) RecentEvents(_ context.Context, limit int) ([]types.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.state.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.MarketEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.state.events[n-1-i]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

type memTx struct {
	store *MemoryStore
	actor string
	work  *memState
	done  bool
}

func (t *memTx) authorizeWrite() error {
	if t.done {
		return ErrTxDone
	}
	return t.store.gate.authorize(t.actor)
}

func (t *memTx) Profile(token types.Address) (types.TokenProfile, error) {
	p, ok := t.work.profiles[token]
	if !ok {
		return types.TokenProfile{}, ErrTokenUnknown
	}
	return p, nil
}

func (t *memTx) Runtime(token types.Address) (types.RuntimeState, error) {
	s, ok := t.work.runtime[token]
	if !ok {
		return types.RuntimeState{}, ErrTokenUnknown
	}
	return s, nil
}

func (t *memTx) HolderBalance(token, holder types.Address) (sdkmath.Int, error) {
	if m, ok := t.work.balances[token]; ok {
		if b, ok := m[holder]; ok {
			return b, nil
		}
	}
	return sdkmath.ZeroInt(), nil
}

func (t *memTx) Holders(token types.Address) ([]types.Address, error) {
	return append([]types.Address(nil), t.work.holders[token]...), nil
}

func (t *memTx) NativeBalance(account types.Address) (sdkmath.Int, error) {
	if b, ok := t.work.native[account]; ok {
		return b, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (t *memTx) Claimed(token, holder types.Address) (bool, error) {
	return t.work.claimed[token][holder], nil
}

func (t *memTx) ClaimCursor(token types.Address) (int, error) {
	return t.work.cursors[token], nil
}

func (t *memTx) PutProfile(p types.TokenProfile) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if _, exists := t.work.profiles[p.Token]; exists {
		return ErrTokenExists
	}
	t.work.profiles[p.Token] = p
	return nil
}

func (t *memTx) PutRuntime(s types.RuntimeState) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	p, ok := t.work.profiles[s.Token]
	if !ok {
		return ErrTokenUnknown
	}
	if err := checkRuntime(p, s); err != nil {
		return err
	}
	t.work.runtime[s.Token] = s
	return nil
}

// SetHolderBalance keeps the membership registry consistent with the iff-nonzero
// invariant: a holder is listed exactly while its balance is positive.
func (t *memTx) SetHolderBalance(token, holder types.Address, balance sdkmath.Int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if balance.IsNil() || balance.IsNegative() {
		return ErrNegativeAmount
	}
	m, ok := t.work.balances[token]
	if !ok {
		m = make(map[types.Address]sdkmath.Int)
		t.work.balances[token] = m
	}
	ix, ok := t.work.holderIx[token]
	if !ok {
		ix = make(map[types.Address]int)
		t.work.holderIx[token] = ix
	}

	old := m[holder]
	switch {
	case balance.IsPositive() && (old.IsNil() || old.IsZero()):
		ix[holder] = len(t.work.holders[token])
		t.work.holders[token] = append(t.work.holders[token], holder)
	case balance.IsZero() && !old.IsNil() && old.IsPositive():
		// swap-remove keeps membership updates O(1); ordering only matters after
		// graduation, when the registry is frozen
		pos := ix[holder]
		list := t.work.holders[token]
		last := len(list) - 1
		list[pos] = list[last]
		ix[list[pos]] = pos
		t.work.holders[token] = list[:last]
		delete(ix, holder)
	}
	if balance.IsZero() {
		delete(m, holder)
	} else {
		m[holder] = balance
	}
	return nil
}

func (t *memTx) CreditNative(account types.Address, amount sdkmath.Int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrNegativeAmount
	}
	cur, _ := t.NativeBalance(account)
	t.work.native[account] = cur.Add(amount)
	return nil
}

func (t *memTx) DebitNative(account types.Address, amount sdkmath.Int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrNegativeAmount
	}
	cur, _ := t.NativeBalance(account)
	if cur.LT(amount) {
		return ErrInsufficientNative
	}
	t.work.native[account] = cur.Sub(amount)
	return nil
}

func (t *memTx) MarkGraduated(token, realToken, lpAddress types.Address, claimMode bool) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	s, ok := t.work.runtime[token]
	if !ok {
		return ErrTokenUnknown
	}
	s.Graduated = true
	s.RealToken = realToken
	s.LPAddress = lpAddress
	s.ClaimMode = claimMode
	t.work.runtime[token] = s
	return nil
}

func (t *memTx) ClearHolders(token types.Address) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	delete(t.work.holders, token)
	delete(t.work.holderIx, token)
	delete(t.work.balances, token)
	return nil
}

func (t *memTx) MarkClaimed(token, holder types.Address) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	m, ok := t.work.claimed[token]
	if !ok {
		m = make(map[types.Address]bool)
		t.work.claimed[token] = m
	}
	m[holder] = true
	return nil
}

func (t *memTx) SetClaimCursor(token types.Address, cursor int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	t.work.cursors[token] = cursor
	return nil
}

func (t *memTx) RecordEvent(ev types.MarketEvent) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	t.work.events = append(t.work.events, ev)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.state = t.work
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}
