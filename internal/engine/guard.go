/*

This file contains the reentrancy guard. An external value transfer during settlement or
graduation may call back into the trading surface; the guard rejects such reentry instead
of queueing it. It is an explicit in-progress flag per token, set on entry and cleared on
every exit path by defer.

*/

package engine

import (
	"errors"
	"sync"

	"github.com/curveforge/curved/internal/types"
)

var ErrReentrantCall = errors.New("reentrant call rejected")

type reentrancyGuard struct {
	mu       sync.Mutex
	inFlight map[types.Address]bool
}

func newReentrancyGuard() *reentrancyGuard {
	return &reentrancyGuard{inFlight: make(map[types.Address]bool)}
}

// enter marks the token busy, failing if a call against it is already in flight.
func (g *reentrancyGuard) enter(token types.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[token] {
		return ErrReentrantCall
	}
	g.inFlight[token] = true
	return nil
}

func (g *reentrancyGuard) exit(token types.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, token)
}
