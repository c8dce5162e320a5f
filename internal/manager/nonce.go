package manager

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
)

// RelayNonceManager serializes relay submissions per signer and keeps the
// nonce from going backwards when the relayer has not yet indexed the
// previous transaction.
type RelayNonceManager struct {
	mu    sync.Mutex
	locks map[common.Address]chan struct{}
	used  map[common.Address]*big.Int
}

func NewRelayNonceManager() *RelayNonceManager {
	return &RelayNonceManager{
		locks: make(map[common.Address]chan struct{}),
		used:  make(map[common.Address]*big.Int),
	}
}

func (m *RelayNonceManager) slot(addr common.Address) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[addr]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[addr] = ch
	}
	return ch
}

// Lock blocks until addr has no submission in flight or ctx ends. The returned
// func releases the lock.
func (m *RelayNonceManager) Lock(ctx context.Context, addr common.Address) (func(), error) {
	ch := m.slot(addr)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Next returns the nonce to sign with: the relayer's value, or one past the
// last committed nonce if the relayer lags behind it.
func (m *RelayNonceManager) Next(addr common.Address, fetched string) (string, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(fetched), 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid relay nonce %q", fetched)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.used[addr]
	if ok && n.Cmp(last) <= 0 {
		bumped := new(big.Int).Add(last, big.NewInt(1))
		logger.Warn("relayer nonce behind last submission", "address", addr.Hex(), "fetched", n.String(), "using", bumped.String())
		return bumped.String(), nil
	}
	return n.String(), nil
}

// Commit records nonce as consumed once the relayer accepted it.
func (m *RelayNonceManager) Commit(addr common.Address, nonce string) {
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.used[addr]; !ok || n.Cmp(last) > 0 {
		m.used[addr] = n
	}
}

// Reset forgets the committed nonce so the relayer's value is trusted again.
// Call it after a rejected or failed transaction.
func (m *RelayNonceManager) Reset(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.used, addr)
}
