package gateway

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Session binds a connected account and the wallet's chain to a Gateway.
// It is created by Connect and stays valid until the wallet disconnects, the
// network changes (unless the gateway rebinds) or the gateway is closed.
type Session struct {
	mu      sync.RWMutex
	account common.Address
	chainID *big.Int
	valid   bool
}

func newSession(account common.Address, chainID *big.Int) *Session {
	return &Session{
		account: account,
		chainID: new(big.Int).Set(chainID),
		valid:   true,
	}
}

// Account returns the bound account
func (s *Session) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// ChainID returns the chain the session was bound on
func (s *Session) ChainID() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.chainID)
}

// Valid reports whether the session can still submit transactions
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valid
}

func (s *Session) rebind(account common.Address) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

func (s *Session) setChain(chainID *big.Int) {
	s.mu.Lock()
	s.chainID = new(big.Int).Set(chainID)
	s.mu.Unlock()
}

func (s *Session) invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// signer returns the bound account, or SessionInvalid.
func (s *Session) signer() (common.Address, error) {
	if s == nil {
		return common.Address{}, newError(SessionInvalid, "not connected: call Connect first")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid {
		return common.Address{}, newError(SessionInvalid, "session is no longer valid: reconnect the wallet")
	}
	return s.account, nil
}
