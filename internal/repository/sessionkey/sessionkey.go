// Package sessionkey reads the per-client key pairs that a prior handshake
// cached. Nothing in the relay writes to it except tests and dev tooling.
package sessionkey

import (
	"context"
	"sync"

	"zax_relay/internal/model"
	"zax_relay/internal/zaxerr"
)

const op = "sessionkey.load"

type (
	// Store must be safe for concurrent Load calls.
	Store interface {
		Load(ctx context.Context, hpk model.HPK) (*model.SessionKeys, error)
	}

	MemoryStore struct {
		mu   sync.RWMutex
		keys map[model.HPK]model.SessionKeys
	}
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[model.HPK]model.SessionKeys),
	}
}

func (s *MemoryStore) Put(hpk model.HPK, keys model.SessionKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[hpk] = keys
}

func (s *MemoryStore) Remove(hpk model.HPK) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, hpk)
}

func (s *MemoryStore) Load(_ context.Context, hpk model.HPK) (*model.SessionKeys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, ok := s.keys[hpk]
	if !ok {
		return nil, zaxerr.New(zaxerr.UnknownSession, op, "no cached session key for %s", hpk)
	}
	return &keys, nil
}
