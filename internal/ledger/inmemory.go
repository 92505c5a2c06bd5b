package ledger

import (
	"context"
	"sync"
)

type inMemoryStore struct {
	mu        sync.RWMutex
	locks     map[AccountID]LockedBalance
	params    Params
	hasParams bool
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests and dev mode.
func NewInMemory() Store {
	return &inMemoryStore{locks: make(map[AccountID]LockedBalance)}
}

func (s *inMemoryStore) Put(_ context.Context, account AccountID, balance LockedBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[account] = balance
	return nil
}

func (s *inMemoryStore) PutBatch(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.locks[rec.Account] = rec.Balance
	}
	return nil
}

func (s *inMemoryStore) Get(_ context.Context, account AccountID) (LockedBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, exists := s.locks[account]
	if !exists {
		return LockedBalance{}, ErrNotFound
	}
	return balance, nil
}

func (s *inMemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.locks)), nil
}

func (s *inMemoryStore) Iterate(ctx context.Context, fn func(AccountID, LockedBalance) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for account, balance := range s.locks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(account, balance); err != nil {
			return err
		}
	}
	return nil
}

func (s *inMemoryStore) LoadParams(_ context.Context) (Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasParams {
		return Params{}, ErrNotFound
	}
	return s.params, nil
}

func (s *inMemoryStore) SaveParams(_ context.Context, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = params
	s.hasParams = true
	return nil
}

func (s *inMemoryStore) Close() error { return nil }
