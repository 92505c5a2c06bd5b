package ledger

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	locksBucket = []byte("locks")
	metaBucket  = []byte("meta")
	paramsKey   = []byte("params")
)

// BoltStore persists locks in a single BoltDB file. Keys are raw account ids, values are
// a 16-byte amount followed by the 8-byte unlock time.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore wraps an opened BoltDB handle and creates the required buckets.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(locksBucket); err != nil {
			return fmt.Errorf("create locks bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Put stores or overwrites the lock for account.
func (s *BoltStore) Put(_ context.Context, account AccountID, balance LockedBalance) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(locksBucket).Put([]byte(account), encodeBalance(balance))
	})
}

// PutBatch writes all records in one transaction.
func (s *BoltStore) PutBatch(ctx context.Context, records []Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(locksBucket)
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.Put([]byte(rec.Account), encodeBalance(rec.Balance)); err != nil {
				return fmt.Errorf("put %s: %w", rec.Account, err)
			}
		}
		return nil
	})
}

// Get returns the lock for account.
func (s *BoltStore) Get(_ context.Context, account AccountID) (LockedBalance, error) {
	var balance LockedBalance
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(locksBucket).Get([]byte(account))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		balance, err = decodeBalance(raw)
		return err
	})
	return balance, err
}

// Count returns the number of stored locks.
func (s *BoltStore) Count(_ context.Context) (uint64, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(locksBucket).Stats().KeyN
		return nil
	})
	return uint64(n), err
}

// Iterate scans the locks bucket in key order inside a single read transaction.
func (s *BoltStore) Iterate(ctx context.Context, fn func(AccountID, LockedBalance) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(locksBucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			balance, err := decodeBalance(v)
			if err != nil {
				return err
			}
			return fn(AccountID(k), balance)
		})
	})
}

// LoadParams returns the persisted epoch params or ErrNotFound on a fresh file.
func (s *BoltStore) LoadParams(_ context.Context) (Params, error) {
	var params Params
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(paramsKey)
		if raw == nil {
			return ErrNotFound
		}
		var err error
		params, err = DecodeParams(raw)
		return err
	})
	return params, err
}

// SaveParams persists the epoch params.
func (s *BoltStore) SaveParams(_ context.Context, params Params) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(paramsKey, EncodeParams(params))
	})
}

// Close releases the underlying file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
