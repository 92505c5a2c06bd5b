package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

var (
	lockKeyPrefix  = []byte("lock/")
	badgerParamKey = []byte("meta/params")
)

// BadgerStore persists locks in BadgerDB under the "lock/" key prefix.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an opened BadgerDB handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func lockKey(account AccountID) []byte {
	key := make([]byte, 0, len(lockKeyPrefix)+len(account))
	key = append(key, lockKeyPrefix...)
	return append(key, account...)
}

// Put stores or overwrites the lock for account.
func (s *BadgerStore) Put(_ context.Context, account AccountID, balance LockedBalance) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(lockKey(account), encodeBalance(balance))
	})
}

// PutBatch writes all records in one transaction. Callers keep batches small enough
// to stay under badger's transaction size limit.
func (s *BadgerStore) PutBatch(ctx context.Context, records []Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := txn.Set(lockKey(rec.Account), encodeBalance(rec.Balance)); err != nil {
				return fmt.Errorf("set %s: %w", rec.Account, err)
			}
		}
		return nil
	})
}

// Get returns the lock for account.
func (s *BadgerStore) Get(_ context.Context, account AccountID) (LockedBalance, error) {
	var balance LockedBalance
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lockKey(account))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			balance, err = decodeBalance(v)
			return err
		})
	})
	return balance, err
}

// Count walks the key index without fetching values.
func (s *BadgerStore) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = lockKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Iterate scans all locks in key order from a single read snapshot.
func (s *BadgerStore) Iterate(ctx context.Context, fn func(AccountID, LockedBalance) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = lockKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			account := AccountID(item.Key()[len(lockKeyPrefix):])
			var balance LockedBalance
			err := item.Value(func(v []byte) error {
				var err error
				balance, err = decodeBalance(v)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(account, balance); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadParams returns the persisted epoch params or ErrNotFound on a fresh directory.
func (s *BadgerStore) LoadParams(_ context.Context) (Params, error) {
	var params Params
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerParamKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			params, err = DecodeParams(v)
			return err
		})
	})
	return params, err
}

// SaveParams persists the epoch params.
func (s *BadgerStore) SaveParams(_ context.Context, params Params) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerParamKey, EncodeParams(params))
	})
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
