package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/holiman/uint256"
)

// DefaultBatchSize is the number of records written per backend transaction by InsertMany.
const DefaultBatchSize = 500

// Entry is a request to lock Amount for Account starting at CreatedAt (unix ms).
type Entry struct {
	Account   AccountID
	Amount    uint256.Int
	CreatedAt uint64
}

// Ledger owns a Store and serializes every operation on it: writers take the exclusive
// lock and readers the shared lock, so a scan never observes a partially applied write.
type Ledger struct {
	mu        sync.RWMutex
	store     Store
	params    Params
	batchSize int
}

// Validate checks that params describe a usable epoch grid.
func (p Params) Validate() error {
	switch {
	case p.EpochLengthMs == 0:
		return fmt.Errorf("%w: epoch length must be positive", ErrInvalidArgument)
	case p.MaxEpochs < 2:
		return fmt.Errorf("%w: max epochs must be at least 2", ErrInvalidArgument)
	case p.NormalizationConstant == 0:
		return fmt.Errorf("%w: normalization constant must be positive", ErrInvalidArgument)
	case p.LockDurationMs == 0:
		return fmt.Errorf("%w: lock duration must be positive", ErrInvalidArgument)
	}
	return nil
}

// Open binds a ledger to store. Params already persisted in the store win over defaults;
// a fresh store is initialized with defaults, fixing them for its lifetime.
func Open(ctx context.Context, store Store, defaults Params, batchSize int) (*Ledger, error) {
	params, err := store.LoadParams(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := defaults.Validate(); err != nil {
			return nil, err
		}
		if err := store.SaveParams(ctx, defaults); err != nil {
			return nil, fmt.Errorf("save params: %w", err)
		}
		params = defaults
	case err != nil:
		return nil, fmt.Errorf("load params: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Ledger{store: store, params: params, batchSize: batchSize}, nil
}

// Params returns the epoch settings fixed for this ledger.
func (l *Ledger) Params() Params {
	return l.params
}

// InsertOrReplace locks amount for account until createdAt + lock duration, overwriting any
// previous lock for the same account.
func (l *Ledger) InsertOrReplace(ctx context.Context, account AccountID, amount *uint256.Int, createdAt uint64) error {
	if amount == nil {
		return fmt.Errorf("%w: missing amount for %s", ErrInvalidArgument, account)
	}
	balance, err := l.lockFor(Entry{Account: account, Amount: *amount, CreatedAt: createdAt})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Put(ctx, account, balance)
}

// InsertMany applies InsertOrReplace to every entry while holding the write lock for the
// whole run, and returns the number of stored locks afterwards.
func (l *Ledger) InsertMany(ctx context.Context, entries []Entry) (uint64, error) {
	return l.InsertSeq(ctx, uint64(len(entries)), func(i uint64) Entry { return entries[i] })
}

// InsertSeq is InsertMany over n entries produced by next, which must be deterministic:
// every entry is validated before the first write, then regenerated and written in
// batches. A backend failure part way through leaves earlier batches committed.
func (l *Ledger) InsertSeq(ctx context.Context, n uint64, next func(i uint64) Entry) (uint64, error) {
	for i := uint64(0); i < n; i++ {
		if _, err := l.lockFor(next(i)); err != nil {
			return 0, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	chunk := make([]Record, 0, min(n, uint64(l.batchSize)))
	for i := uint64(0); i < n; i++ {
		e := next(i)
		balance, err := l.lockFor(e)
		if err != nil {
			return 0, err
		}
		chunk = append(chunk, Record{Account: e.Account, Balance: balance})
		if len(chunk) == l.batchSize {
			if err := l.store.PutBatch(ctx, chunk); err != nil {
				return 0, fmt.Errorf("write locks up to %d: %w", i, err)
			}
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		if err := l.store.PutBatch(ctx, chunk); err != nil {
			return 0, fmt.Errorf("write final locks: %w", err)
		}
	}
	return l.store.Count(ctx)
}

// Restore writes records exported from a ledger with identical params, keeping their
// unlock times as they are.
func (l *Ledger) Restore(ctx context.Context, params Params, records []Record) error {
	if params != l.params {
		return fmt.Errorf("%w: snapshot params %+v differ from ledger params %+v", ErrInvalidArgument, params, l.params)
	}
	for _, rec := range records {
		if err := checkRecord(rec.Account, &rec.Balance.Amount); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeChunks(ctx, records)
}

// Get returns the lock stored for account or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, account AccountID) (LockedBalance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Get(ctx, account)
}

// Count returns the number of distinct accounts holding a lock.
func (l *Ledger) Count(ctx context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Count(ctx)
}

// Iterate visits every lock once. Writers are blocked until the scan completes.
func (l *Ledger) Iterate(ctx context.Context, fn func(AccountID, LockedBalance) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Iterate(ctx, fn)
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}

func (l *Ledger) writeChunks(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += l.batchSize {
		end := min(start+l.batchSize, len(records))
		if err := l.store.PutBatch(ctx, records[start:end]); err != nil {
			return fmt.Errorf("write locks %d..%d: %w", start, end, err)
		}
	}
	return nil
}

func (l *Ledger) lockFor(e Entry) (LockedBalance, error) {
	if err := checkRecord(e.Account, &e.Amount); err != nil {
		return LockedBalance{}, err
	}
	unlock, carry := bits.Add64(e.CreatedAt, l.params.LockDurationMs, 0)
	if carry != 0 {
		return LockedBalance{}, fmt.Errorf("%w: unlock time for %s", ErrArithmeticOverflow, e.Account)
	}
	return LockedBalance{Amount: e.Amount, UnlockTime: unlock}, nil
}

func checkRecord(account AccountID, amount *uint256.Int) error {
	if account == "" {
		return fmt.Errorf("%w: empty account id", ErrInvalidArgument)
	}
	if amount.BitLen() > MaxAmountBits {
		return fmt.Errorf("%w: amount for %s exceeds %d bits", ErrInvalidArgument, account, MaxAmountBits)
	}
	return nil
}
