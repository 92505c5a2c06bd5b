package ledger

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrNotFound occurs when no lock is stored for the requested account.
	ErrNotFound = errors.New("lock not found")

	// ErrInvalidArgument indicates a request that violates an operation precondition,
	// such as an out-of-range epoch count or an oversized amount.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrArithmeticOverflow indicates a timestamp or weight computation that does not
	// fit in its result type.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrExpiredLock is returned by strict weight aggregation when a lock has already
	// passed its unlock time.
	ErrExpiredLock = errors.New("lock expired")
)

const (
	// MaxAmountBits bounds lock amounts to unsigned 128-bit values.
	MaxAmountBits = 128
	// DayMs is the length of a day in milliseconds.
	DayMs uint64 = 1000 * 60 * 60 * 24
)

// AccountID identifies the owner of a lock. It carries no meaning beyond uniqueness.
type AccountID string

// LockedBalance is the lock recorded for a single account.
type LockedBalance struct {
	Amount     uint256.Int
	UnlockTime uint64
}

// Record pairs an account with its lock for batch writes and snapshots.
type Record struct {
	Account AccountID
	Balance LockedBalance
}

// Params holds the epoch settings fixed when the ledger is first initialized.
type Params struct {
	StartTime             uint64
	EpochLengthMs         uint64
	MaxEpochs             uint64
	NormalizationConstant uint64
	LockDurationMs        uint64
}

// Store defines the contract implemented by lock storage backends (memory, Bolt, Badger, Postgres).
//
// Iterate visits every stored lock exactly once in backend-defined order. A non-nil error
// returned by fn stops the scan and is returned to the caller.
type Store interface {
	Put(ctx context.Context, account AccountID, balance LockedBalance) error
	PutBatch(ctx context.Context, records []Record) error
	Get(ctx context.Context, account AccountID) (LockedBalance, error)
	Count(ctx context.Context) (uint64, error)
	Iterate(ctx context.Context, fn func(AccountID, LockedBalance) error) error
	LoadParams(ctx context.Context) (Params, error)
	SaveParams(ctx context.Context, params Params) error
	Close() error
}
