package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS locked_balances (
    account_id  TEXT PRIMARY KEY,
    amount      NUMERIC(39, 0) NOT NULL CHECK (amount >= 0),
    unlock_time BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_params (
    id                     SMALLINT PRIMARY KEY CHECK (id = 1),
    start_time             BIGINT NOT NULL,
    epoch_length_ms        BIGINT NOT NULL,
    max_epochs             BIGINT NOT NULL,
    normalization_constant BIGINT NOT NULL,
    lock_duration_ms       BIGINT NOT NULL
);`

const upsertLockSQL = `INSERT INTO locked_balances (account_id, amount, unlock_time)
        VALUES ($1, $2::numeric, $3)
        ON CONFLICT (account_id) DO UPDATE SET amount = EXCLUDED.amount, unlock_time = EXCLUDED.unlock_time`

// PostgresStore persists locks in PostgreSQL. Amounts are stored as NUMERIC(39,0) and
// exchanged as decimal strings so the full 128-bit range survives.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store and ensures its tables exist.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Put upserts the lock for account.
func (s *PostgresStore) Put(ctx context.Context, account AccountID, balance LockedBalance) error {
	_, err := s.db.Exec(ctx, upsertLockSQL, string(account), balance.Amount.Dec(), int64(balance.UnlockTime))
	return err
}

// PutBatch upserts every record inside one transaction.
func (s *PostgresStore) PutBatch(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertLockSQL, string(rec.Account), rec.Balance.Amount.Dec(), int64(rec.Balance.UnlockTime))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return tx.Commit(ctx)
}

// Get fetches the lock for account.
func (s *PostgresStore) Get(ctx context.Context, account AccountID) (LockedBalance, error) {
	const query = `SELECT amount::text, unlock_time FROM locked_balances WHERE account_id = $1`
	var (
		amount string
		unlock int64
	)
	if err := s.db.QueryRow(ctx, query, string(account)).Scan(&amount, &unlock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LockedBalance{}, ErrNotFound
		}
		return LockedBalance{}, err
	}
	return scanBalance(amount, unlock)
}

// Count returns the number of stored locks.
func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM locked_balances`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Iterate streams every lock from a repeatable-read snapshot.
func (s *PostgresStore) Iterate(ctx context.Context, fn func(AccountID, LockedBalance) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT account_id, amount::text, unlock_time FROM locked_balances`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			account string
			amount  string
			unlock  int64
		)
		if err := rows.Scan(&account, &amount, &unlock); err != nil {
			return err
		}
		balance, err := scanBalance(amount, unlock)
		if err != nil {
			return err
		}
		if err := fn(AccountID(account), balance); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LoadParams returns the persisted epoch params or ErrNotFound on an empty database.
func (s *PostgresStore) LoadParams(ctx context.Context) (Params, error) {
	const query = `SELECT start_time, epoch_length_ms, max_epochs, normalization_constant, lock_duration_ms
        FROM ledger_params WHERE id = 1`
	var start, epoch, maxEpochs, norm, lock int64
	if err := s.db.QueryRow(ctx, query).Scan(&start, &epoch, &maxEpochs, &norm, &lock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Params{}, ErrNotFound
		}
		return Params{}, err
	}
	return Params{
		StartTime:             uint64(start),
		EpochLengthMs:         uint64(epoch),
		MaxEpochs:             uint64(maxEpochs),
		NormalizationConstant: uint64(norm),
		LockDurationMs:        uint64(lock),
	}, nil
}

// SaveParams stores the epoch params row.
func (s *PostgresStore) SaveParams(ctx context.Context, p Params) error {
	_, err := s.db.Exec(ctx, `INSERT INTO ledger_params (id, start_time, epoch_length_ms, max_epochs, normalization_constant, lock_duration_ms)
        VALUES (1, $1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET start_time = EXCLUDED.start_time, epoch_length_ms = EXCLUDED.epoch_length_ms,
            max_epochs = EXCLUDED.max_epochs, normalization_constant = EXCLUDED.normalization_constant,
            lock_duration_ms = EXCLUDED.lock_duration_ms`,
		int64(p.StartTime), int64(p.EpochLengthMs), int64(p.MaxEpochs), int64(p.NormalizationConstant), int64(p.LockDurationMs))
	return err
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func scanBalance(amount string, unlock int64) (LockedBalance, error) {
	parsed, err := uint256.FromDecimal(amount)
	if err != nil {
		return LockedBalance{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return LockedBalance{Amount: *parsed, UnlockTime: uint64(unlock)}, nil
}
