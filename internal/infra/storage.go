package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.etcd.io/bbolt"

	"github.com/congo-pay/order_stake/internal/ledger"
)

// Storage backend names accepted by OpenStorage.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// StorageOptions selects and locates a ledger backend.
type StorageOptions struct {
	Backend     string
	BoltPath    string
	BadgerPath  string
	DatabaseURL string
}

// Storage is an opened ledger backend. Closing the ledger built on Store releases the
// embedded database; Close additionally releases pools the store does not own.
type Storage struct {
	Backend string
	Store   ledger.Store
	ping    func(ctx context.Context) error
	close   func()
}

// Ping reports whether the backend can serve requests.
func (s *Storage) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases resources held outside the store.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage opens the backend named in opts.
func OpenStorage(ctx context.Context, opts StorageOptions) (*Storage, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return &Storage{Backend: BackendMemory, Store: ledger.NewInMemory()}, nil

	case BackendBolt:
		db, err := OpenBolt(opts.BoltPath)
		if err != nil {
			return nil, err
		}
		store, err := ledger.NewBoltStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Storage{Backend: BackendBolt, Store: store}, nil

	case BackendBadger:
		db, err := OpenBadger(opts.BadgerPath)
		if err != nil {
			return nil, err
		}
		ping := func(context.Context) error {
			if db.IsClosed() {
				return errors.New("badger is closed")
			}
			return nil
		}
		return &Storage{Backend: BackendBadger, Store: ledger.NewBadgerStore(db), ping: ping}, nil

	case BackendPostgres:
		pool, err := NewPostgresPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := ledger.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Storage{Backend: BackendPostgres, Store: store, ping: pool.Ping, close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// OpenBolt opens or creates the Bolt file at path, creating parent directories.
func OpenBolt(path string) (*bbolt.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return db, nil
}

// OpenBadger opens or creates a Badger directory. Badger's own logger is silenced; the
// ledger logs through slog.
func OpenBadger(dir string) (*badger.DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return db, nil
}
