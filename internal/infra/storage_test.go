package infra

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/order_stake/internal/ledger"
)

func testParams() ledger.Params {
	return ledger.Params{
		EpochLengthMs:         30 * ledger.DayMs,
		MaxEpochs:             48,
		NormalizationConstant: 360,
		LockDurationMs:        730 * ledger.DayMs,
	}
}

func TestOpenStoragePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, opts := range []StorageOptions{
		{Backend: BackendBolt, BoltPath: filepath.Join(dir, "nested", "ledger.db")},
		{Backend: BackendBadger, BadgerPath: filepath.Join(dir, "badger")},
	} {
		t.Run(opts.Backend, func(t *testing.T) {
			storage, err := OpenStorage(ctx, opts)
			require.NoError(t, err)
			require.NoError(t, storage.Ping(ctx))
			l, err := ledger.Open(ctx, storage.Store, testParams(), 0)
			require.NoError(t, err)
			require.NoError(t, l.InsertOrReplace(ctx, "alice", uint256.NewInt(7), 0))
			require.NoError(t, l.Close())
			storage.Close()

			storage, err = OpenStorage(ctx, opts)
			require.NoError(t, err)
			defer storage.Close()
			other := testParams()
			other.StartTime = 99
			l, err = ledger.Open(ctx, storage.Store, other, 0)
			require.NoError(t, err)
			defer l.Close()

			assert.Equal(t, testParams(), l.Params())
			lock, err := l.Get(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, uint64(7), lock.Amount.Uint64())
		})
	}
}

func TestOpenStorageMemoryAndUnknown(t *testing.T) {
	storage, err := OpenStorage(context.Background(), StorageOptions{})
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, storage.Backend)
	assert.NoError(t, storage.Ping(context.Background()))

	_, err = OpenStorage(context.Background(), StorageOptions{Backend: "sqlite"})
	assert.Error(t, err)

	_, err = OpenStorage(context.Background(), StorageOptions{Backend: BackendBolt})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	_, err = NewRedisClient(context.Background(), "")
	assert.Error(t, err)
}
