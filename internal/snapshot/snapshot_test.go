package snapshot

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/congo-pay/order_stake/internal/ledger"
)

func testParams() ledger.Params {
	return ledger.Params{
		StartTime:             1_000,
		EpochLengthMs:         30 * ledger.DayMs,
		MaxEpochs:             48,
		NormalizationConstant: 360,
		LockDurationMs:        730 * ledger.DayMs,
	}
}

func seededLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(ctx, ledger.NewInMemory(), testParams(), 0)
	require.NoError(t, err)

	huge, err := uint256.FromDecimal("340282366920938463463374607431768211455")
	require.NoError(t, err)
	require.NoError(t, l.InsertOrReplace(ctx, "alice.near", uint256.NewInt(100), 5))
	require.NoError(t, l.InsertOrReplace(ctx, "bob", huge, 0))
	require.NoError(t, l.InsertOrReplace(ctx, "carol-1", uint256.NewInt(0), 7))
	return l
}

func dump(t *testing.T, l *ledger.Ledger) []ledger.Record {
	t.Helper()
	var out []ledger.Record
	require.NoError(t, l.Iterate(context.Background(), func(id ledger.AccountID, lock ledger.LockedBalance) error {
		out = append(out, ledger.Record{Account: id, Balance: lock})
		return nil
	}))
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seededLedger(t)

	var buf bytes.Buffer
	n, err := Export(ctx, &buf, src)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "restore.db"), 0o600, nil)
	require.NoError(t, err)
	store, err := ledger.NewBoltStore(db)
	require.NoError(t, err)
	dst, err := ledger.Open(ctx, store, testParams(), 2)
	require.NoError(t, err)
	defer dst.Close()

	n, err = Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	assert.Equal(t, dump(t, src), dump(t, dst))
}

func TestEncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Snapshot{Params: testParams()}))
	// header, params, count and digest
	assert.Equal(t, len(magic)+paramsSize+8+32, buf.Len())

	snap, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, testParams(), snap.Params)
	assert.Empty(t, snap.Records)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	_, err := Export(context.Background(), &buf, seededLedger(t))
	require.NoError(t, err)
	raw := buf.Bytes()

	cases := map[string][]byte{
		"empty":          nil,
		"bad magic":      append([]byte("VESNAP99"), raw[len(magic):]...),
		"truncated body": raw[:len(raw)/2],
		"no digest":      raw[:len(raw)-32],
		"flipped byte":   flip(raw, len(magic)+paramsSize+8+5),
		"bad digest":     flip(raw, len(raw)-1),
		"trailing data":  append(append([]byte{}, raw...), 0),
	}
	for name, input := range cases {
		_, err := Decode(bytes.NewReader(input))
		assert.ErrorIs(t, err, ErrCorrupt, name)
	}
}

func TestImportRejectsForeignParams(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	_, err := Export(ctx, &buf, seededLedger(t))
	require.NoError(t, err)

	other := testParams()
	other.StartTime = 0
	dst, err := ledger.Open(ctx, ledger.NewInMemory(), other, 0)
	require.NoError(t, err)

	_, err = Import(ctx, &buf, dst)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

	count, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func flip(raw []byte, at int) []byte {
	out := append([]byte{}, raw...)
	out[at] ^= 0xff
	return out
}
