package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/holiman/uint256"
)

func testParams() Params {
	return Params{
		StartTime:             0,
		EpochLengthMs:         30 * DayMs,
		MaxEpochs:             48,
		NormalizationConstant: 360,
		LockDurationMs:        730 * DayMs,
	}
}

func openInMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), NewInMemory(), testParams(), 0)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l
}

func TestInMemoryLedger_InsertOverwrites(t *testing.T) {
	l := openInMemory(t)
	ctx := context.Background()

	if err := l.InsertOrReplace(ctx, "alice", uint256.NewInt(10), 1_000); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := l.InsertOrReplace(ctx, "alice", uint256.NewInt(25), 2_000); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	n, err := l.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 lock, got %d", n)
	}

	lock, err := l.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lock.Amount.Uint64() != 25 {
		t.Fatalf("expected amount 25, got %s", lock.Amount.Dec())
	}
	if lock.UnlockTime != 2_000+730*DayMs {
		t.Fatalf("unexpected unlock time %d", lock.UnlockTime)
	}
}

func TestInMemoryLedger_GetMissing(t *testing.T) {
	l := openInMemory(t)
	if _, err := l.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryLedger_RejectsOversizedAmount(t *testing.T) {
	l := openInMemory(t)
	ctx := context.Background()

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	if err := l.InsertOrReplace(ctx, "whale", huge, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	maxU128 := new(uint256.Int).Sub(huge, uint256.NewInt(1))
	if err := l.InsertOrReplace(ctx, "whale", maxU128, 0); err != nil {
		t.Fatalf("max u128 should be accepted: %v", err)
	}
}

func TestInMemoryLedger_RejectsNilAmount(t *testing.T) {
	l := openInMemory(t)
	if err := l.InsertOrReplace(context.Background(), "empty", nil, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if n, _ := l.Count(context.Background()); n != 0 {
		t.Fatalf("store should be unchanged, got %d locks", n)
	}
}

func TestInMemoryLedger_UnlockOverflow(t *testing.T) {
	l := openInMemory(t)
	err := l.InsertOrReplace(context.Background(), "late", uint256.NewInt(1), ^uint64(0))
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if n, _ := l.Count(context.Background()); n != 0 {
		t.Fatalf("store should be unchanged, got %d locks", n)
	}
}

func TestInMemoryLedger_InsertManyValidatesFirst(t *testing.T) {
	l := openInMemory(t)
	ctx := context.Background()

	entries := []Entry{
		{Account: "a", Amount: *uint256.NewInt(1)},
		{Account: "", Amount: *uint256.NewInt(2)},
	}
	if _, err := l.InsertMany(ctx, entries); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if n, _ := l.Count(ctx); n != 0 {
		t.Fatalf("expected no writes, got %d locks", n)
	}
}

func TestInMemoryLedger_ConcurrentInserts(t *testing.T) {
	l := openInMemory(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account := AccountID(fmt.Sprintf("user-%d", i))
			if err := l.InsertOrReplace(ctx, account, uint256.NewInt(uint64(i)), 0); err != nil {
				t.Errorf("insert %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	n, err := l.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != workers {
		t.Fatalf("expected %d locks after concurrency, got %d", workers, n)
	}
}

func TestOpen_KeepsPersistedParams(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	first := testParams()
	first.StartTime = 42
	if _, err := Open(ctx, store, first, 0); err != nil {
		t.Fatalf("first open: %v", err)
	}

	second := testParams()
	second.StartTime = 99
	l, err := Open(ctx, store, second, 0)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if l.Params().StartTime != 42 {
		t.Fatalf("expected persisted start time 42, got %d", l.Params().StartTime)
	}
}

func TestOpen_RejectsInvalidParams(t *testing.T) {
	p := testParams()
	p.MaxEpochs = 1
	if _, err := Open(context.Background(), NewInMemory(), p, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
