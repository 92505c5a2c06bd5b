package ledger

import (
	"context"

	"github.com/holiman/uint256"
)

// SeedLock is a test helper that writes a lock with an explicit unlock time, bypassing the
// fixed lock duration applied by InsertOrReplace.
func SeedLock(l *Ledger, account AccountID, amount uint64, unlockTime uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.store.Put(context.Background(), account, LockedBalance{Amount: *uint256.NewInt(amount), UnlockTime: unlockTime})
}
