package escrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/congo-pay/order_stake/internal/ledger"
)

// ExpiryPolicy decides how aggregation treats locks whose unlock time has passed.
type ExpiryPolicy int

const (
	// ExpirySaturate counts an expired lock as zero remaining weight.
	ExpirySaturate ExpiryPolicy = iota
	// ExpiryStrict fails the aggregation with ledger.ErrExpiredLock.
	ExpiryStrict
)

func (p ExpiryPolicy) String() string {
	if p == ExpiryStrict {
		return "strict"
	}
	return "saturate"
}

// ParseExpiryPolicy maps a config value to a policy. Empty selects ExpirySaturate.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "saturate":
		return ExpirySaturate, nil
	case "strict":
		return ExpiryStrict, nil
	default:
		return 0, fmt.Errorf("%w: unknown expiry policy %q", ledger.ErrInvalidArgument, s)
	}
}

// Scanner is the read side of the ledger needed for aggregation.
type Scanner interface {
	Iterate(ctx context.Context, fn func(ledger.AccountID, ledger.LockedBalance) error) error
}

// Weight returns one lock's contribution at currentTime:
// amount * floor(remaining / day) / normalization, floored.
// amount is at most 128 bits and remaining days at most 64, so the product fits in 256.
func Weight(p ledger.Params, balance ledger.LockedBalance, currentTime uint64, policy ExpiryPolicy) (uint256.Int, error) {
	var w uint256.Int
	if balance.UnlockTime < currentTime {
		if policy == ExpiryStrict {
			return w, fmt.Errorf("%w: unlock time %d before %d", ledger.ErrExpiredLock, balance.UnlockTime, currentTime)
		}
		return w, nil
	}
	remainingDays := (balance.UnlockTime - currentTime) / ledger.DayMs
	w.Mul(&balance.Amount, uint256.NewInt(remainingDays))
	w.Div(&w, uint256.NewInt(p.NormalizationConstant))
	return w, nil
}

// Aggregate sums Weight over every lock yielded by scan and returns the total along with
// the number of locks visited. The result must fit in 128 bits.
func Aggregate(ctx context.Context, scan Scanner, p ledger.Params, currentTime uint64, policy ExpiryPolicy) (uint256.Int, uint64, error) {
	var (
		total   uint256.Int
		visited uint64
	)
	err := scan.Iterate(ctx, func(account ledger.AccountID, balance ledger.LockedBalance) error {
		w, err := Weight(p, balance, currentTime, policy)
		if err != nil {
			return fmt.Errorf("account %s: %w", account, err)
		}
		if _, overflow := total.AddOverflow(&total, &w); overflow {
			return fmt.Errorf("%w: weight sum beyond 256 bits", ledger.ErrArithmeticOverflow)
		}
		visited++
		return nil
	})
	if err != nil {
		return uint256.Int{}, 0, err
	}
	if total.BitLen() > ledger.MaxAmountBits {
		return uint256.Int{}, 0, fmt.Errorf("%w: weight sum exceeds %d bits", ledger.ErrArithmeticOverflow, ledger.MaxAmountBits)
	}
	return total, visited, nil
}

// MaxSyntheticTerms bounds SyntheticWeight so its uint64 term arithmetic cannot wrap.
const MaxSyntheticTerms = 1 << 32

// SyntheticWeight reproduces the aggregation cost without a store: it sums
// 1000 * d / normalization for d in [1000, 1000+num). Used to calibrate scan budgets.
func SyntheticWeight(ctx context.Context, num uint64) (uint256.Int, error) {
	const amount = 1000
	if num > MaxSyntheticTerms {
		return uint256.Int{}, fmt.Errorf("%w: at most %d synthetic terms", ledger.ErrInvalidArgument, MaxSyntheticTerms)
	}
	var (
		total uint256.Int
		term  uint256.Int
	)
	for d := uint64(1000); d < 1000+num; d++ {
		if d&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return uint256.Int{}, err
			}
		}
		term.SetUint64(amount * d / NormalizationConstant)
		total.Add(&total, &term)
	}
	return total, nil
}
