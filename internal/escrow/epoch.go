package escrow

import (
	"fmt"
	"math/bits"

	"github.com/congo-pay/order_stake/internal/ledger"
)

const (
	// EpochDays is the length of one epoch.
	EpochDays = 30
	// EpochMs is the length of one epoch in milliseconds.
	EpochMs = ledger.DayMs * EpochDays
	// MaxEpochs is the exclusive upper bound on the epochs a lock may request.
	MaxEpochs = 12 * 4
	// NormalizationConstant is the divisor applied to remaining days (twelve epochs).
	NormalizationConstant = EpochDays * 12
	// LockDurationMs is the fixed lock length applied to every new balance (two years).
	LockDurationMs = ledger.DayMs * 365 * 2
)

// DefaultParams returns the standard epoch grid anchored at startTime.
func DefaultParams(startTime uint64) ledger.Params {
	return ledger.Params{
		StartTime:             startTime,
		EpochLengthMs:         EpochMs,
		MaxEpochs:             MaxEpochs,
		NormalizationConstant: NormalizationConstant,
		LockDurationMs:        LockDurationMs,
	}
}

// UnlockTime returns when a lock of numEpochs requested at currentTime fully vests. The
// result is aligned to the epoch grid: it starts from the first boundary strictly after
// currentTime and adds numEpochs whole epochs.
func UnlockTime(p ledger.Params, currentTime, numEpochs uint64) (uint64, error) {
	if numEpochs == 0 {
		return 0, fmt.Errorf("%w: number of epochs should be more than zero", ledger.ErrInvalidArgument)
	}
	if numEpochs >= p.MaxEpochs {
		return 0, fmt.Errorf("%w: number of epochs should be less than %d", ledger.ErrInvalidArgument, p.MaxEpochs)
	}
	if currentTime < p.StartTime {
		return 0, fmt.Errorf("%w: current time %d precedes ledger start %d", ledger.ErrInvalidArgument, currentTime, p.StartTime)
	}

	elapsed := (currentTime - p.StartTime) / p.EpochLengthMs
	// elapsed+1 reaches the next boundary even when currentTime sits exactly on one
	epochs := elapsed + 1 + numEpochs
	hi, offset := bits.Mul64(epochs, p.EpochLengthMs)
	if hi != 0 || epochs < elapsed {
		return 0, fmt.Errorf("%w: unlock time beyond uint64", ledger.ErrArithmeticOverflow)
	}
	unlock, carry := bits.Add64(p.StartTime, offset, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: unlock time beyond uint64", ledger.ErrArithmeticOverflow)
	}
	return unlock, nil
}
