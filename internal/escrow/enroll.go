package escrow

import (
	"context"
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/congo-pay/order_stake/internal/account"
	"github.com/congo-pay/order_stake/internal/ledger"
	"github.com/congo-pay/order_stake/internal/notification"
)

// EnrollRange locks amount i for the synthetic account of every i in
// [startNum, startNum+count), all created at currentTime, and returns the number of
// locks stored afterwards. Every generated id is validated before anything is written.
func (s *Service) EnrollRange(ctx context.Context, startNum, count uint64, suffix string, currentTime uint64) (uint64, error) {
	if count > math.MaxUint64-startNum {
		return 0, fmt.Errorf("%w: range %d+%d overflows", ledger.ErrInvalidArgument, startNum, count)
	}

	entry := func(i uint64) ledger.Entry {
		n := startNum + i
		return ledger.Entry{
			Account:   account.Synthetic(n, suffix),
			Amount:    *uint256.NewInt(n),
			CreatedAt: currentTime,
		}
	}
	for i := uint64(0); i < count; i++ {
		if err := account.Validate(string(entry(i).Account)); err != nil {
			return 0, err
		}
	}

	total, err := s.ledger.InsertSeq(ctx, count, entry)
	if err != nil {
		return 0, err
	}

	metricLockWrites().AddWithLabel(int64(count), map[string]string{"op": "enroll"})
	metricLocks().Set(int64(total))
	s.logger.Info("enrollment completed",
		"start_num", startNum,
		"count", count,
		"locks", total,
	)
	s.notify(ctx, notification.Message{
		Kind: notification.KindEnrollment,
		Body: fmt.Sprintf("enrolled %d accounts from %d, %d locks stored", count, startNum, total),
	})
	return total, nil
}
