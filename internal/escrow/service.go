package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/congo-pay/order_stake/internal/account"
	"github.com/congo-pay/order_stake/internal/ledger"
	"github.com/congo-pay/order_stake/internal/logging"
	"github.com/congo-pay/order_stake/internal/notification"
)

// Service exposes the voting-escrow operations over a ledger.
type Service struct {
	ledger   *ledger.Ledger
	policy   ExpiryPolicy
	now      func() uint64
	logger   *slog.Logger
	notifier notification.Notifier
}

// Options tunes a Service. Zero values select the system clock, ExpirySaturate, and
// no logging or notifications.
type Options struct {
	Policy   ExpiryPolicy
	Clock    func() uint64
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// NewService builds the escrow service around an opened ledger.
func NewService(l *ledger.Ledger, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: l, policy: opts.Policy, now: clock, logger: logger, notifier: opts.Notifier}
}

// Now returns the service clock in unix milliseconds.
func (s *Service) Now() uint64 { return s.now() }

// Params returns the ledger's epoch settings.
func (s *Service) Params() ledger.Params { return s.ledger.Params() }

// Policy returns the configured expiry policy.
func (s *Service) Policy() ExpiryPolicy { return s.policy }

// Ledger exposes the underlying ledger for snapshotting.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// InsertOrReplace locks amount for id from createdAt, overwriting any previous lock.
func (s *Service) InsertOrReplace(ctx context.Context, id string, amount *uint256.Int, createdAt uint64) error {
	if err := account.Validate(id); err != nil {
		return err
	}
	if err := s.ledger.InsertOrReplace(ctx, ledger.AccountID(id), amount, createdAt); err != nil {
		return err
	}
	metricLockWrites().AddWithLabel(1, map[string]string{"op": "insert"})
	s.notify(ctx, notification.Message{
		Kind:    notification.KindLockUpdated,
		Account: id,
		Body:    fmt.Sprintf("locked %s from %d", amount.Dec(), createdAt),
	})
	return nil
}

// Get returns the lock for id.
func (s *Service) Get(ctx context.Context, id string) (ledger.LockedBalance, error) {
	return s.ledger.Get(ctx, ledger.AccountID(id))
}

// Count returns the number of locks.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	n, err := s.ledger.Count(ctx)
	if err == nil {
		metricLocks().Set(int64(n))
	}
	return n, err
}

// Iterate visits every lock once.
func (s *Service) Iterate(ctx context.Context, fn func(ledger.AccountID, ledger.LockedBalance) error) error {
	return s.ledger.Iterate(ctx, fn)
}

// UnlockTime computes the epoch-aligned unlock time for a new lock of numEpochs.
func (s *Service) UnlockTime(currentTime, numEpochs uint64) (uint64, error) {
	return UnlockTime(s.ledger.Params(), currentTime, numEpochs)
}

// AggregateWeight returns the decay-weighted sum of all locks at currentTime.
func (s *Service) AggregateWeight(ctx context.Context, currentTime uint64) (uint256.Int, error) {
	s.logger.Debug("calculating ve_order_sum", "current_time", currentTime, "policy", s.policy.String())
	start := time.Now()
	total, visited, err := Aggregate(ctx, s.ledger, s.ledger.Params(), currentTime, s.policy)
	metricAggregateDuration().Observe(time.Since(start).Milliseconds())
	if err != nil {
		metricAggregateFailures().Add(1)
		s.logger.Warn("ve_order_sum failed", "current_time", currentTime, "policy", s.policy.String(), "error", err)
		return uint256.Int{}, err
	}
	s.logger.Info("ve_order_sum computed",
		slog.Uint64("locks", visited),
		slog.String("ve_order_sum", total.Dec()),
		slog.Uint64("current_time", currentTime),
	)
	return total, nil
}

// UserOrder returns the amount locked by the account named by the decimal form of userNum.
func (s *Service) UserOrder(ctx context.Context, userNum uint64) (uint256.Int, error) {
	lock, err := s.ledger.Get(ctx, ledger.AccountID(strconv.FormatUint(userNum, 10)))
	if err != nil {
		return uint256.Int{}, err
	}
	return lock.Amount, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "error", err)
	}
}
