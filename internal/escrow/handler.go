package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/holiman/uint256"

	"github.com/congo-pay/order_stake/internal/account"
	"github.com/congo-pay/order_stake/internal/ledger"
)

const (
	defaultListLimit = 1000
	maxListLimit     = 10_000
	// maxEnrollPerRequest keeps a single HTTP enrollment within request timeouts.
	maxEnrollPerRequest = 100_000
)

var errStopScan = errors.New("stop scan")

// Handler exposes the ledger over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type putLockRequest struct {
	Amount    string  `json:"amount"`
	CreatedAt *uint64 `json:"created_at"`
}

type lockResponse struct {
	Account    string `json:"account"`
	Amount     string `json:"amount"`
	UnlockTime uint64 `json:"unlock_time"`
}

type enrollRequest struct {
	StartNum    uint64  `json:"start_num"`
	Count       uint64  `json:"count"`
	Suffix      *string `json:"suffix"`
	CurrentTime *uint64 `json:"current_time"`
}

func toLockResponse(id ledger.AccountID, lock ledger.LockedBalance) lockResponse {
	return lockResponse{Account: string(id), Amount: lock.Amount.Dec(), UnlockTime: lock.UnlockTime}
}

// PutLock creates or replaces the lock for the account in the path.
func (h *Handler) PutLock(c *fiber.Ctx) error {
	var req putLockRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal integer")
	}
	createdAt := h.service.Now()
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	// c.Params aliases the request buffer unless the app is Immutable
	id := utils.CopyString(c.Params("account"))
	if err := h.service.InsertOrReplace(c.UserContext(), id, amount, createdAt); err != nil {
		return toHTTPError(err)
	}
	lock, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(toLockResponse(ledger.AccountID(id), lock))
}

// GetLock returns the lock for the account in the path.
func (h *Handler) GetLock(c *fiber.Ctx) error {
	id := c.Params("account")
	lock, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(toLockResponse(ledger.AccountID(id), lock))
}

// ListLocks returns up to ?limit= locks in backend order.
func (h *Handler) ListLocks(c *fiber.Ctx) error {
	limit, err := uintQuery(c, "limit", defaultListLimit)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	locks := make([]lockResponse, 0)
	truncated := false
	err = h.service.Iterate(c.UserContext(), func(id ledger.AccountID, lock ledger.LockedBalance) error {
		if uint64(len(locks)) == limit {
			truncated = true
			return errStopScan
		}
		locks = append(locks, toLockResponse(id, lock))
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"locks": locks, "truncated": truncated})
}

// Count returns the number of stored locks.
func (h *Handler) Count(c *fiber.Ctx) error {
	n, err := h.service.Count(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"count": n})
}

// UnlockTime computes the unlock time for ?epochs= at ?at= (default now).
func (h *Handler) UnlockTime(c *fiber.Ctx) error {
	epochs, err := uintQuery(c, "epochs", 0)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	at, err := uintQuery(c, "at", h.service.Now())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	unlock, err := h.service.UnlockTime(at, epochs)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"current_time": at, "epochs": epochs, "unlock_time": unlock})
}

// Weight returns the aggregate decayed weight at ?at= (default now).
func (h *Handler) Weight(c *fiber.Ctx) error {
	at, err := uintQuery(c, "at", h.service.Now())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	total, err := h.service.AggregateWeight(c.UserContext(), at)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"current_time": at, "ve_order_sum": total.Dec()})
}

// Enroll runs a bulk enrollment. A missing suffix is replaced by a random one.
func (h *Handler) Enroll(c *fiber.Ctx) error {
	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Count > maxEnrollPerRequest {
		return fiber.NewError(http.StatusBadRequest, "count must not exceed "+strconv.Itoa(maxEnrollPerRequest))
	}
	suffix := account.RandomSuffix()
	if req.Suffix != nil {
		suffix = *req.Suffix
	}
	currentTime := h.service.Now()
	if req.CurrentTime != nil {
		currentTime = *req.CurrentTime
	}

	total, err := h.service.EnrollRange(c.UserContext(), req.StartNum, req.Count, suffix, currentTime)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"users_num": total, "suffix": suffix})
}

// UserOrder returns the amount locked by the numbered user.
func (h *Handler) UserOrder(c *fiber.Ctx) error {
	num, err := strconv.ParseUint(c.Params("num"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "user number must be an unsigned integer")
	}
	amount, err := h.service.UserOrder(c.UserContext(), num)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_num": num, "order": amount.Dec()})
}

// Params returns the ledger's epoch settings.
func (h *Handler) Params(c *fiber.Ctx) error {
	p := h.service.Params()
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"start_time":             p.StartTime,
		"epoch_length_ms":        p.EpochLengthMs,
		"max_epochs":             p.MaxEpochs,
		"normalization_constant": p.NormalizationConstant,
		"lock_duration_ms":       p.LockDurationMs,
		"expiry_policy":          h.service.Policy().String(),
	})
}

func uintQuery(c *fiber.Ctx, key string, fallback uint64) (uint64, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be an unsigned integer")
	}
	return v, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidArgument):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrExpiredLock):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrArithmeticOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
