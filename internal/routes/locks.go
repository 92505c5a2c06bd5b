package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/order_stake/internal/escrow"
)

// RegisterLockRoutes wires the ledger endpoints. Static paths are registered before
// /locks/:account so they are not captured as account ids.
func RegisterLockRoutes(r fiber.Router, h *escrow.Handler, enrollLimiter fiber.Handler) {
	r.Get("/locks/count", h.Count)
	r.Get("/locks", h.ListLocks)
	r.Put("/locks/:account", h.PutLock)
	r.Get("/locks/:account", h.GetLock)

	r.Get("/unlock-time", h.UnlockTime)
	r.Get("/weight", h.Weight)
	r.Get("/params", h.Params)
	r.Get("/users/:num/order", h.UserOrder)

	if enrollLimiter != nil {
		r.Post("/enrollments", enrollLimiter, h.Enroll)
	} else {
		r.Post("/enrollments", h.Enroll)
	}
}
