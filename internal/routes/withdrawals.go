package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vizion-gateway/vizion_gateway/internal/withdrawal"
)

// RegisterWithdrawalRoutes wires the withdrawal request workflow endpoints.
func RegisterWithdrawalRoutes(router fiber.Router, h *withdrawal.Handler) {
	withdrawals := router.Group("/withdrawals")
	withdrawals.Post("", h.Create)
	withdrawals.Get("/pending", h.ListPending)
	withdrawals.Get("/:id", h.Get)
	withdrawals.Post("/:id/review", h.Review)
	withdrawals.Post("/:id/process", h.Process)
}
