package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vizion-gateway/vizion_gateway/internal/ledger"
)

// RegisterLedgerRoutes wires the money-movement endpoints.
func RegisterLedgerRoutes(router fiber.Router, h *ledger.Handler) {
	router.Post("/payments", h.Payment)
	router.Post("/deposits", h.Deposit)
	router.Post("/settlements/:merchantId", h.Settle)
	router.Post("/reserves/:merchantId/release", h.ReleaseReserve)
	router.Get("/fx/convert", h.Convert)
	router.Get("/transactions/:id", h.GetTransaction)
	router.Get("/wallets/:ownerId/:type/transactions", h.ListTransactions)
}
