package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// RegisterWalletRoutes wires wallet provisioning and settings endpoints.
func RegisterWalletRoutes(router fiber.Router, h *wallet.Handler) {
	wallets := router.Group("/wallets")
	wallets.Post("", h.Create)
	wallets.Get("/:ownerId/:type", h.Get)
	wallets.Get("/:ownerId/:type/balances", h.Balances)
	wallets.Put("/:ownerId/:type/reserve", h.SetReserve)
	wallets.Put("/:ownerId/auto-settlement", h.SetAutoSettlement)
}
