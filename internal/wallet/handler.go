package wallet

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
)

// BalanceSource reads wallet balances. Satisfied by the ledger store.
type BalanceSource interface {
	Balances(ctx context.Context, ownerID string, typ Type) (map[money.Currency]money.Balance, error)
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service  *Service
	balances BalanceSource
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, balances BalanceSource) *Handler {
	return &Handler{service: service, balances: balances}
}

type createRequest struct {
	OwnerID           string           `json:"owner_id"`
	Type              string           `json:"type"`
	ReservePercentage *decimal.Decimal `json:"reserve_percentage,omitempty"`
}

type walletResponse struct {
	ID                  string          `json:"id"`
	OwnerID             string          `json:"owner_id"`
	Type                string          `json:"type"`
	ReservePercentage   decimal.Decimal `json:"reserve_percentage"`
	SettlementFrequency string          `json:"settlement_frequency"`
	AutoSettlement      bool            `json:"auto_settlement"`
	NextSettlementAt    time.Time       `json:"next_settlement_at"`
}

func toResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:                  w.ID,
		OwnerID:             w.OwnerID,
		Type:                string(w.Type),
		ReservePercentage:   w.ReservePercentage,
		SettlementFrequency: string(w.SettlementFrequency),
		AutoSettlement:      w.AutoSettlement,
		NextSettlementAt:    w.NextSettlementAt,
	}
}

// Create provisions (or returns) the wallet for an owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.GetOrCreate(c.UserContext(), CreateInput{
		OwnerID:           req.OwnerID,
		Type:              Type(req.Type),
		ReservePercentage: req.ReservePercentage,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// Get returns wallet settings.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("ownerId"), Type(c.Params("type")))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(toResponse(w))
}

// Balances returns the wallet's per-currency available and reserved balances.
func (h *Handler) Balances(c *fiber.Ctx) error {
	ownerID := c.Params("ownerId")
	typ := Type(c.Params("type"))
	if _, err := h.service.Get(c.UserContext(), ownerID, typ); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	balances, err := h.balances.Balances(c.UserContext(), ownerID, typ)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make(map[string]fiber.Map, len(balances))
	for currency, bal := range balances {
		out[string(currency)] = fiber.Map{
			"available": bal.Available,
			"reserved":  bal.Reserved,
		}
	}
	return c.JSON(fiber.Map{
		"owner_id":  ownerID,
		"type":      string(typ),
		"balances":  out,
		"timestamp": time.Now().UTC(),
	})
}

type reserveRequest struct {
	ReservePercentage decimal.Decimal `json:"reserve_percentage"`
}

// SetReserve updates the reserve percentage applied to future payments.
func (h *Handler) SetReserve(c *fiber.Ctx) error {
	var req reserveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetReservePercentage(c.UserContext(), c.Params("ownerId"), Type(c.Params("type")), req.ReservePercentage); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

type autoSettlementRequest struct {
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency"`
}

// SetAutoSettlement toggles scheduled settlement for a merchant.
func (h *Handler) SetAutoSettlement(c *fiber.Ctx) error {
	var req autoSettlementRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetAutoSettlement(c.UserContext(), c.Params("ownerId"), req.Enabled, SettlementFrequency(req.Frequency)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}
