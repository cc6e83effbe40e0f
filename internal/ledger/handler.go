package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// Handler exposes the ledger engine over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a ledger handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type partyPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (p partyPayload) party() Party {
	return Party{Type: PartyType(p.Type), ID: p.ID}
}

type paymentRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Source      partyPayload      `json:"source"`
	Destination partyPayload      `json:"destination"`
	Reference   string            `json:"reference,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Payment processes a merchant payment.
func (h *Handler) Payment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.engine.ProcessPayment(c.UserContext(), PaymentInput{
		Amount:      req.Amount,
		Currency:    money.Normalize(req.Currency),
		Source:      req.Source.party(),
		Destination: req.Destination.party(),
		Reference:   req.Reference,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(transactionResponse(txn))
}

type depositRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Destination partyPayload      `json:"destination"`
	Source      *partyPayload     `json:"source,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Deposit credits an external top-up into a wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	input := DepositInput{
		Amount:      req.Amount,
		Currency:    money.Normalize(req.Currency),
		Destination: req.Destination.party(),
		Reference:   req.Reference,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.Source != nil {
		input.Source = req.Source.party()
	}
	txn, err := h.engine.ProcessDeposit(c.UserContext(), input)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(transactionResponse(txn))
}

// Settle drains the merchant's available balances to the bank.
func (h *Handler) Settle(c *fiber.Ctx) error {
	txn, err := h.engine.ProcessSettlement(c.UserContext(), c.Params("merchantId"))
	if err != nil {
		return mapLedgerError(err)
	}
	if txn == nil {
		return c.Status(http.StatusOK).JSON(fiber.Map{"settled": false})
	}
	return c.Status(http.StatusCreated).JSON(transactionResponse(*txn))
}

type releaseRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference,omitempty"`
}

// ReleaseReserve moves reserved funds back to available balance.
func (h *Handler) ReleaseReserve(c *fiber.Ctx) error {
	var req releaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	txn, err := h.engine.ReleaseReserve(c.UserContext(), c.Params("merchantId"), req.Amount, money.Normalize(req.Currency), req.Reference)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(transactionResponse(txn))
}

// Convert quotes a currency conversion.
func (h *Handler) Convert(c *fiber.Ctx) error {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}
	converted, rate, err := h.engine.ConvertCurrency(c.UserContext(), amount,
		money.Normalize(c.Query("from")), money.Normalize(c.Query("to")))
	if err != nil {
		if errors.Is(err, money.ErrRateUnavailable) {
			return fiber.NewError(http.StatusUnprocessableEntity, "currency conversion not available")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"amount": converted, "rate": rate})
}

// GetTransaction fetches one ledger transaction.
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	txn, err := h.engine.Store().GetTransaction(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return fiber.NewError(http.StatusNotFound, "transaction not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(transactionResponse(txn))
}

// ListTransactions returns a wallet's recent transactions.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	txns, err := h.engine.Store().ListTransactions(c.UserContext(),
		c.Params("ownerId"), wallet.Type(c.Params("type")), c.QueryInt("limit"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(txns))
	for _, txn := range txns {
		out = append(out, transactionResponse(txn))
	}
	return c.JSON(fiber.Map{"transactions": out})
}

func transactionResponse(txn Transaction) fiber.Map {
	return fiber.Map{
		"id":             txn.ID,
		"type":           string(txn.Type),
		"amount":         txn.Amount,
		"currency":       string(txn.Currency),
		"source":         partyPayload{Type: string(txn.Source.Type), ID: txn.Source.ID},
		"destination":    partyPayload{Type: string(txn.Destination.Type), ID: txn.Destination.ID},
		"fee":            txn.Fee,
		"platform_fee":   txn.PlatformFee,
		"reserve_amount": txn.ReserveAmount,
		"net_amount":     txn.NetAmount,
		"reference":      txn.Reference,
		"description":    txn.Description,
		"metadata":       txn.Metadata,
		"status":         string(txn.Status),
		"created_at":     txn.CreatedAt,
		"completed_at":   txn.CompletedAt,
	}
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDestination):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, ErrInsufficientReserve):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient reserve")
	case errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, "concurrent update, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
