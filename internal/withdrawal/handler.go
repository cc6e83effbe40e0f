package withdrawal

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/bank"
	"github.com/vizion-gateway/vizion_gateway/internal/ledger"
	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// Handler exposes the withdrawal request workflow over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a withdrawal handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OwnerID            string            `json:"owner_id"`
	Amount             decimal.Decimal   `json:"amount"`
	Currency           string            `json:"currency"`
	DestinationType    string            `json:"destination_type"`
	DestinationDetails map[string]string `json:"destination_details"`
}

// Create records a pending withdrawal request.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	out, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:            req.OwnerID,
		Amount:             req.Amount,
		Currency:           money.Normalize(req.Currency),
		DestinationType:    req.DestinationType,
		DestinationDetails: req.DestinationDetails,
	})
	if err != nil {
		return mapWorkflowError(err)
	}
	return c.Status(http.StatusCreated).JSON(requestResponse(out))
}

type reviewRequest struct {
	Approve         bool   `json:"approve"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// Review approves or rejects a pending request.
func (h *Handler) Review(c *fiber.Ctx) error {
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	out, err := h.service.Review(c.UserContext(), c.Params("id"), req.Approve, req.RejectionReason)
	if err != nil {
		return mapWorkflowError(err)
	}
	return c.JSON(requestResponse(out))
}

// Process executes an approved request, moving the funds.
func (h *Handler) Process(c *fiber.Ctx) error {
	req, txn, err := h.service.Process(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapWorkflowError(err)
	}
	resp := requestResponse(req)
	resp["transaction"] = fiber.Map{
		"id":        txn.ID,
		"amount":    txn.Amount,
		"currency":  string(txn.Currency),
		"reference": txn.Reference,
		"status":    string(txn.Status),
	}
	return c.JSON(resp)
}

// Get returns a request by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	out, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapWorkflowError(err)
	}
	return c.JSON(requestResponse(out))
}

// ListPending returns requests awaiting review.
func (h *Handler) ListPending(c *fiber.Ctx) error {
	pending, err := h.service.ListPending(c.UserContext(), c.QueryInt("limit"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(pending))
	for _, req := range pending {
		out = append(out, requestResponse(req))
	}
	return c.JSON(fiber.Map{"requests": out})
}

func requestResponse(req Request) fiber.Map {
	return fiber.Map{
		"id":                  req.ID,
		"owner_id":            req.OwnerID,
		"wallet_type":         string(req.WalletType),
		"amount":              req.Amount,
		"currency":            string(req.Currency),
		"destination_type":    req.DestinationType,
		"destination_details": req.DestinationDetails,
		"status":              string(req.Status),
		"rejection_reason":    req.RejectionReason,
		"transaction_id":      req.TransactionID,
		"created_at":          req.CreatedAt,
		"reviewed_at":         req.ReviewedAt,
		"completed_at":        req.CompletedAt,
	}
}

func mapWorkflowError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "withdrawal request not found")
	case errors.Is(err, ErrNotApproved):
		return fiber.NewError(http.StatusConflict, "withdrawal request not approved")
	case errors.Is(err, ErrAlreadyReviewed):
		return fiber.NewError(http.StatusConflict, "withdrawal request already reviewed")
	case errors.Is(err, ErrRejectionReasonRequired):
		return fiber.NewError(http.StatusBadRequest, "rejection reason is required")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	case errors.Is(err, bank.ErrPayoutFailed):
		return fiber.NewError(http.StatusBadGateway, "external payout failed")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
