package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

var (
	// ErrNotFound occurs when no withdrawal request exists for an id.
	ErrNotFound = errors.New("withdrawal request not found")

	// ErrStaleStatus occurs when a transition expected a status the stored
	// request no longer holds, meaning a concurrent writer moved it first.
	ErrStaleStatus = errors.New("withdrawal request status changed")
)

// Repository persists withdrawal requests.
//
// Transition is the only write to an existing request and is conditional: it
// persists req only when the stored status still equals expected, failing
// with ErrStaleStatus otherwise. Every status change goes through it, so two
// concurrent writers can never both win the same transition.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	Transition(ctx context.Context, req Request, expected Status) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]Request, error)
}

// PostgresRepository stores withdrawal requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = `id, owner_id, wallet_type, amount, currency, destination_type, destination_details,
    status, rejection_reason, transaction_id, created_at, reviewed_at, completed_at`

// Create inserts a new request.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	details, err := json.Marshal(req.DestinationDetails)
	if err != nil {
		return fmt.Errorf("encode destination details: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO withdrawal_requests
        (id, owner_id, wallet_type, amount, currency, destination_type, destination_details,
         status, rejection_reason, transaction_id, created_at, reviewed_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, req.OwnerID, string(req.WalletType), req.Amount, string(req.Currency),
		req.DestinationType, details, string(req.Status), req.RejectionReason,
		req.TransactionID, req.CreatedAt.UTC(), req.ReviewedAt, req.CompletedAt)
	return err
}

// Get fetches a request by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1`, reqID)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

// Transition rewrites the mutable workflow fields of a request, guarded by
// the expected current status so concurrent writers cannot race each other.
func (r *PostgresRepository) Transition(ctx context.Context, req Request, expected Status) error {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	tag, err := r.db.Exec(ctx, `UPDATE withdrawal_requests
        SET status = $2, rejection_reason = $3, transaction_id = $4, reviewed_at = $5, completed_at = $6
        WHERE id = $1 AND status = $7`,
		id, string(req.Status), req.RejectionReason, req.TransactionID, req.ReviewedAt, req.CompletedAt,
		string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, req.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return nil
}

// ListByStatus returns requests in the given state, oldest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests
        WHERE status = $1 ORDER BY created_at LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req        Request
		id         uuid.UUID
		walletType string
		currency   string
		status     string
		details    []byte
	)
	if err := row.Scan(&id, &req.OwnerID, &walletType, &req.Amount, &currency, &req.DestinationType, &details,
		&status, &req.RejectionReason, &req.TransactionID, &req.CreatedAt, &req.ReviewedAt, &req.CompletedAt); err != nil {
		return Request{}, err
	}
	req.ID = id.String()
	req.WalletType = wallet.Type(walletType)
	req.Currency = money.Currency(currency)
	req.Status = Status(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &req.DestinationDetails); err != nil {
			return Request{}, fmt.Errorf("decode destination details: %w", err)
		}
	}
	return req, nil
}
