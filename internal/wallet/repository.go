package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound occurs when no wallet exists for the requested (owner, type).
var ErrNotFound = errors.New("wallet not found")

// Repository persists wallet settings keyed by (owner, type).
type Repository interface {
	// GetOrCreate returns the wallet for (ownerID, typ), creating it with the
	// supplied reserve percentage when absent. Existing wallets are returned
	// unchanged; the supplied percentage is ignored for them. The boolean
	// reports whether a new wallet was created.
	GetOrCreate(ctx context.Context, ownerID string, typ Type, reservePct decimal.Decimal) (Wallet, bool, error)
	Get(ctx context.Context, ownerID string, typ Type) (Wallet, error)
	// ListDueForSettlement returns merchant wallets with auto-settlement on
	// whose next settlement timestamp is at or before now.
	ListDueForSettlement(ctx context.Context, now time.Time) ([]Wallet, error)
	UpdateSettlementSchedule(ctx context.Context, ownerID string, typ Type, next time.Time) error
	SetReservePercentage(ctx context.Context, ownerID string, typ Type, pct decimal.Decimal) error
	SetAutoSettlement(ctx context.Context, ownerID string, typ Type, enabled bool, freq SettlementFrequency) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, owner_id, type, reserve_pct, settlement_frequency, auto_settlement, next_settlement_at, created_at, updated_at`

// GetOrCreate inserts the wallet when missing and returns the stored row.
// The unique (owner_id, type) constraint makes creation idempotent under
// concurrent callers.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, ownerID string, typ Type, reservePct decimal.Decimal) (Wallet, bool, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, type, reserve_pct, settlement_frequency, auto_settlement, next_settlement_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
        ON CONFLICT (owner_id, type) DO NOTHING`,
		uuid.New(), ownerID, string(typ), reservePct, string(SettleDaily), typ == TypeMerchant, NextSettlement(SettleDaily, now), now)
	if err != nil {
		return Wallet{}, false, err
	}

	w, err := r.Get(ctx, ownerID, typ)
	if err != nil {
		return Wallet{}, false, err
	}
	return w, tag.RowsAffected() > 0, nil
}

// Get fetches the wallet for (ownerID, typ).
func (r *PostgresRepository) Get(ctx context.Context, ownerID string, typ Type) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND type = $2`, ownerID, string(typ))
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

// ListDueForSettlement returns merchant wallets due for an automatic sweep.
func (r *PostgresRepository) ListDueForSettlement(ctx context.Context, now time.Time) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE type = $1 AND auto_settlement AND next_settlement_at <= $2
        ORDER BY next_settlement_at`, string(TypeMerchant), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, w)
	}
	return due, rows.Err()
}

// UpdateSettlementSchedule stamps the next settlement timestamp.
func (r *PostgresRepository) UpdateSettlementSchedule(ctx context.Context, ownerID string, typ Type, next time.Time) error {
	return r.update(ctx, ownerID, typ, `next_settlement_at = $3`, next.UTC())
}

// SetReservePercentage changes the reserve fraction applied to future payments.
func (r *PostgresRepository) SetReservePercentage(ctx context.Context, ownerID string, typ Type, pct decimal.Decimal) error {
	return r.update(ctx, ownerID, typ, `reserve_pct = $3`, pct)
}

// SetAutoSettlement toggles scheduled settlement and its frequency.
func (r *PostgresRepository) SetAutoSettlement(ctx context.Context, ownerID string, typ Type, enabled bool, freq SettlementFrequency) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET auto_settlement = $3, settlement_frequency = $4, updated_at = now()
        WHERE owner_id = $1 AND type = $2`, ownerID, string(typ), enabled, string(freq))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) update(ctx context.Context, ownerID string, typ Type, set string, arg any) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET `+set+`, updated_at = now() WHERE owner_id = $1 AND type = $2`, ownerID, string(typ), arg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w    Wallet
		id   uuid.UUID
		typ  string
		freq string
	)
	if err := row.Scan(&id, &w.OwnerID, &typ, &w.ReservePercentage, &freq, &w.AutoSettlement, &w.NextSettlementAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.Type = Type(typ)
	w.SettlementFrequency = SettlementFrequency(freq)
	return w, nil
}
