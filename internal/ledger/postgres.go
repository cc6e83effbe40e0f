package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
)

// PostgresStore persists balances and transactions in PostgreSQL. Each Apply
// runs in a single database transaction with per-position row locks, so the
// Store atomicity contract holds without application-level sagas.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Balances returns every currency position held by the wallet.
func (s *PostgresStore) Balances(ctx context.Context, ownerID string, typ wallet.Type) (map[money.Currency]money.Balance, error) {
	rows, err := s.db.Query(ctx, `SELECT currency, available, reserved FROM wallet_balances
        WHERE owner_id = $1 AND wallet_type = $2`, ownerID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[money.Currency]money.Balance)
	for rows.Next() {
		var (
			currency string
			bal      money.Balance
		)
		if err := rows.Scan(&currency, &bal.Available, &bal.Reserved); err != nil {
			return nil, err
		}
		out[money.Currency(currency)] = bal
	}
	return out, rows.Err()
}

// Balance returns a single currency position, zero when the row is absent.
func (s *PostgresStore) Balance(ctx context.Context, ownerID string, typ wallet.Type, currency money.Currency) (money.Balance, error) {
	var bal money.Balance
	err := s.db.QueryRow(ctx, `SELECT available, reserved FROM wallet_balances
        WHERE owner_id = $1 AND wallet_type = $2 AND currency = $3`,
		ownerID, string(typ), string(currency)).Scan(&bal.Available, &bal.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return money.Zero(), nil
	}
	if err != nil {
		return money.Balance{}, err
	}
	return bal, nil
}

// Apply commits every posting and the completed transaction record together.
// Position rows are locked in deterministic order to avoid deadlocks between
// concurrent multi-wallet operations.
func (s *PostgresStore) Apply(ctx context.Context, txn Transaction, postings []Posting) (Transaction, error) {
	dbTx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer dbTx.Rollback(ctx) // nolint:errcheck

	ordered := make([]Posting, len(postings))
	copy(ordered, postings)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if a.WalletType != b.WalletType {
			return a.WalletType < b.WalletType
		}
		return a.Currency < b.Currency
	})

	for _, p := range ordered {
		if err := applyPosting(ctx, dbTx, p); err != nil {
			return Transaction{}, err
		}
	}

	txn.Status = StatusCompleted
	txn.CompletedAt = time.Now().UTC()

	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return Transaction{}, fmt.Errorf("encode metadata: %w", err)
	}

	txID, err := uuid.Parse(txn.ID)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction id: %w", err)
	}

	if _, err := dbTx.Exec(ctx, `INSERT INTO transactions
        (id, type, amount, currency, source_type, source_id, destination_type, destination_id,
         fee, platform_fee, reserve_amount, net_amount, reference, description, metadata,
         status, wallet_owner_id, wallet_type, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		txID, string(txn.Type), txn.Amount, string(txn.Currency),
		string(txn.Source.Type), txn.Source.ID, string(txn.Destination.Type), txn.Destination.ID,
		txn.Fee, txn.PlatformFee, txn.ReserveAmount, txn.NetAmount,
		txn.Reference, txn.Description, metadata,
		string(txn.Status), txn.WalletOwnerID, string(txn.WalletType),
		txn.CreatedAt.UTC(), txn.CompletedAt); err != nil {
		return Transaction{}, translatePgError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return Transaction{}, translatePgError(err)
	}
	return txn, nil
}

func applyPosting(ctx context.Context, dbTx pgx.Tx, p Posting) error {
	// Ensure the position row exists so the FOR UPDATE below always locks one.
	if _, err := dbTx.Exec(ctx, `INSERT INTO wallet_balances (owner_id, wallet_type, currency, available, reserved, updated_at)
        VALUES ($1, $2, $3, 0, 0, now())
        ON CONFLICT (owner_id, wallet_type, currency) DO NOTHING`,
		p.OwnerID, string(p.WalletType), string(p.Currency)); err != nil {
		return translatePgError(err)
	}

	var available, reserved decimal.Decimal
	if err := dbTx.QueryRow(ctx, `SELECT available, reserved FROM wallet_balances
        WHERE owner_id = $1 AND wallet_type = $2 AND currency = $3 FOR UPDATE`,
		p.OwnerID, string(p.WalletType), string(p.Currency)).Scan(&available, &reserved); err != nil {
		return translatePgError(err)
	}

	available = available.Add(p.Available)
	reserved = reserved.Add(p.Reserved)
	if available.IsNegative() {
		return ErrInsufficientFunds
	}
	if reserved.IsNegative() {
		return ErrInsufficientReserve
	}

	if _, err := dbTx.Exec(ctx, `UPDATE wallet_balances SET available = $4, reserved = $5, updated_at = now()
        WHERE owner_id = $1 AND wallet_type = $2 AND currency = $3`,
		p.OwnerID, string(p.WalletType), string(p.Currency), available, reserved); err != nil {
		return translatePgError(err)
	}
	return nil
}

// GetTransaction fetches one transaction by id.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, err
}

// ListTransactions returns the wallet's most recent transactions.
func (s *PostgresStore) ListTransactions(ctx context.Context, ownerID string, typ wallet.Type, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE wallet_owner_id = $1 AND wallet_type = $2
        ORDER BY created_at DESC LIMIT $3`, ownerID, string(typ), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

const transactionColumns = `id, type, amount, currency, source_type, source_id, destination_type, destination_id,
    fee, platform_fee, reserve_amount, net_amount, reference, description, metadata,
    status, wallet_owner_id, wallet_type, created_at, completed_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn            Transaction
		id             uuid.UUID
		typ, status    string
		currency       string
		srcType, dstTy string
		walletType     string
		metadata       []byte
	)
	if err := row.Scan(&id, &typ, &txn.Amount, &currency, &srcType, &txn.Source.ID, &dstTy, &txn.Destination.ID,
		&txn.Fee, &txn.PlatformFee, &txn.ReserveAmount, &txn.NetAmount, &txn.Reference, &txn.Description, &metadata,
		&status, &txn.WalletOwnerID, &walletType, &txn.CreatedAt, &txn.CompletedAt); err != nil {
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.Type = Type(typ)
	txn.Currency = money.Currency(currency)
	txn.Source.Type = PartyType(srcType)
	txn.Destination.Type = PartyType(dstTy)
	txn.Status = Status(status)
	txn.WalletType = wallet.Type(walletType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return txn, nil
}

// translatePgError maps serialization and uniqueness races onto ErrConflict
// so the engine can retry them.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Code)
		}
	}
	return err
}
