package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

var errForeignTx = errors.New("storage: transaction was not opened by this repository")

// LedgerRepository persists transfers. Units of work run at READ COMMITTED;
// LockAccounts takes row locks so concurrent transfers on the same accounts queue up.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func pgTx(tx domain.Tx) (pgx.Tx, error) {
	ptx, ok := tx.(pgx.Tx)
	if !ok {
		return nil, errForeignTx
	}
	return ptx, nil
}

// LockAccounts locks the rows in number order, so two transfers over the same pair cannot deadlock.
func (r *LedgerRepository) LockAccounts(ctx context.Context, tx domain.Tx, numbers ...string) (map[string]domain.Account, error) {
	ptx, err := pgTx(tx)
	if err != nil {
		return nil, err
	}

	rows, err := ptx.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE number = ANY($1)
		ORDER BY number
		FOR UPDATE`, numbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[string]domain.Account, len(numbers))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		locked[acc.Number] = acc
	}
	return locked, rows.Err()
}

func (r *LedgerRepository) UpdateBalance(ctx context.Context, tx domain.Tx, accountID uuid.UUID, balance decimal.Decimal) error {
	ptx, err := pgTx(tx)
	if err != nil {
		return err
	}

	tag, err := ptx.Exec(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, accountID, balance)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *LedgerRepository) CreateTransaction(ctx context.Context, tx domain.Tx, txn domain.Transaction) (domain.Transaction, error) {
	ptx, err := pgTx(tx)
	if err != nil {
		return domain.Transaction{}, err
	}

	err = ptx.QueryRow(ctx, `
		INSERT INTO transactions (from_account_id, to_account_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, date_transfer`,
		txn.FromAccountID, txn.ToAccountID, txn.Amount, string(txn.Status),
	).Scan(&txn.ID, &txn.DateTransfer)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to insert transaction: %w", mapError(err))
	}
	return txn, nil
}

const transactionSelect = `
	SELECT t.id, t.from_account_id, t.to_account_id, fa.number, ta.number, t.amount, t.status, t.date_transfer
	FROM transactions t
	JOIN accounts fa ON fa.id = t.from_account_id
	JOIN accounts ta ON ta.id = t.to_account_id`

func (r *LedgerRepository) FindAll(ctx context.Context) ([]domain.Transaction, error) {
	return r.query(ctx, transactionSelect+` ORDER BY t.date_transfer`)
}

// FindByAccount returns transactions where the account is either side.
func (r *LedgerRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	return r.query(ctx, transactionSelect+`
		WHERE t.from_account_id = $1 OR t.to_account_id = $1
		ORDER BY t.date_transfer`, accountID)
}

func (r *LedgerRepository) query(ctx context.Context, sql string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.Transaction{}
	for rows.Next() {
		var (
			txn    domain.Transaction
			status string
		)
		if err := rows.Scan(&txn.ID, &txn.FromAccountID, &txn.ToAccountID, &txn.FromAccount, &txn.ToAccount,
			&txn.Amount, &status, &txn.DateTransfer); err != nil {
			return nil, err
		}
		txn.Status = domain.TransactionStatus(status)
		history = append(history, txn)
	}
	return history, rows.Err()
}
