package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

const accountColumns = `id, number, user_id, balance, created_at, updated_at`

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var acc domain.Account
	err := row.Scan(&acc.ID, &acc.Number, &acc.OwnerID, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acc, err
}

func (r *AccountRepository) Create(ctx context.Context, acc domain.Account) (domain.Account, error) {
	query := `
		INSERT INTO accounts (number, user_id, balance)
		VALUES ($1, $2, $3)
		RETURNING ` + accountColumns

	created, err := scanAccount(r.db.QueryRow(ctx, query, acc.Number, acc.OwnerID, acc.Balance))
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to create account: %w", mapError(err))
	}
	return created, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

func (r *AccountRepository) FindByNumber(ctx context.Context, number string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, number))
}

func (r *AccountRepository) FindAll(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Update overwrites only the non-nil fields of patch.
func (r *AccountRepository) Update(ctx context.Context, id uuid.UUID, patch domain.AccountPatch) (domain.Account, error) {
	query := `
		UPDATE accounts
		SET number = COALESCE($2, number),
		    balance = COALESCE($3, balance),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns

	updated, err := scanAccount(r.db.QueryRow(ctx, query, id, patch.Number, patch.Balance))
	if err != nil {
		return domain.Account{}, mapError(err)
	}
	return updated, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
