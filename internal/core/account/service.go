// Package account holds the account use cases. Every operation takes the
// acting identity and defers the access decision to policy.CanAccess.
package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/policy"
)

type accountStore interface {
	Create(ctx context.Context, acc domain.Account) (domain.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Account, error)
	FindAll(ctx context.Context) ([]domain.Account, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.AccountPatch) (domain.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	accounts accountStore
	logger   *zap.Logger
}

func NewService(accounts accountStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{accounts: accounts, logger: logger}
}

// Create opens an account owned by the caller.
func (s *Service) Create(ctx context.Context, number string, balance decimal.Decimal, id domain.Identity) (domain.Account, error) {
	acc, err := s.accounts.Create(ctx, domain.Account{
		Number:  number,
		OwnerID: id.UserID,
		Balance: balance,
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.logger.Info("account created",
		zap.String("account_id", acc.ID.String()),
		zap.String("number", acc.Number),
		zap.String("owner_id", acc.OwnerID.String()),
	)
	return acc, nil
}

// List returns every account. ADMIN only.
func (s *Service) List(ctx context.Context, id domain.Identity) ([]domain.Account, error) {
	if !id.IsAdmin() {
		return nil, domain.ErrUnauthorizedAccess
	}
	return s.accounts.FindAll(ctx)
}

func (s *Service) Get(ctx context.Context, accountID uuid.UUID, id domain.Identity) (domain.Account, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if !policy.CanAccess(id, acc) {
		return domain.Account{}, domain.ErrUnauthorizedAccess
	}
	return acc, nil
}

// Update applies the non-nil fields of patch.
func (s *Service) Update(ctx context.Context, accountID uuid.UUID, patch domain.AccountPatch, id domain.Identity) (domain.Account, error) {
	old, err := s.Get(ctx, accountID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if patch.Empty() {
		return old, nil
	}

	updated, err := s.accounts.Update(ctx, accountID, patch)
	if err != nil {
		return domain.Account{}, err
	}

	s.logger.Info("account updated",
		zap.String("account_id", accountID.String()),
		zap.String("old_number", old.Number),
		zap.String("new_number", updated.Number),
		zap.String("old_balance", old.Balance.String()),
		zap.String("new_balance", updated.Balance.String()),
		zap.String("by", id.UserID.String()),
	)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, accountID uuid.UUID, id domain.Identity) error {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("account_id", accountID.String()), zap.String("by", id.UserID.String()))
	return nil
}
