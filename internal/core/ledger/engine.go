// Package ledger executes transfers between accounts and answers transaction queries.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
	"github.com/ibrahimkeyboad/gobank/internal/core/policy"
)

const tracerName = "github.com/ibrahimkeyboad/gobank/internal/core/ledger"

type accountReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Account, error)
	FindByNumber(ctx context.Context, number string) (domain.Account, error)
}

type transactionStore interface {
	Begin(ctx context.Context) (domain.Tx, error)
	// LockAccounts locks the rows for numbers until tx ends. Unknown numbers are absent from the result.
	LockAccounts(ctx context.Context, tx domain.Tx, numbers ...string) (map[string]domain.Account, error)
	UpdateBalance(ctx context.Context, tx domain.Tx, accountID uuid.UUID, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx domain.Tx, txn domain.Transaction) (domain.Transaction, error)
	FindAll(ctx context.Context) ([]domain.Transaction, error)
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
}

type credentialVerifier interface {
	// VerifyCredential returns domain.ErrInvalidCredentials when credential does not match the owner's password.
	VerifyCredential(ctx context.Context, ownerID uuid.UUID, credential string) error
}

// TransferRequest is a validated request to move Amount from one account number to another.
type TransferRequest struct {
	FromNumber string
	ToNumber   string
	Amount     decimal.Decimal
	Credential string
}

type Engine struct {
	accounts     accountReader
	transactions transactionStore
	credentials  credentialVerifier
	events       *events.Bridge
	logger       *zap.Logger
	tracer       trace.Tracer
}

func NewEngine(
	accounts accountReader,
	transactions transactionStore,
	credentials credentialVerifier,
	bridge *events.Bridge,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		accounts:     accounts,
		transactions: transactions,
		credentials:  credentials,
		events:       bridge,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
	}
}

// SetTracerProvider replaces the global tracer provider for this engine.
func (e *Engine) SetTracerProvider(tp trace.TracerProvider) {
	e.tracer = tp.Tracer(tracerName)
}

// Transfer validates req on behalf of id and applies it atomically.
// The checks run in a fixed order and the first failure is returned:
// unknown source, unknown destination, ownership, credential, same account, balance.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest, id domain.Identity) (txn domain.Transaction, err error) {
	ctx, span := e.tracer.Start(ctx, "ledger.Transfer", trace.WithAttributes(
		attribute.String("ledger.from_account", req.FromNumber),
		attribute.String("ledger.to_account", req.ToNumber),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !req.Amount.IsPositive() {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	// 1. Resolve both accounts and check who is asking.
	// Credentials are verified before any row lock is taken.
	from, err := e.accounts.FindByNumber(ctx, req.FromNumber)
	if err != nil {
		return domain.Transaction{}, err
	}
	if _, err = e.accounts.FindByNumber(ctx, req.ToNumber); err != nil {
		return domain.Transaction{}, err
	}
	if !policy.CanAccess(id, from) {
		return domain.Transaction{}, domain.ErrUnauthorizedTransaction
	}
	if !id.IsAdmin() {
		if err = e.credentials.VerifyCredential(ctx, from.OwnerID, req.Credential); err != nil {
			return domain.Transaction{}, err
		}
	}

	// 2. Apply under row locks.
	txn, err = e.apply(ctx, req)
	if err != nil {
		return domain.Transaction{}, err
	}

	e.logger.Info("transfer completed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("from_account", txn.FromAccount),
		zap.String("to_account", txn.ToAccount),
		zap.String("amount", txn.Amount.String()),
		zap.Bool("admin", id.IsAdmin()),
	)
	return txn, nil
}

func (e *Engine) apply(ctx context.Context, req TransferRequest) (txn domain.Transaction, err error) {
	tx, err := e.transactions.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("cannot begin transfer: %w", err)
	}

	batch := e.events.Begin()
	defer func() {
		if err != nil {
			batch.Discard()
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			batch.Discard()
			err = fmt.Errorf("cannot commit transfer: %w", commitErr)
			return
		}
		batch.Flush()
	}()

	locked, err := e.transactions.LockAccounts(ctx, tx, req.FromNumber, req.ToNumber)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("cannot lock accounts: %w", err)
	}
	// The accounts may have been deleted since they were first resolved.
	from, ok := locked[req.FromNumber]
	if !ok {
		return domain.Transaction{}, domain.ErrAccountNotFound
	}
	to, ok := locked[req.ToNumber]
	if !ok {
		return domain.Transaction{}, domain.ErrAccountNotFound
	}

	if from.ID == to.ID {
		return domain.Transaction{}, domain.ErrSameAccountTransfer
	}

	fromBalance, err := domain.Debit(from.Balance, req.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	toBalance := domain.Credit(to.Balance, req.Amount)

	if err = e.transactions.UpdateBalance(ctx, tx, to.ID, toBalance); err != nil {
		return domain.Transaction{}, fmt.Errorf("cannot credit account: %w", err)
	}
	if err = e.transactions.UpdateBalance(ctx, tx, from.ID, fromBalance); err != nil {
		return domain.Transaction{}, fmt.Errorf("cannot debit account: %w", err)
	}

	txn, err = e.transactions.CreateTransaction(ctx, tx, domain.Transaction{
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		FromAccount:   from.Number,
		ToAccount:     to.Number,
		Amount:        req.Amount,
		Status:        domain.StatusCompleted,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("cannot create transaction: %w", err)
	}

	batch.Record(txn.Event())
	return txn, nil
}

// List returns every transaction. ADMIN only.
func (e *Engine) List(ctx context.Context, id domain.Identity) ([]domain.Transaction, error) {
	if !id.IsAdmin() {
		return nil, domain.ErrUnauthorizedAccess
	}
	return e.transactions.FindAll(ctx)
}

// ListByAccount returns the transactions touching accountID, as source or destination.
func (e *Engine) ListByAccount(ctx context.Context, accountID uuid.UUID, id domain.Identity) ([]domain.Transaction, error) {
	acc, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !policy.CanAccess(id, acc) {
		return nil, domain.ErrUnauthorizedAccess
	}
	return e.transactions.FindByAccount(ctx, acc.ID)
}
