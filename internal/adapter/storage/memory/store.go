// Package memory is an in-process store for development and tests. Units of
// work are serialised: only one may be open at a time, which is the
// in-memory equivalent of row locks plus serializable isolation.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

var errTxDone = errors.New("memory: transaction already closed")

type Store struct {
	// work serialises every write path, including open units of work.
	work sync.Mutex

	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.Account
	byNumber     map[string]uuid.UUID
	transactions []domain.Transaction
	users        map[uuid.UUID]domain.User
	byEmail      map[string]uuid.UUID

	now func() time.Time
}

func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]domain.Account),
		byNumber: make(map[string]uuid.UUID),
		users:    make(map[uuid.UUID]domain.User),
		byEmail:  make(map[string]uuid.UUID),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Accounts returns the account repository backed by s.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Transactions returns the transaction repository backed by s.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }

// Users returns the user repository backed by s.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// ---- accounts ----

type AccountRepository struct {
	s *Store
}

func (r *AccountRepository) Create(_ context.Context, acc domain.Account) (domain.Account, error) {
	s := r.s
	s.work.Lock()
	defer s.work.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNumber[acc.Number]; taken {
		return domain.Account{}, &domain.IntegrityError{Constraint: "accounts_number_key", Detail: "account number already exists"}
	}
	for _, existing := range s.accounts {
		if existing.OwnerID == acc.OwnerID {
			return domain.Account{}, &domain.IntegrityError{Constraint: "accounts_user_id_key", Detail: "user already owns an account"}
		}
	}

	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	now := s.now()
	acc.CreatedAt, acc.UpdatedAt = now, now
	s.accounts[acc.ID] = acc
	s.byNumber[acc.Number] = acc.ID
	return acc, nil
}

func (r *AccountRepository) FindByID(_ context.Context, id uuid.UUID) (domain.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acc, nil
}

func (r *AccountRepository) FindByNumber(_ context.Context, number string) (domain.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[number]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (r *AccountRepository) FindAll(_ context.Context) ([]domain.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *AccountRepository) Update(_ context.Context, id uuid.UUID, patch domain.AccountPatch) (domain.Account, error) {
	s := r.s
	s.work.Lock()
	defer s.work.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if patch.Number != nil && *patch.Number != acc.Number {
		if _, taken := s.byNumber[*patch.Number]; taken {
			return domain.Account{}, &domain.IntegrityError{Constraint: "accounts_number_key", Detail: "account number already exists"}
		}
		delete(s.byNumber, acc.Number)
		s.byNumber[*patch.Number] = id
	}
	acc = patch.Apply(acc)
	acc.UpdatedAt = s.now()
	s.accounts[id] = acc
	return acc, nil
}

func (r *AccountRepository) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.work.Lock()
	defer s.work.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	for _, txn := range s.transactions {
		if txn.FromAccountID == id || txn.ToAccountID == id {
			return &domain.IntegrityError{Constraint: "transactions_account_fkey", Detail: "account is referenced by transactions"}
		}
	}
	delete(s.accounts, id)
	delete(s.byNumber, acc.Number)
	return nil
}

// ---- transactions ----

type TransactionRepository struct {
	s *Store
}

// Tx stages writes until Commit. It holds the store's work lock while open.
type Tx struct {
	store    *Store
	balances map[uuid.UUID]decimal.Decimal
	created  []domain.Transaction
	done     bool
}

func (r *TransactionRepository) Begin(ctx context.Context) (domain.Tx, error) {
	s := r.s
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.work.Lock()
	return &Tx{store: s, balances: make(map[uuid.UUID]decimal.Decimal)}, nil
}

func (tx *Tx) Commit(_ context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	defer tx.store.work.Unlock()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, balance := range tx.balances {
		acc := s.accounts[id]
		acc.Balance = balance
		acc.UpdatedAt = now
		s.accounts[id] = acc
	}
	s.transactions = append(s.transactions, tx.created...)
	return nil
}

func (tx *Tx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.balances = nil
	tx.created = nil
	tx.store.work.Unlock()
	return nil
}

func asTx(tx domain.Tx) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok || mtx.done {
		return nil, errTxDone
	}
	return mtx, nil
}

func (r *TransactionRepository) LockAccounts(_ context.Context, tx domain.Tx, numbers ...string) (map[string]domain.Account, error) {
	s := r.s
	mtx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Account, len(numbers))
	for _, number := range numbers {
		id, ok := s.byNumber[number]
		if !ok {
			continue
		}
		acc := s.accounts[id]
		if staged, ok := mtx.balances[id]; ok {
			acc.Balance = staged
		}
		out[number] = acc
	}
	return out, nil
}

func (r *TransactionRepository) UpdateBalance(_ context.Context, tx domain.Tx, accountID uuid.UUID, balance decimal.Decimal) error {
	s := r.s
	mtx, err := asTx(tx)
	if err != nil {
		return err
	}
	s.mu.RLock()
	_, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrAccountNotFound
	}
	if balance.IsNegative() {
		return &domain.IntegrityError{Constraint: "accounts_balance_check", Detail: "balance cannot be negative"}
	}
	mtx.balances[accountID] = balance
	return nil
}

func (r *TransactionRepository) CreateTransaction(_ context.Context, tx domain.Tx, txn domain.Transaction) (domain.Transaction, error) {
	s := r.s
	mtx, err := asTx(tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.DateTransfer = s.now()
	mtx.created = append(mtx.created, txn)
	return txn, nil
}

func (r *TransactionRepository) FindAll(_ context.Context) ([]domain.Transaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Transaction{}, s.transactions...), nil
}

func (r *TransactionRepository) FindByAccount(_ context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Transaction{}
	for _, txn := range s.transactions {
		if txn.FromAccountID == accountID || txn.ToAccountID == accountID {
			out = append(out, txn)
		}
	}
	return out, nil
}
