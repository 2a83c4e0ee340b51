package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a registered principal. PasswordHash holds a bcrypt hash and is never serialized.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Account is a balance owned by exactly one user. Number is the business key used for transfers.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Number    string          `json:"number"`
	OwnerID   uuid.UUID       `json:"ownerId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// AccountPatch carries a partial update. Nil fields are left unchanged.
type AccountPatch struct {
	Number  *string
	Balance *decimal.Decimal
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p.Number == nil && p.Balance == nil
}

// Apply returns a copy of acc with the patch applied.
func (p AccountPatch) Apply(acc Account) Account {
	if p.Number != nil {
		acc.Number = *p.Number
	}
	if p.Balance != nil {
		acc.Balance = *p.Balance
	}
	return acc
}

type TransactionStatus string

const StatusCompleted TransactionStatus = "COMPLETED"

// Transaction is an immutable record of a completed transfer.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	FromAccountID uuid.UUID         `json:"fromAccountId"`
	ToAccountID   uuid.UUID         `json:"toAccountId"`
	FromAccount   string            `json:"fromAccount"`
	ToAccount     string            `json:"toAccount"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	DateTransfer  time.Time         `json:"dateTransfer"`
}

// TransactionCreated is the event emitted after a transfer commits.
type TransactionCreated struct {
	FromAccount string            `json:"fromAccount"`
	ToAccount   string            `json:"toAccount"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      TransactionStatus `json:"status"`
}

// Event projects the transaction into its wire-level event.
func (t Transaction) Event() TransactionCreated {
	return TransactionCreated{
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Amount:      t.Amount,
		Status:      t.Status,
	}
}

// IdempotencyRecord is what a store holds for one Idempotency-Key. Pending
// means the first request with the key has not finished yet.
type IdempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	Pending     bool   `json:"pending"`
	Status      int    `json:"status,omitempty"`
	Body        []byte `json:"body,omitempty"`
}
