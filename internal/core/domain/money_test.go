package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		balance string
		amount  string
		want    string
		wantErr error
	}{
		{name: "partial", balance: "2000.00", amount: "1000.00", want: "1000"},
		{name: "exact balance", balance: "0.30", amount: "0.3", want: "0"},
		{name: "no float drift", balance: "0.3", amount: "0.1", want: "0.2"},
		{name: "overdraw", balance: "500.00", amount: "500.01", wantErr: ErrInsufficientBalance},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Debit(decimal.RequireFromString(tt.balance), decimal.RequireFromString(tt.amount))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestCredit(t *testing.T) {
	t.Parallel()

	got := Credit(decimal.RequireFromString("500.00"), decimal.RequireFromString("1000.00"))
	assert.True(t, got.Equal(decimal.RequireFromString("1500")))
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	d, err := ParseAmount("12.345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "12.34567890123456789", d.String())

	_, err = ParseAmount("abc")
	require.Error(t, err)
}

func TestIntegrityErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := error(&IntegrityError{Constraint: "accounts_number_key", Detail: "Key (number)=(123456) already exists."})

	assert.True(t, errors.Is(err, ErrDataIntegrity))
	assert.False(t, errors.Is(err, ErrAccountNotFound))
	assert.Contains(t, err.Error(), "accounts_number_key")
}

func TestAccountPatchApply(t *testing.T) {
	t.Parallel()

	acc := Account{Number: "123456", Balance: decimal.RequireFromString("10")}

	balance := decimal.RequireFromString("99.5")
	onlyBalance := AccountPatch{Balance: &balance}.Apply(acc)
	assert.Equal(t, "123456", onlyBalance.Number)
	assert.True(t, onlyBalance.Balance.Equal(balance))

	number := "654321"
	onlyNumber := AccountPatch{Number: &number}.Apply(acc)
	assert.Equal(t, "654321", onlyNumber.Number)
	assert.True(t, onlyNumber.Balance.Equal(acc.Balance))

	assert.True(t, AccountPatch{}.Empty())
}
