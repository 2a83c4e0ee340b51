package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("unique violation", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("insert: %w", &pgconn.PgError{
			Code:           pgUniqueViolation,
			ConstraintName: "accounts_number_key",
			Detail:         "Key (number)=(123456) already exists.",
		})

		mapped := mapError(err)
		require.ErrorIs(t, mapped, domain.ErrDataIntegrity)

		var integrity *domain.IntegrityError
		require.ErrorAs(t, mapped, &integrity)
		assert.Equal(t, "accounts_number_key", integrity.Constraint)
		assert.Equal(t, "Key (number)=(123456) already exists.", integrity.Detail)
	})

	t.Run("check violation without detail", func(t *testing.T) {
		t.Parallel()
		mapped := mapError(&pgconn.PgError{Code: pgCheckViolation, Message: "new row violates check constraint"})

		var integrity *domain.IntegrityError
		require.ErrorAs(t, mapped, &integrity)
		assert.Equal(t, "new row violates check constraint", integrity.Detail)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()
		plain := errors.New("connection reset")
		assert.Same(t, plain, mapError(plain))

		syntax := &pgconn.PgError{Code: "42601"}
		assert.NotErrorIs(t, mapError(syntax), domain.ErrDataIntegrity)
	})
}

func TestConnectDBRequiresURL(t *testing.T) {
	t.Parallel()
	_, err := ConnectDB(context.Background(), "", PoolConfig{})
	assert.Error(t, err)
}
