package domain

import "context"

// Tx is a unit of work opened by a store. pgx.Tx satisfies it directly.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
