package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgres "github.com/wiredberlin/boxoffice/internal/repository/postgres"
)

// AfterCommit runs once the transaction is durable. Hooks are for cache
// invalidation and metrics; their failures never undo the commit.
type AfterCommit func(ctx context.Context)

// UoW represents a unit of work over the order store.
type UoW struct {
	store *postgres.Store
}

func NewUoW(store *postgres.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside a read-committed transaction.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside a transaction with the given options. Hooks
// registered through after run in order after commit, with a context that
// is detached from the caller's cancellation.
func (u *UoW) DoWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, opts, func(ctx context.Context, tx postgres.DB) error {
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	hookCtx := context.WithoutCancel(ctx)
	for _, h := range hooks {
		h(hookCtx)
	}

	return nil
}
