package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// MakeTx is a function that creates a db transaction
type MakeTx = func(ctx context.Context) (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(conn *sqlx.DB) MakeTx {
	return func(ctx context.Context) (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		txqry := New(sqltx)
		return txqry,
			func() error {
				return sqltx.Rollback()
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}

// WithTx runs fn in a transaction that is committed when fn returns nil and rolled back
// otherwise (including when fn panics, the panic is then propagated).
func WithTx(ctx context.Context, makeTx MakeTx, reason string, fn func(q *Queries) error) (err error) {
	q, discard, commit, err := makeTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction (%s): %w", reason, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rbErr := discard()
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.WarnContext(ctx, "transaction rollback failed", "reason", reason, "err", rbErr)
		}
	}()

	err = fn(q)
	if err != nil {
		return err
	}

	err = commit()
	if err != nil {
		return fmt.Errorf("commit transaction (%s): %w", reason, err)
	}
	committed = true
	return nil
}
