package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type txContextKey string

const (
	txStatusKey = txContextKey("txStatus")
	txKey       = txContextKey("tx-context-key")
)

// Tx is an open transaction. Commit and Rollback are no-ops when the
// transaction was inherited from the context; the opener closes it.
type Tx interface {
	Executor
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it is still open.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{Tx: tx, logger: logger}
}

// inheritedTx reports the transaction ctx carries, but only while the layer
// that opened it still marks it open.
func inheritedTx(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey).(Tx)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil, false
	}
	status, ok := ctx.Value(txStatusKey).(string)
	return tx, ok && status == "open"
}

// GetTx returns the transaction already carried by ctx when one is open, or
// begins a new one and stores it on the returned context. Nested callers
// share the outermost transaction; only the outermost caller commits.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx, ok := inheritedTx(ctx); ok {
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("error while beginning transaction")
		return ctx, nil, errors.New("error while beginning transaction")
	}

	tx := NewTx(sqlxTx, logger)
	ctx = context.WithValue(ctx, txStatusKey, "open")
	ctx = context.WithValue(ctx, txKey, tx)
	return ctx, tx, nil
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey).(Tx)
	if !ok || tx == nil {
		return nil, false
	}
	return tx, true
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

// Rollback aborts the transaction unless it already closed or ctx still
// marks it open, in which case the opener owns the close.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}
	if status, ok := ctx.Value(txStatusKey).(string); ok && status == "open" {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("error while rolling back transaction")
		return errors.New("error while rolling back transaction")
	}
	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("error while committing transaction")
		return errors.New("error while committing transaction")
	}
	t.isClosed = true
	return nil
}
