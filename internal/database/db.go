// Package database wraps sqlx with transaction plumbing shared by all
// repositories.
package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the database surface repositories depend on. It is satisfied by
// DatabaseInstance and kept narrow so tests can fake it.
type DB interface {
	Executor
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Ping() error
	PingContext(ctx context.Context) error
	Close() error
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

// Executor is the query surface shared by a live connection and an open
// transaction. Repositories resolve one per call via ExecutorFor so that
// statements issued inside a transaction stay inside it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

// ExecutorFor returns the transaction carried by ctx when one is open,
// otherwise the database itself.
func ExecutorFor(ctx context.Context, db DB) Executor {
	if tx, ok := TxFromContext(ctx); ok && tx.IsOpen() {
		return tx
	}
	return db
}
