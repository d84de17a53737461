// Package dialect provides the database abstraction the engine runs
// against. It defines the driver and transaction contracts plus the
// supported dialect names; the dialect/sql sub-package implements them
// over database/sql.
package dialect

import (
	"context"
	"log/slog"
	"time"
)

// Dialect names the engine recognizes.
const (
	// MySQL is the mysql dialect.
	MySQL = "mysql"
	// SQLite is the sqlite dialect.
	SQLite = "sqlite"
	// Postgres is the postgres dialect.
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard database operations.
//
// The "query" argument is the statement text, "args" its bound
// arguments as []any, and "v" the destination: *sql.Rows for Query,
// *sql.Result (or nil) for Exec.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface for database drivers used by the engine.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction operations. A Tx is an ExecQuerier whose
// statements take effect only on Commit.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// DebugDriver wraps a Driver and logs every statement through slog
// before delegating.
type DebugDriver struct {
	Driver
	log *slog.Logger
}

// Debug wraps a driver with statement logging. A nil logger falls back
// to slog.Default.
func Debug(d Driver, log *slog.Logger) *DebugDriver {
	if log == nil {
		log = slog.Default()
	}
	return &DebugDriver{Driver: d, log: log}
}

// Exec logs its arguments and calls the underlying driver.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.log.DebugContext(ctx, "exec", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// Query logs its arguments and calls the underlying driver.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.log.DebugContext(ctx, "query", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// Tx starts a transaction whose statements are logged as well.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &debugTx{Tx: tx, log: d.log}, nil
}

type debugTx struct {
	Tx
	log *slog.Logger
}

func (d *debugTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Tx.Exec(ctx, query, args, v)
	d.log.DebugContext(ctx, "tx.exec", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

func (d *debugTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Tx.Query(ctx, query, args, v)
	d.log.DebugContext(ctx, "tx.query", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// NopTx returns a Tx that delegates to the driver and ignores
// Commit/Rollback. Useful when an operation requires a Tx but the
// caller already manages the transaction boundary.
func NopTx(d Driver) Tx {
	return nopTx{d}
}

type nopTx struct{ Driver }

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
