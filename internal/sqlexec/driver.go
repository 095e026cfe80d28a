// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs single SQL statements against a database session and turns the
// outcome into a Result.
//
// The package is organized around three layers:
//   - Session, Statement and ResultSet: the database contracts the runner needs, with a
//     pgx implementation (PgSession) for PostgreSQL-protocol servers
//   - CommandMapper and Command: resolve the verb of a statement to a handler, with a
//     static default table and a per-connection overlay swapped on reconnect
//   - StatementRunner: the per-statement state machine (prompts, read-only and
//     confirmation guards, savepoints, result draining, transaction policy)
//
// Execution failures are never returned as Go errors from the runner. They are recorded
// in the Result together with an ErrorDescriptor that locates the failing token.
package sqlexec

import "context"

// Column describes one column of a result set.
type Column struct {
	Name     string
	TypeName string
	// Cursor marks columns whose values are themselves result sets (refcursor).
	Cursor bool
}

// ResultSet is a forward-only cursor over rows.
type ResultSet interface {
	Columns() []Column
	// Next advances to the next row. It returns false at the end or on error.
	Next(ctx context.Context) bool
	// Values returns the decoded values of the current row.
	Values() ([]any, error)
	Err() error
	Close() error
}

// Statement executes SQL and walks the chain of results it produces. The chain follows
// the classic driver model: after Execute or MoreResults returns true a ResultSet is
// current; otherwise UpdateCount reports rows affected, or -1 when the chain is exhausted.
type Statement interface {
	Execute(ctx context.Context, sql string) (bool, error)
	ResultSet() ResultSet
	UpdateCount() (int64, error)
	MoreResults(ctx context.Context) (bool, error)
	// Warnings returns server notices and output collected since the last ClearWarnings.
	Warnings() []string
	ClearWarnings()
	SetQueryTimeout(seconds int)
	SetMaxRows(n int)
	// Cancel asks the server to abort the running statement. It may be called from
	// another goroutine.
	Cancel() error
	Close() error
}

// Session is one database connection.
type Session interface {
	// ProductID identifies the server product, e.g. "postgresql" or "cockroachdb".
	ProductID() string
	CreateStatement(ctx context.Context) (Statement, error)
	SetSavepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	AutoCommit() bool
	SetAutoCommit(on bool)
	InTransaction() bool
	Close(ctx context.Context) error
}

// TableDescriber is implemented by sessions that can describe table structure.
type TableDescriber interface {
	DescribeTable(ctx context.Context, name string) (*TableInfo, error)
}
