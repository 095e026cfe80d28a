// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sqlwb/cli/internal/dsn"
	"sqlwb/cli/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pterm/pterm"
)

// refcursorOID is the type OID of PostgreSQL's refcursor.
const refcursorOID = 1790

// PgSession is a Session over a single pgx connection.
type PgSession struct {
	conn      *pgx.Conn
	product   dsn.Product
	inspector *SchemaInspector
	logger    *pterm.Logger

	mu         sync.Mutex
	notices    []string
	autoCommit bool
	timeout    int
}

// Connect opens a session and identifies the server product.
func Connect(ctx context.Context, connString string, logger *pterm.Logger) (*PgSession, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	s := &PgSession{autoCommit: true, logger: logging.OrDisabled(logger)}
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		s.addNotice(n.Severity + ": " + n.Message)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.inspector = NewSchemaInspector(conn)

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		s.logger.Debug("cannot read server version", s.logger.Args("error", err))
	}
	s.product = dsn.DetectProduct(version)
	s.logger.Debug("connected", s.logger.Args("product", s.product.Name, "version", s.product.Version))
	return s, nil
}

// Product returns the identified server product.
func (s *PgSession) Product() dsn.Product { return s.product }

func (s *PgSession) ProductID() string { return s.product.ID }

func (s *PgSession) addNotice(msg string) {
	s.mu.Lock()
	s.notices = append(s.notices, msg)
	s.mu.Unlock()
}

func (s *PgSession) takeNotices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *PgSession) peekNotices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

// CreateStatement returns a new statement on the session connection.
func (s *PgSession) CreateStatement(ctx context.Context) (Statement, error) {
	if s.conn.IsClosed() {
		return nil, fmt.Errorf("connection is closed")
	}
	return &pgStatement{sess: s, updateCount: -1}, nil
}

func (s *PgSession) exec(ctx context.Context, sql string) error {
	_, err := s.conn.Exec(ctx, sql)
	return err
}

// SetSavepoint opens the implicit transaction first when autocommit is off.
func (s *PgSession) SetSavepoint(ctx context.Context, name string) error {
	if !s.AutoCommit() && !s.InTransaction() {
		if err := s.exec(ctx, "BEGIN"); err != nil {
			return err
		}
	}
	return s.exec(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
}

func (s *PgSession) RollbackToSavepoint(ctx context.Context, name string) error {
	return s.exec(ctx, "ROLLBACK TO SAVEPOINT "+pgx.Identifier{name}.Sanitize())
}

func (s *PgSession) ReleaseSavepoint(ctx context.Context, name string) error {
	return s.exec(ctx, "RELEASE SAVEPOINT "+pgx.Identifier{name}.Sanitize())
}

func (s *PgSession) Commit(ctx context.Context) error {
	if !s.InTransaction() {
		return nil
	}
	return s.exec(ctx, "COMMIT")
}

func (s *PgSession) Rollback(ctx context.Context) error {
	if !s.InTransaction() {
		return nil
	}
	return s.exec(ctx, "ROLLBACK")
}

func (s *PgSession) AutoCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoCommit
}

func (s *PgSession) SetAutoCommit(on bool) {
	s.mu.Lock()
	s.autoCommit = on
	s.mu.Unlock()
}

// InTransaction reports whether a transaction block is open, including a failed one.
func (s *PgSession) InTransaction() bool {
	return s.conn.PgConn().TxStatus() != 'I'
}

// DescribeTable returns column and key information for a table.
func (s *PgSession) DescribeTable(ctx context.Context, name string) (*TableInfo, error) {
	return s.inspector.DescribeTable(ctx, name)
}

// ClearSchemaCache drops cached table descriptions, e.g. after DDL.
func (s *PgSession) ClearSchemaCache() { s.inspector.ClearCache() }

func (s *PgSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// prepare applies the statement timeout and opens a transaction when autocommit is off.
func (s *PgSession) prepare(ctx context.Context, timeout int) error {
	s.mu.Lock()
	changed := timeout != s.timeout
	autoCommit := s.autoCommit
	s.mu.Unlock()

	if changed {
		if err := s.exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeout*1000)); err != nil {
			return err
		}
		s.mu.Lock()
		s.timeout = timeout
		s.mu.Unlock()
	}
	if !autoCommit && !s.InTransaction() {
		return s.exec(ctx, "BEGIN")
	}
	return nil
}

// queued is a result read ahead of a cursor fetch.
type queued struct {
	rs    ResultSet
	count int64
}

// pgStatement walks the results of one simple-protocol Exec.
type pgStatement struct {
	sess        *PgSession
	mrr         *pgconn.MultiResultReader
	current     ResultSet
	updateCount int64
	queue       []queued
	timeout     int
	maxRows     int
}

func (st *pgStatement) Execute(ctx context.Context, sql string) (bool, error) {
	st.release()
	if err := st.sess.prepare(ctx, st.timeout); err != nil {
		return false, err
	}
	st.mrr = st.sess.conn.PgConn().Exec(ctx, sql)
	return st.advance()
}

func (st *pgStatement) ResultSet() ResultSet { return st.current }

func (st *pgStatement) UpdateCount() (int64, error) { return st.updateCount, nil }

func (st *pgStatement) MoreResults(ctx context.Context) (bool, error) {
	if st.current != nil {
		if err := st.current.Close(); err != nil {
			return false, err
		}
	}
	return st.advance()
}

// advance moves to the next result, serving read-ahead results first.
func (st *pgStatement) advance() (bool, error) {
	st.current = nil
	st.updateCount = -1
	if len(st.queue) > 0 {
		q := st.queue[0]
		st.queue = st.queue[1:]
		if q.rs != nil {
			st.current = q.rs
			return true, nil
		}
		st.updateCount = q.count
		return false, nil
	}
	rs, count, err := st.nextFromServer()
	if err != nil {
		return false, err
	}
	if rs != nil {
		st.current = rs
		return true, nil
	}
	st.updateCount = count
	return false, nil
}

// nextFromServer reads the next result of the running Exec. Both return values are
// empty (nil, -1) when the chain is exhausted.
func (st *pgStatement) nextFromServer() (ResultSet, int64, error) {
	if st.mrr == nil {
		return nil, -1, nil
	}
	if !st.mrr.NextResult() {
		err := st.mrr.Close()
		st.mrr = nil
		return nil, -1, err
	}
	rr := st.mrr.ResultReader()
	if len(rr.FieldDescriptions()) > 0 {
		return newPgResultSet(st, rr, nil), -1, nil
	}
	tag, err := rr.Close()
	if err != nil {
		return nil, -1, err
	}
	return nil, tag.RowsAffected(), nil
}

// readAhead buffers every remaining result so the connection is free for a cursor fetch.
func (st *pgStatement) readAhead(ctx context.Context) error {
	for st.mrr != nil {
		rs, count, err := st.nextFromServer()
		if err != nil {
			return err
		}
		if rs == nil {
			if count >= 0 {
				st.queue = append(st.queue, queued{count: count})
			}
			continue
		}
		var rows [][]any
		for rs.Next(ctx) {
			vals, err := rs.Values()
			if err != nil {
				rs.Close()
				return err
			}
			rows = append(rows, vals)
		}
		if err := rs.Close(); err != nil {
			return err
		}
		st.queue = append(st.queue, queued{rs: NewMemResultSet(rs.Columns(), rows)})
	}
	return nil
}

func (st *pgStatement) Warnings() []string { return st.sess.peekNotices() }

func (st *pgStatement) ClearWarnings() { st.sess.takeNotices() }

func (st *pgStatement) SetQueryTimeout(seconds int) { st.timeout = seconds }

func (st *pgStatement) SetMaxRows(n int) { st.maxRows = n }

func (st *pgStatement) Cancel() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return st.sess.conn.PgConn().CancelRequest(ctx)
}

func (st *pgStatement) release() {
	if st.current != nil {
		st.current.Close()
		st.current = nil
	}
	for _, q := range st.queue {
		if q.rs != nil {
			q.rs.Close()
		}
	}
	st.queue = nil
	if st.mrr != nil {
		if err := st.mrr.Close(); err != nil {
			st.sess.logger.Debug("discarding pending results", st.sess.logger.Args("error", err))
		}
		st.mrr = nil
	}
}

func (st *pgStatement) Close() error {
	st.release()
	return nil
}

// pgResultSet decodes rows of one ResultReader with the connection type map.
type pgResultSet struct {
	stmt   *pgStatement
	rr     *pgconn.ResultReader
	owner  *pgconn.MultiResultReader
	fds    []pgconn.FieldDescription
	cols   []Column
	values []any
	rows   int
	err    error
	closed bool
}

func newPgResultSet(st *pgStatement, rr *pgconn.ResultReader, owner *pgconn.MultiResultReader) *pgResultSet {
	fds := rr.FieldDescriptions()
	m := st.sess.conn.TypeMap()
	cols := make([]Column, len(fds))
	for i, fd := range fds {
		cols[i] = Column{Name: fd.Name, Cursor: fd.DataTypeOID == refcursorOID}
		switch t, ok := m.TypeForOID(fd.DataTypeOID); {
		case cols[i].Cursor:
			cols[i].TypeName = "refcursor"
		case ok:
			cols[i].TypeName = t.Name
		default:
			cols[i].TypeName = fmt.Sprintf("oid:%d", fd.DataTypeOID)
		}
	}
	return &pgResultSet{stmt: st, rr: rr, owner: owner, fds: fds, cols: cols}
}

func (r *pgResultSet) Columns() []Column { return r.cols }

func (r *pgResultSet) Next(ctx context.Context) bool {
	if r.closed || r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	if r.stmt.maxRows > 0 && r.rows >= r.stmt.maxRows {
		return false
	}
	if !r.rr.NextRow() {
		r.Close()
		return false
	}
	r.rows++
	r.values, r.err = decodeRow(r.stmt, r.stmt.sess.conn.TypeMap(), r.fds, r.rr.Values())
	return r.err == nil
}

func (r *pgResultSet) Values() ([]any, error) { return r.values, r.err }

func (r *pgResultSet) Err() error { return r.err }

func (r *pgResultSet) Close() error {
	if r.closed {
		return r.err
	}
	r.closed = true
	if _, err := r.rr.Close(); err != nil && r.err == nil {
		r.err = err
	}
	if r.owner != nil {
		if err := r.owner.Close(); err != nil && r.err == nil {
			r.err = err
		}
	}
	return r.err
}

// decodeRow converts raw column values with the registered codecs. Unknown types are
// returned as text; refcursor values become nested result sets.
func decodeRow(st *pgStatement, m *pgtype.Map, fds []pgconn.FieldDescription, raw [][]byte) ([]any, error) {
	out := make([]any, len(raw))
	for i, b := range raw {
		if b == nil {
			continue
		}
		fd := fds[i]
		if fd.DataTypeOID == refcursorOID {
			out[i] = &pgCursor{stmt: st, name: string(b)}
			continue
		}
		if t, ok := m.TypeForOID(fd.DataTypeOID); ok {
			v, err := t.Codec.DecodeValue(m, fd.DataTypeOID, fd.Format, b)
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", fd.Name, err)
			}
			out[i] = v
			continue
		}
		out[i] = string(b)
	}
	return out, nil
}

// pgCursor is a refcursor returned by a function. Its rows are fetched on Open, after
// the results of the running statement have been read ahead.
type pgCursor struct {
	stmt *pgStatement
	name string
	rs   *pgResultSet
	err  error
}

// Open fetches the cursor rows.
func (c *pgCursor) Open(ctx context.Context) error {
	if c.rs != nil || c.err != nil {
		return c.err
	}
	if c.err = c.stmt.readAhead(ctx); c.err != nil {
		return c.err
	}
	mrr := c.stmt.sess.conn.PgConn().Exec(ctx, "FETCH ALL FROM "+pgx.Identifier{c.name}.Sanitize())
	if !mrr.NextResult() {
		c.err = mrr.Close()
		if c.err == nil {
			c.err = fmt.Errorf("cursor %s returned no rows description", c.name)
		}
		return c.err
	}
	c.rs = newPgResultSet(c.stmt, mrr.ResultReader(), mrr)
	return nil
}

func (c *pgCursor) Columns() []Column {
	if c.rs == nil {
		return nil
	}
	return c.rs.Columns()
}

func (c *pgCursor) Next(ctx context.Context) bool {
	if c.rs == nil && c.Open(ctx) != nil {
		return false
	}
	return c.rs.Next(ctx)
}

func (c *pgCursor) Values() ([]any, error) {
	if c.rs == nil {
		return nil, c.err
	}
	return c.rs.Values()
}

func (c *pgCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if c.rs != nil {
		return c.rs.Err()
	}
	return nil
}

func (c *pgCursor) Close() error {
	if c.rs != nil {
		return c.rs.Close()
	}
	return nil
}

// String shows the cursor name when a cursor value is printed as a plain value.
func (c *pgCursor) String() string { return "<cursor " + strings.TrimSpace(c.name) + ">" }
