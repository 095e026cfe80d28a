// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// step is one element of a scripted result chain.
type step struct {
	rs    ResultSet
	count int64
	err   error
}

// fakeSession imitates a PostgreSQL connection: a failed statement inside a transaction
// aborts it until the transaction or a savepoint is rolled back.
type fakeSession struct {
	product    string
	autoCommit bool
	inTx       bool
	aborted    bool
	commits    int
	rollbacks  int

	// handler scripts the results of each executed statement.
	handler func(sql string) ([]step, error)
	// prepare adjusts each new statement.
	prepare func(st *fakeStatement)

	// openAtSavepointCall counts savepoint rollbacks and releases issued while a
	// statement was still open.
	openAtSavepointCall int

	mu         sync.Mutex
	calls      []string
	statements []*fakeStatement
	tables     map[string]*TableInfo
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		product:    "postgresql",
		autoCommit: true,
		handler:    func(string) ([]step, error) { return []step{{count: 0}}, nil },
	}
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeSession) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if sql, ok := strings.CutPrefix(c, "EXEC "); ok {
			out = append(out, sql)
		}
	}
	return out
}

func (s *fakeSession) ProductID() string { return s.product }

func (s *fakeSession) CreateStatement(context.Context) (Statement, error) {
	st := &fakeStatement{sess: s, count: -1}
	if s.prepare != nil {
		s.prepare(st)
	}
	s.mu.Lock()
	s.statements = append(s.statements, st)
	s.mu.Unlock()
	return st, nil
}

func (s *fakeSession) SetSavepoint(context.Context, string) error {
	if !s.autoCommit {
		s.inTx = true
	}
	s.record("SAVEPOINT")
	return nil
}

func (s *fakeSession) countOpenStatements() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.statements {
		if !st.closed {
			s.openAtSavepointCall++
		}
	}
}

func (s *fakeSession) RollbackToSavepoint(context.Context, string) error {
	s.countOpenStatements()
	s.aborted = false
	s.record("ROLLBACK TO SAVEPOINT")
	return nil
}

func (s *fakeSession) ReleaseSavepoint(context.Context, string) error {
	s.countOpenStatements()
	s.record("RELEASE SAVEPOINT")
	return nil
}

func (s *fakeSession) Commit(context.Context) error {
	s.inTx, s.aborted = false, false
	s.commits++
	return nil
}

func (s *fakeSession) Rollback(context.Context) error {
	s.inTx, s.aborted = false, false
	s.rollbacks++
	return nil
}

func (s *fakeSession) AutoCommit() bool            { return s.autoCommit }
func (s *fakeSession) SetAutoCommit(on bool)       { s.autoCommit = on }
func (s *fakeSession) InTransaction() bool         { return s.inTx }
func (s *fakeSession) Close(context.Context) error { return nil }

func (s *fakeSession) DescribeTable(_ context.Context, name string) (*TableInfo, error) {
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	return nil, errors.New("table " + name + " not found")
}

// fakeStatement replays the chain returned by the session handler. When forever is set
// MoreResults keeps returning it.
type fakeStatement struct {
	sess     *fakeSession
	steps    []step
	pos      int
	current  ResultSet
	count    int64
	forever  ResultSet
	warnings []string

	moreCalls int
	timeout   int
	maxRows   int
	closed    bool

	block     chan struct{}
	started   chan struct{}
	cancelled bool
}

func (st *fakeStatement) Execute(ctx context.Context, sql string) (bool, error) {
	s := st.sess
	s.record("EXEC " + sql)
	if st.started != nil {
		close(st.started)
	}
	if st.block != nil {
		<-st.block
		return false, errors.New("canceling statement due to user request")
	}
	if s.aborted {
		return false, &pgconn.PgError{Code: "25P02", Message: "current transaction is aborted, commands ignored until end of transaction block"}
	}
	if !s.autoCommit {
		s.inTx = true
	}
	steps, err := s.handler(sql)
	if err != nil {
		if s.inTx {
			s.aborted = true
		}
		return false, err
	}
	st.steps, st.pos = steps, 0
	return st.advance()
}

func (st *fakeStatement) advance() (bool, error) {
	st.current, st.count = nil, -1
	if st.forever != nil {
		st.current = st.forever
		return true, nil
	}
	if st.pos >= len(st.steps) {
		return false, nil
	}
	s := st.steps[st.pos]
	st.pos++
	if s.err != nil {
		return false, s.err
	}
	if s.rs != nil {
		st.current = s.rs
		return true, nil
	}
	st.count = s.count
	return false, nil
}

func (st *fakeStatement) ResultSet() ResultSet        { return st.current }
func (st *fakeStatement) UpdateCount() (int64, error) { return st.count, nil }

func (st *fakeStatement) MoreResults(context.Context) (bool, error) {
	st.moreCalls++
	return st.advance()
}

func (st *fakeStatement) Warnings() []string      { return st.warnings }
func (st *fakeStatement) ClearWarnings()          { st.warnings = nil }
func (st *fakeStatement) SetQueryTimeout(sec int) { st.timeout = sec }
func (st *fakeStatement) SetMaxRows(n int)        { st.maxRows = n }

func (st *fakeStatement) Cancel() error {
	if st.block != nil && !st.cancelled {
		st.cancelled = true
		close(st.block)
	}
	return nil
}

func (st *fakeStatement) Close() error {
	st.closed = true
	return nil
}

// rows builds a result set of one integer column with values 1..n.
func rows(n int) *MemResultSet {
	data := make([][]any, n)
	for i := range data {
		data[i] = []any{i + 1}
	}
	return NewMemResultSet([]Column{{Name: "n", TypeName: "int4"}}, data)
}

// cursorRows builds a result set whose single cursor column holds nested.
func cursorRows(nested ...ResultSet) *MemResultSet {
	data := make([][]any, len(nested))
	for i, n := range nested {
		data[i] = []any{n}
	}
	return NewMemResultSet([]Column{{Name: "c", TypeName: "refcursor", Cursor: true}}, data)
}
