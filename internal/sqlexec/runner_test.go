// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"sqlwb/cli/internal/config"
	"sqlwb/cli/internal/variables"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSavepointIsolation(t *testing.T) {
	failFirst := func(sql string) ([]step, error) {
		if strings.Contains(sql, "(1)") {
			return nil, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
		return []step{{count: 1}}, nil
	}

	tests := []struct {
		name         string
		useSavepoint bool
		wantSecond   bool
		wantCalls    []string
	}{
		{
			name:         "savepoint rolls back only the failed statement",
			useSavepoint: true,
			wantSecond:   true,
			wantCalls: []string{
				"SAVEPOINT", "EXEC INSERT INTO t VALUES (1)", "ROLLBACK TO SAVEPOINT",
				"SAVEPOINT", "EXEC INSERT INTO t VALUES (2)", "RELEASE SAVEPOINT",
			},
		},
		{
			name:       "without savepoint the transaction stays aborted",
			wantSecond: false,
			wantCalls:  []string{"EXEC INSERT INTO t VALUES (1)", "EXEC INSERT INTO t VALUES (2)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			sess.autoCommit = false
			sess.handler = failFirst
			r := newTestRunner(sess, map[string]any{
				config.ProductKey("postgresql", config.ProductUseSavepoint): tt.useSavepoint,
			}, nil)

			first := r.Run(context.Background(), "INSERT INTO t VALUES (1)")
			second := r.Run(context.Background(), "INSERT INTO t VALUES (2)")

			if first.IsSuccess() {
				t.Fatal("first statement should fail")
			}
			if first.Error.SQLState != "23505" {
				t.Errorf("SQLState = %q, want 23505", first.Error.SQLState)
			}
			if second.IsSuccess() != tt.wantSecond {
				t.Errorf("second statement success = %v, want %v (%q)", second.IsSuccess(), tt.wantSecond, second.ErrorMessage())
			}
			if !reflect.DeepEqual(sess.calls, tt.wantCalls) {
				t.Errorf("calls = %q, want %q", sess.calls, tt.wantCalls)
			}
		})
	}
}

func TestSavepointAfterStatementClosed(t *testing.T) {
	tests := []struct {
		name     string
		steps    []step
		wantCall string
	}{
		{
			name:     "error after a result set",
			steps:    []step{{rs: rows(2)}, {err: &pgconn.PgError{Code: "22012", Message: "division by zero"}}},
			wantCall: "ROLLBACK TO SAVEPOINT",
		},
		{
			name:     "success",
			steps:    []step{{rs: rows(2)}, {count: 1}},
			wantCall: "RELEASE SAVEPOINT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			sess.autoCommit = false
			sess.handler = func(string) ([]step, error) { return tt.steps, nil }
			r := newTestRunner(sess, map[string]any{
				config.ProductKey("postgresql", config.ProductUseSavepoint): true,
			}, nil)

			r.Run(context.Background(), "UPDATE t SET x = 1 WHERE id = 1 RETURNING x")

			want := []string{"SAVEPOINT", "EXEC UPDATE t SET x = 1 WHERE id = 1 RETURNING x", tt.wantCall}
			if !reflect.DeepEqual(sess.calls, want) {
				t.Fatalf("calls = %q, want %q", sess.calls, want)
			}
			if sess.openAtSavepointCall != 0 {
				t.Errorf("%s ran while %d statement(s) were still open", tt.wantCall, sess.openAtSavepointCall)
			}
		})
	}
}

func TestRunnerGuards(t *testing.T) {
	tests := []struct {
		name          string
		sql           string
		settings      map[string]any
		noSession     bool
		wantSuccess   bool
		wantWarning   bool
		wantCancelled bool
		wantExecuted  bool
		wantMessage   string
	}{
		{name: "empty statement", sql: "  -- nothing here\n", wantSuccess: true},
		{name: "no connection", sql: "SELECT 1", noSession: true, wantMessage: "connection_required"},
		{name: "client command without connection", sql: "WbEcho hello", noSession: true, wantSuccess: true, wantMessage: "hello"},
		{
			name:        "read-only blocks updates",
			sql:         "DELETE FROM t WHERE id = 1",
			settings:    map[string]any{config.KeyReadOnly: true},
			wantSuccess: true,
			wantWarning: true,
			wantMessage: "read-only",
		},
		{
			name:         "read-only allows queries",
			sql:          "SELECT * FROM t",
			settings:     map[string]any{config.KeyReadOnly: true},
			wantSuccess:  true,
			wantExecuted: true,
		},
		{
			name:          "unrestricted delete needs confirmation",
			sql:           "DELETE FROM t",
			settings:      map[string]any{config.KeyConfirmUnrestrictedDML: true},
			wantSuccess:   true,
			wantWarning:   true,
			wantCancelled: true,
		},
		{
			name:         "delete with where runs",
			sql:          "DELETE FROM t WHERE id IN (SELECT id FROM u)",
			settings:     map[string]any{config.KeyConfirmUnrestrictedDML: true},
			wantSuccess:  true,
			wantExecuted: true,
		},
		{
			name:          "confirm updates",
			sql:           "INSERT INTO t VALUES (1)",
			settings:      map[string]any{config.KeyConfirmUpdates: true},
			wantSuccess:   true,
			wantWarning:   true,
			wantCancelled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			opts := RunnerOptions{
				Settings:   config.NewSettings(tt.settings),
				Controller: declineAll{},
			}
			if !tt.noSession {
				opts.Session = sess
			}
			res := NewStatementRunner(opts).Run(context.Background(), tt.sql)

			if res.IsSuccess() != tt.wantSuccess {
				t.Errorf("IsSuccess() = %v, want %v", res.IsSuccess(), tt.wantSuccess)
			}
			if res.Warning != tt.wantWarning {
				t.Errorf("Warning = %v, want %v", res.Warning, tt.wantWarning)
			}
			if res.Cancelled != tt.wantCancelled {
				t.Errorf("Cancelled = %v, want %v", res.Cancelled, tt.wantCancelled)
			}
			if executed := len(sess.executed()) > 0; executed != tt.wantExecuted {
				t.Errorf("executed = %v, want %v", executed, tt.wantExecuted)
			}
			if tt.wantMessage != "" && !strings.Contains(res.MessageText(), tt.wantMessage) {
				t.Errorf("messages %q do not mention %q", res.MessageText(), tt.wantMessage)
			}
		})
	}
}

type declineAll struct{}

func (declineAll) ConfirmExecution(context.Context, string, string) bool { return false }

type scriptedPrompter struct {
	values map[string]string
	asked  []string
}

func (p *scriptedPrompter) PromptForVariables(_ context.Context, names []string, pool *variables.Pool) bool {
	p.asked = append(p.asked, names...)
	if p.values == nil {
		return false
	}
	for _, n := range names {
		if err := pool.SetParameterValue(n, p.values[n]); err != nil {
			return false
		}
	}
	return true
}

func TestRunnerVariables(t *testing.T) {
	t.Run("prompted values are substituted", func(t *testing.T) {
		pool, _ := variables.NewPool(variables.Options{})
		_ = pool.SetParameterValue("schema", "app")
		sess := newFakeSession()
		prompter := &scriptedPrompter{values: map[string]string{"id": "42"}}
		r := NewStatementRunner(RunnerOptions{Session: sess, Variables: pool, Prompter: prompter})

		res := r.Run(context.Background(), "SELECT * FROM ${schema}$.users WHERE id = ${?id}$")

		if !res.IsSuccess() {
			t.Fatalf("unexpected failure %q", res.ErrorMessage())
		}
		want := "SELECT * FROM app.users WHERE id = 42"
		if got := sess.executed(); len(got) != 1 || got[0] != want {
			t.Errorf("executed %q, want %q", got, want)
		}
		if !reflect.DeepEqual(prompter.asked, []string{"id"}) {
			t.Errorf("asked for %v", prompter.asked)
		}
	})

	t.Run("cancelled prompt stops the script", func(t *testing.T) {
		pool, _ := variables.NewPool(variables.Options{})
		sess := newFakeSession()
		r := NewStatementRunner(RunnerOptions{Session: sess, Variables: pool, Prompter: &scriptedPrompter{}})

		res := r.Run(context.Background(), "SELECT ${&name}$")

		if !res.Cancelled || !res.StopScript {
			t.Errorf("Cancelled = %v, StopScript = %v", res.Cancelled, res.StopScript)
		}
		if len(sess.executed()) != 0 {
			t.Error("statement executed after cancelled prompt")
		}
	})

	t.Run("cyclic definition fails the statement", func(t *testing.T) {
		pool, _ := variables.NewPool(variables.Options{MaxIterations: 5})
		_ = pool.SetParameterValue("a", "${b}$")
		_ = pool.SetParameterValue("b", "${a}$")
		sess := newFakeSession()
		r := NewStatementRunner(RunnerOptions{Session: sess, Variables: pool})

		res := r.Run(context.Background(), "SELECT ${a}$")

		if res.IsSuccess() {
			t.Fatal("expected failure")
		}
		if !strings.Contains(res.ErrorMessage(), "cyclic_variable") {
			t.Errorf("error %q does not name the cycle", res.ErrorMessage())
		}
		if len(sess.executed()) != 0 {
			t.Error("statement executed with unresolved variables")
		}
	})
}

func TestWorkbenchCommands(t *testing.T) {
	pool, _ := variables.NewPool(variables.Options{})
	r := NewStatementRunner(RunnerOptions{Variables: pool})
	ctx := context.Background()

	if res := r.Run(ctx, "WbVarDef greeting='hello world'"); !res.IsSuccess() {
		t.Fatalf("WbVarDef failed: %q", res.ErrorMessage())
	}
	if v, _ := pool.ParameterValue("greeting"); v != "hello world" {
		t.Errorf("greeting = %q", v)
	}
	if res := r.Run(ctx, "WbVarDef bad name=1"); res.IsSuccess() {
		t.Error("invalid variable name accepted")
	}
	_ = pool.SetParameterValue("other", "x")

	res := r.Run(ctx, "WbVarList")
	if len(res.DataStores) != 1 {
		t.Fatalf("WbVarList returned %d stores", len(res.DataStores))
	}
	want := [][]any{{"greeting", "hello world"}, {"other", "x"}}
	if got := res.DataStores[0].Rows; !reflect.DeepEqual(got, want) {
		t.Errorf("WbVarList rows = %v, want %v", got, want)
	}

	if res := r.Run(ctx, "WbEcho ${greeting}$"); res.MessageText() != "hello world" {
		t.Errorf("WbEcho printed %q", res.MessageText())
	}

	r.Run(ctx, "WbVarDelete greeting, other")
	if names := pool.Names(); len(names) != 0 {
		t.Errorf("variables left after delete: %v", names)
	}
}

func TestDescribe(t *testing.T) {
	sess := newFakeSession()
	sess.tables = map[string]*TableInfo{
		"users": {
			TableName:      "users",
			Columns:        []ColumnInfo{{Name: "id", DataType: "integer"}, {Name: "email", DataType: "text", Nullable: true}},
			PrimaryKeyCols: []string{"id"},
		},
	}
	r := NewStatementRunner(RunnerOptions{Session: sess})

	res := r.Run(context.Background(), "DESC users")
	if !res.IsSuccess() || len(res.DataStores) != 1 {
		t.Fatalf("DESC failed: %q", res.ErrorMessage())
	}
	want := [][]any{{"id", "integer", "NO", "", "YES"}, {"email", "text", "YES", "", ""}}
	if got := res.DataStores[0].Rows; !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}

	if res := r.Run(context.Background(), "DESCRIBE missing"); res.IsSuccess() {
		t.Error("expected failure for unknown table")
	}
}

func TestRunnerErrorPosition(t *testing.T) {
	sess := newFakeSession()
	sess.handler = func(string) ([]step, error) {
		return nil, &pgconn.PgError{Code: "42703", Message: `column "bogus" does not exist`, Position: 13}
	}
	r := NewStatementRunner(RunnerOptions{Session: sess})

	res := r.Run(context.Background(), "SELECT 1,\n  bogus FROM t")

	d := res.Error
	if d == nil || !d.HasError() {
		t.Fatalf("expected positioned error, got %+v", d)
	}
	if d.Offset != 12 || d.Line != 1 || d.Column != 2 {
		t.Errorf("offset/line/column = %d/%d/%d, want 12/1/2", d.Offset, d.Line, d.Column)
	}
	if got := d.ScriptPosition(100); got != 112 {
		t.Errorf("ScriptPosition = %d, want 112", got)
	}
}

func TestRunnerCancel(t *testing.T) {
	sess := newFakeSession()
	started := make(chan struct{})
	sess.prepare = func(st *fakeStatement) {
		st.block = make(chan struct{})
		st.started = started
	}
	r := NewStatementRunner(RunnerOptions{Session: sess})

	done := make(chan *Result)
	go func() { done <- r.Run(context.Background(), "SELECT pg_sleep(60)") }()

	<-started
	r.Cancel()

	select {
	case res := <-done:
		if !res.Cancelled || !res.Warning {
			t.Errorf("Cancelled = %v, Warning = %v", res.Cancelled, res.Warning)
		}
		if !res.IsSuccess() {
			t.Errorf("cancellation reported as failure: %q", res.ErrorMessage())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}
}

func TestEndReadOnlyTransaction(t *testing.T) {
	sess := newFakeSession()
	sess.autoCommit = false
	r := newTestRunner(sess, map[string]any{config.KeyEndReadOnlyTx: EndTxCommit}, nil)
	ctx := context.Background()

	r.Run(ctx, "SELECT 1")
	if sess.commits != 1 {
		t.Fatalf("commits = %d after read-only query, want 1", sess.commits)
	}

	r.Run(ctx, "UPDATE t SET a = 1 WHERE id = 2")
	r.Run(ctx, "SELECT 1")
	if sess.commits != 1 {
		t.Errorf("read-only policy committed pending changes")
	}

	r.Run(ctx, "COMMIT")
	r.Run(ctx, "SELECT 2")
	if sess.commits != 2 {
		t.Errorf("commits = %d after explicit commit and query, want 2", sess.commits)
	}
}

type rewriteHook struct {
	skip bool
	seen []string
}

func (h *rewriteHook) PreExec(_ context.Context, _ Session, sql string) (string, bool) {
	if h.skip {
		return "", false
	}
	return strings.ReplaceAll(sql, "NOW()", "CURRENT_TIMESTAMP"), true
}

func (h *rewriteHook) PostExec(_ context.Context, _ Session, sql string, _ *Result) {
	h.seen = append(h.seen, sql)
}

func TestStatementHook(t *testing.T) {
	sess := newFakeSession()
	hook := &rewriteHook{}
	r := NewStatementRunner(RunnerOptions{Session: sess, Hook: hook})

	r.Run(context.Background(), "SELECT NOW()")
	if got := sess.executed(); len(got) != 1 || got[0] != "SELECT CURRENT_TIMESTAMP" {
		t.Errorf("executed %q", got)
	}
	if len(hook.seen) != 1 {
		t.Errorf("PostExec called %d times", len(hook.seen))
	}

	hook.skip = true
	res := r.Run(context.Background(), "SELECT NOW()")
	if !res.IsSuccess() || len(sess.executed()) != 1 {
		t.Error("skipped statement was executed")
	}
}

func TestStatementHistory(t *testing.T) {
	var buf bytes.Buffer
	sess := newFakeSession()
	r := NewStatementRunner(RunnerOptions{
		Session:  sess,
		Settings: config.NewSettings(map[string]any{config.KeyLogStatements: true}),
		History:  NewHistory(&buf),
	})

	r.Run(context.Background(), "SELECT 1")

	if !strings.Contains(buf.String(), "success") || !strings.Contains(buf.String(), "SELECT 1\n;\n") {
		t.Errorf("history = %q", buf.String())
	}
}
