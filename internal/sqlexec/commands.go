// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sqlwb/cli/internal/config"
	apperr "sqlwb/cli/internal/errors"
	"sqlwb/cli/internal/script"
	"sqlwb/cli/internal/variables"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

// handlerFunc runs one statement. A returned error fails the statement.
type handlerFunc func(ctx context.Context, ex *execution, sql string, res *Result) error

// execution is the state of one running statement. The statement and data store are
// guarded by mu because Cancel reaches them from another goroutine.
type execution struct {
	cmd      *Command
	session  Session
	settings Settings
	logger   *pterm.Logger
	vars     *variables.Pool
	consumer ResultConsumer
	progress ProgressFunc

	mu        sync.Mutex
	stmt      Statement
	store     *DataStore
	cancelled bool
}

func (ex *execution) setStatement(st Statement) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.cancelled {
		return false
	}
	ex.stmt = st
	return true
}

func (ex *execution) setStore(ds *DataStore) {
	ex.mu.Lock()
	ex.store = ds
	cancelled := ex.cancelled
	ex.mu.Unlock()
	if cancelled && ds != nil {
		ds.Cancel()
	}
}

func (ex *execution) cancel() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.cancelled = true
	if ex.store != nil {
		ex.store.Cancel()
	}
	if ex.stmt != nil {
		if err := ex.stmt.Cancel(); err != nil {
			ex.logger.Debug("cancel request failed", ex.logger.Args("error", err))
		}
	}
}

// closeStatement releases the statement on every exit path.
func (ex *execution) closeStatement() {
	ex.mu.Lock()
	st := ex.stmt
	ex.stmt = nil
	ex.mu.Unlock()
	if st == nil {
		return
	}
	st.ClearWarnings()
	if err := st.Close(); err != nil {
		ex.logger.Debug("closing statement", ex.logger.Args("error", err))
	}
}

func (ex *execution) productSetting(name string) string {
	return config.ProductKey(ex.session.ProductID(), name)
}

// useSavepoint reports whether DML should be isolated by a savepoint.
func (ex *execution) useSavepoint() bool {
	if ex.cmd.Kind != KindDML || ex.session.AutoCommit() {
		return false
	}
	return ex.settings.Bool(ex.productSetting(config.ProductUseSavepoint), false)
}

const savepointName = "sqlwb_statement"

// runSQL sends the statement to the server and drains its results.
func runSQL(ctx context.Context, ex *execution, sql string, res *Result) error {
	st, err := ex.session.CreateStatement(ctx)
	if err != nil {
		return err
	}
	if !ex.setStatement(st) {
		st.Close()
		return context.Canceled
	}
	st.SetQueryTimeout(ex.settings.Int(config.KeyQueryTimeout, 0))
	st.SetMaxRows(ex.settings.Int(config.KeyMaxRows, 0))

	savepoint := ex.useSavepoint()
	if savepoint {
		if err := ex.session.SetSavepoint(ctx, savepointName); err != nil {
			ex.logger.Warn("cannot set savepoint", ex.logger.Args("error", err))
			savepoint = false
		}
	}

	hasResult, err := st.Execute(ctx, sql)
	if err == nil {
		err = ex.drain(ctx, st, hasResult, res)
	}
	collectWarnings(st, res)
	// Pending results keep the connection busy until the statement is closed.
	ex.closeStatement()

	cleanup := context.WithoutCancel(ctx)
	if err != nil {
		if savepoint {
			if rbErr := ex.session.RollbackToSavepoint(cleanup, savepointName); rbErr != nil {
				ex.logger.Warn("rollback to savepoint failed", ex.logger.Args("error", rbErr))
			}
		}
		return err
	}
	if savepoint {
		if relErr := ex.session.ReleaseSavepoint(cleanup, savepointName); relErr != nil {
			ex.logger.Warn("release savepoint failed", ex.logger.Args("error", relErr))
		}
	}
	if ex.cmd.Kind == KindDDL {
		if c, ok := ex.session.(interface{ ClearSchemaCache() }); ok {
			c.ClearSchemaCache()
		}
	}
	return nil
}

func collectWarnings(st Statement, res *Result) {
	for _, w := range st.Warnings() {
		res.AddMessage(w)
	}
	st.ClearWarnings()
}

func runIgnored(_ context.Context, ex *execution, _ string, res *Result) error {
	res.AddMessage(ex.cmd.Verb + " ignored")
	return nil
}

// commandArguments returns the text after the verb of sql.
func commandArguments(sql string) string {
	for _, t := range script.Tokens(sql, script.LexerOptions{}) {
		if t.Significant() {
			return strings.TrimSpace(string([]rune(sql)[t.End:]))
		}
	}
	return ""
}

func requireVariables(ex *execution) error {
	if ex.vars == nil {
		return apperr.New(apperr.InvalidArgument, "no variable pool configured")
	}
	return nil
}

// runVarDef handles "WbVarDef name=value" and "WbVarDef -file=path".
func runVarDef(_ context.Context, ex *execution, sql string, res *Result) error {
	if err := requireVariables(ex); err != nil {
		return err
	}
	args := commandArguments(sql)
	if file, ok := strings.CutPrefix(args, "-file="); ok {
		n, err := ex.vars.ReadFromFile(unquote(strings.TrimSpace(file)), "")
		if err != nil {
			return err
		}
		res.AddMessage(fmt.Sprintf("%d variable(s) defined", n))
		return nil
	}
	name, value, ok := strings.Cut(args, "=")
	if !ok {
		return apperr.Newf(apperr.InvalidArgument, "expected name=value, got %q", args)
	}
	name, value = strings.TrimSpace(name), unquote(strings.TrimSpace(value))
	if err := ex.vars.SetParameterValue(name, value); err != nil {
		return err
	}
	res.AddMessage(fmt.Sprintf("Variable %s defined with value '%s'", name, value))
	return nil
}

// runVarDelete removes a comma or space separated list of variables; "*" removes all.
func runVarDelete(_ context.Context, ex *execution, sql string, res *Result) error {
	if err := requireVariables(ex); err != nil {
		return err
	}
	names := strings.FieldsFunc(commandArguments(sql), func(r rune) bool { return r == ',' || r == ' ' })
	if lo.Contains(names, "*") {
		names = ex.vars.Names()
	}
	removed := lo.Filter(names, func(n string, _ int) bool { return ex.vars.Remove(n) })
	res.AddMessage(fmt.Sprintf("%d variable(s) removed", len(removed)))
	return nil
}

func runVarList(_ context.Context, ex *execution, _ string, res *Result) error {
	if err := requireVariables(ex); err != nil {
		return err
	}
	values := ex.vars.Snapshot()
	names := ex.vars.Names()
	rows := lo.Map(names, func(n string, _ int) []any { return []any{n, values[n]} })
	return addMemResult(res, []Column{{Name: "Variable", TypeName: "text"}, {Name: "Value", TypeName: "text"}}, rows)
}

func runEcho(_ context.Context, _ *execution, sql string, res *Result) error {
	res.AddMessage(unquote(commandArguments(sql)))
	return nil
}

// runDescribe lists the columns of a table.
func runDescribe(ctx context.Context, ex *execution, sql string, res *Result) error {
	d, ok := ex.session.(TableDescriber)
	if !ok {
		return apperr.Newf(apperr.InvalidArgument, "%s is not supported by this connection", ex.cmd.Verb)
	}
	name := commandArguments(sql)
	if name == "" {
		return apperr.New(apperr.InvalidArgument, "table name required")
	}
	info, err := d.DescribeTable(ctx, name)
	if err != nil {
		return err
	}
	rows := lo.Map(info.Columns, func(c ColumnInfo, _ int) []any {
		return []any{
			c.Name,
			c.DataType,
			lo.Ternary(c.Nullable, "YES", "NO"),
			c.Default,
			lo.Ternary(lo.Contains(info.PrimaryKeyCols, c.Name), "YES", ""),
		}
	})
	cols := lo.Map([]string{"Column", "Type", "Nullable", "Default", "PK"}, func(n string, _ int) Column {
		return Column{Name: n, TypeName: "text"}
	})
	return addMemResult(res, cols, rows)
}

func addMemResult(res *Result, cols []Column, rows [][]any) error {
	ds := NewDataStore(cols)
	if err := ds.Fill(context.Background(), NewMemResultSet(cols, rows), 0, nil); err != nil {
		return err
	}
	res.AddDataStore(ds)
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
