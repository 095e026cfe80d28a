// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"strings"

	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/script"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

// SQLSTATE codes that PostExec annotates.
const (
	stateCheckViolation = "23514"
	stateInvalidText    = "22P02"
)

// InsertChecker is a StatementHook that compares INSERT ... VALUES statements with the
// table definition. It never rewrites or skips a statement: problems are logged before
// execution and allowed values are added to constraint failures afterwards.
//
// Table lookups run on the session connection, so checks are skipped while a
// transaction is open.
type InsertChecker struct {
	logger *pterm.Logger
}

// NewInsertChecker creates a checker that logs to logger.
func NewInsertChecker(logger *pterm.Logger) *InsertChecker {
	return &InsertChecker{logger: logging.OrDisabled(logger)}
}

// PreExec warns about explicit values for generated key columns and literals outside
// a column's allowed values.
func (c *InsertChecker) PreExec(ctx context.Context, session Session, sql string) (string, bool) {
	ins, info := c.describe(ctx, session, sql)
	if info == nil {
		return sql, true
	}

	for i, col := range ins.columns {
		key, ok := columnKey(info, col)
		if !ok {
			c.logger.Warn("insert names an unknown column", c.logger.Args("table", ins.table, "column", col))
			continue
		}
		if i >= len(ins.values) {
			break
		}
		v := ins.values[i]
		if info.AutoIncrement[key] && lo.Contains(info.PrimaryKeyCols, key) && !strings.EqualFold(v.text, "DEFAULT") {
			c.logger.Warn("explicit value for generated key column", c.logger.Args("table", ins.table, "column", key))
		}
		allowed := info.EnumValues[key]
		if len(allowed) == 0 || !v.literal {
			continue
		}
		if !lo.ContainsBy(allowed, func(a string) bool { return strings.EqualFold(a, v.text) }) {
			c.logger.Warn("value not allowed by check constraint", c.logger.Args(
				"table", ins.table, "column", key, "value", v.text, "allowed", strings.Join(allowed, ", ")))
		}
	}
	return sql, true
}

// PostExec adds the allowed values of the inserted columns to check constraint and
// invalid enum value failures.
func (c *InsertChecker) PostExec(ctx context.Context, session Session, sql string, res *Result) {
	if res.IsSuccess() || res.Error == nil {
		return
	}
	if code := res.Error.SQLState; code != stateCheckViolation && code != stateInvalidText {
		return
	}
	ins, info := c.describe(ctx, session, sql)
	if info == nil {
		return
	}
	for _, col := range ins.columns {
		key, ok := columnKey(info, col)
		if !ok {
			continue
		}
		if allowed := info.EnumValues[key]; len(allowed) > 0 {
			res.AddMessage(fmt.Sprintf("allowed values for %s.%s: %s", ins.table, key, strings.Join(allowed, ", ")))
		}
	}
}

func (c *InsertChecker) describe(ctx context.Context, session Session, sql string) (*insertStatement, *TableInfo) {
	if session == nil || session.InTransaction() {
		return nil, nil
	}
	d, ok := session.(TableDescriber)
	if !ok {
		return nil, nil
	}
	ins, ok := parseInsertStatement(sql)
	if !ok {
		return nil, nil
	}
	info, err := d.DescribeTable(ctx, ins.table)
	if err != nil {
		c.logger.Debug("cannot describe insert target", c.logger.Args("table", ins.table, "error", err))
		return nil, nil
	}
	return ins, info
}

// insertStatement is the target and first VALUES row of an INSERT.
type insertStatement struct {
	table   string
	columns []string
	values  []insertValue
}

// insertValue is one expression of a VALUES row. For a string literal text holds the
// unquoted value and literal is set.
type insertValue struct {
	text    string
	literal bool
}

// parseInsertStatement recognizes INSERT INTO name (columns) VALUES (values). Statements
// without a column list are not handled.
func parseInsertStatement(sql string) (*insertStatement, bool) {
	toks := lo.Filter(script.Tokens(sql, script.LexerOptions{}), func(t script.Token, _ int) bool {
		return t.Significant()
	})
	if len(toks) < 4 || !strings.EqualFold(toks[0].Text, "INSERT") || !strings.EqualFold(toks[1].Text, "INTO") {
		return nil, false
	}

	i := 2
	var name strings.Builder
	for ; i < len(toks) && toks[i].Text != "("; i++ {
		name.WriteString(unquoteIdent(toks[i].Text))
	}
	ins := &insertStatement{table: name.String()}

	cols, next := splitList(toks, i)
	if cols == nil || next >= len(toks) || !strings.EqualFold(toks[next].Text, "VALUES") {
		return nil, false
	}
	for _, c := range cols {
		if len(c) != 1 {
			return nil, false
		}
		ins.columns = append(ins.columns, unquoteIdent(c[0].Text))
	}

	vals, _ := splitList(toks, next+1)
	for _, v := range vals {
		if len(v) == 1 && v[0].Kind == script.TokenString && strings.HasPrefix(v[0].Text, "'") {
			ins.values = append(ins.values, insertValue{text: unquoteLiteral(v[0].Text), literal: true})
			continue
		}
		ins.values = append(ins.values, insertValue{text: strings.Join(lo.Map(v, func(t script.Token, _ int) string { return t.Text }), " ")})
	}
	return ins, ins.table != "" && len(ins.columns) > 0
}

// splitList splits the parenthesized, comma separated list starting at toks[start].
// It returns the items and the index after the closing parenthesis.
func splitList(toks []script.Token, start int) ([][]script.Token, int) {
	if start >= len(toks) || toks[start].Text != "(" {
		return nil, start
	}
	var items [][]script.Token
	var cur []script.Token
	depth := 0
	for i := start; i < len(toks); i++ {
		switch t := toks[i]; {
		case t.Text == "(":
			depth++
			if depth > 1 {
				cur = append(cur, t)
			}
		case t.Text == ")":
			depth--
			if depth == 0 {
				return append(items, cur), i + 1
			}
			cur = append(cur, t)
		case t.Text == "," && depth == 1:
			items = append(items, cur)
			cur = nil
		default:
			cur = append(cur, t)
		}
	}
	return nil, len(toks)
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return strings.ToLower(s)
}

func unquoteLiteral(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// columnKey finds the column of info named col.
func columnKey(info *TableInfo, col string) (string, bool) {
	for _, c := range info.Columns {
		if c.Name == col {
			return c.Name, true
		}
	}
	for _, c := range info.Columns {
		if strings.EqualFold(c.Name, col) {
			return c.Name, true
		}
	}
	return "", false
}
