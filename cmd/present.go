// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"sqlwb/cli/internal/config"
	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/sqlexec"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

const nullText = "NULL"

// presenter prints statement results. It is shared by the goroutines of a parallel run.
type presenter struct {
	mu        sync.Mutex
	w         io.Writer
	verbosity int
	// quiet suppresses result tables and informational messages.
	quiet bool
}

func newPresenter(w io.Writer, s *config.Settings) *presenter {
	return &presenter{w: w, verbosity: s.Int(config.KeyErrorVerbosity, 1)}
}

// statementLocation describes where a statement sits in its script.
type statementLocation struct {
	file  string
	index int
	start int
	// text is the statement as written in the script, before variable substitution.
	text string
}

// show prints one result.
func (p *presenter) show(res *sqlexec.Result, loc statementLocation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ds := range res.DataStores {
		if !p.quiet {
			p.renderTable(ds)
		}
	}

	if !res.IsSuccess() {
		where := fmt.Sprintf("statement %d", loc.index+1)
		if loc.file != "" {
			where = loc.file + ", " + where
		}
		where += errorPosition(res.Error, loc, res.SQL)
		fmt.Fprintln(p.w, pterm.Error.Sprint(where))
		fmt.Fprint(p.w, logging.FormatStatementError(res.SQL, res.ErrorMessage(), lo.FromPtr(res.Error).SQLState, p.verbosity))
		return
	}

	if p.quiet && !res.Warning {
		return
	}
	for _, msg := range res.Messages {
		if res.Warning {
			fmt.Fprintln(p.w, pterm.Warning.Sprint(msg))
			continue
		}
		fmt.Fprintln(p.w, pterm.NewStyle(pterm.FgGray).Sprint(msg))
	}
}

// errorPosition renders the error location. Line and column count within the executed
// statement. The script offset is added only when the executed text is the script text,
// since substituted variables shift every position after them.
func errorPosition(d *sqlexec.ErrorDescriptor, loc statementLocation, executed string) string {
	if d == nil || d.MessageIncludesPosition || d.Offset < 0 || d.Line < 0 {
		return ""
	}
	pos := fmt.Sprintf(" (statement line %d, column %d", d.Line+1, d.Column+1)
	if loc.text != "" && loc.text == executed {
		pos += fmt.Sprintf(", script offset %d", d.ScriptPosition(loc.start))
	}
	return pos + ")"
}

func (p *presenter) renderTable(ds *sqlexec.DataStore) {
	data := pterm.TableData{ds.ColumnNames()}
	for _, row := range ds.Rows {
		data = append(data, lo.Map(row, func(v any, _ int) string { return cellText(v) }))
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		fmt.Fprintln(p.w, pterm.Error.Sprint(err))
		return
	}
	fmt.Fprintln(p.w, out)
	if ds.Truncated {
		fmt.Fprintln(p.w, pterm.Warning.Sprintf("result truncated at %d rows", ds.RowCount()))
	}
}

func cellText(v any) string {
	if v == nil {
		return nullText
	}
	s := fmt.Sprint(sqlexec.DisplayValue(v))
	return strings.ReplaceAll(s, "\n", `\n`)
}

// scriptSummary aggregates the results of one script.
type scriptSummary struct {
	file       string
	statements int
	errors     int
	warnings   int
	updated    int64
	retrieved  int64
	elapsed    time.Duration
	stopped    bool
}

func (s *scriptSummary) add(res *sqlexec.Result) {
	s.statements++
	s.updated += res.TotalUpdateCount
	s.retrieved += res.RowsProcessed
	switch {
	case !res.IsSuccess():
		s.errors++
	case res.Warning:
		s.warnings++
	}
}

// render prints a summary box in the same style as other completion reports.
func (s *scriptSummary) render(w io.Writer) {
	details := fmt.Sprintf("Statements: %d\nErrors:     %d\nWarnings:   %d\nRows affected:  %d\nRows retrieved: %d\nDuration:   %s",
		s.statements, s.errors, s.warnings, s.updated, s.retrieved, s.elapsed.Round(time.Millisecond))
	title := pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("Script completed")
	switch {
	case s.stopped:
		title = pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Script stopped")
	case s.errors > 0:
		title = pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Script completed with errors")
	}
	if s.file != "" {
		title += " " + pterm.NewStyle(pterm.FgCyan).Sprint(s.file)
	}
	fmt.Fprintln(w, pterm.DefaultBox.WithTitle(title).WithPadding(1).Sprint(details))
}
