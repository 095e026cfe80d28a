// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/sqlexec"
	"sqlwb/cli/internal/terminal"
	"sqlwb/cli/internal/variables"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	runStopOnError bool
	runParallel    bool
	runEncoding    string
	runVars        []string
	runVarsFile    string
	runAutoCommit  bool
	runQuiet       bool
	runYes         bool
)

// stdinScript is the file argument that reads the script from standard input.
const stdinScript = "-"

// runCmd executes one or more SQL scripts statement by statement.
var runCmd = &cobra.Command{
	Use:   "run <script.sql>...",
	Short: "Run SQL scripts",
	Long: `The run command splits each script into statements and executes them one at a time.
Results, update counts and errors are reported per statement, followed by a summary.

With --parallel every script runs on its own connection while all scripts share one set
of variables. Use "-" to read a script from standard input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		pool, err := env.newPool(runVars, runVarsFile, runEncoding)
		if err != nil {
			return err
		}
		out := newPresenter(cmd.OutOrStdout(), env.settings)
		out.quiet = runQuiet

		var deps runnerDeps
		if terminal.Interactive() && !runYes {
			p := &terminalPrompter{}
			deps.prompter, deps.controller = p, p
		}

		if runParallel && len(args) > 1 {
			return runScriptsParallel(ctx, args, pool, deps, out)
		}
		return runScriptsSequential(ctx, args, pool, deps, out)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.BoolVar(&runStopOnError, "stop-on-error", true, "Stop at the first failing statement")
	f.BoolVar(&runParallel, "parallel", false, "Run scripts concurrently, one connection per script")
	f.StringVar(&runEncoding, "encoding", "", "Script file encoding (default UTF-8, BOM aware)")
	f.StringArrayVarP(&runVars, "var", "D", nil, "Define a variable, e.g. -D schema=public (repeatable)")
	f.StringVar(&runVarsFile, "vars-file", "", "Read variable definitions (name=value lines) from a file")
	f.BoolVar(&runAutoCommit, "autocommit", true, "Commit every statement; when false all scripts run in one transaction")
	f.BoolVarP(&runQuiet, "quiet", "q", false, "Only print errors, warnings and the summary")
	f.BoolVarP(&runYes, "yes", "y", false, "Do not prompt for confirmations or variable values")
}

func runScriptsSequential(ctx context.Context, files []string, pool *variables.Pool, deps runnerDeps, out *presenter) error {
	sess, err := env.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(context.WithoutCancel(ctx))
	sess.SetAutoCommit(runAutoCommit)

	var rows atomic.Int64
	spin := terminal.Interactive() && deps.prompter == nil && !runQuiet
	if spin {
		deps.progress = func(n int) { rows.Store(int64(n)) }
	}
	runner, closer := env.newRunner(sess, pool, deps)
	defer closer.Close()

	failed := 0
	for _, file := range files {
		sum, err := runScript(ctx, runner, file, out, func(index int) func() {
			if !spin {
				return func() {}
			}
			rows.Store(0)
			return startSpinner(func() string {
				return fmt.Sprintf("statement %d, %d rows", index+1, rows.Load())
			})
		})
		sum.render(out.w)
		if err != nil {
			return err
		}
		if sum.errors > 0 {
			failed++
		}
		if sum.stopped {
			break
		}
	}
	finishTransaction(ctx, sess, failed == 0)
	if failed > 0 {
		return fmt.Errorf("%d script(s) failed", failed)
	}
	return nil
}

func runScriptsParallel(ctx context.Context, files []string, pool *variables.Pool, deps runnerDeps, out *presenter) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, env.cfg.Concurrency))
	summaries := make([]*scriptSummary, len(files))

	for i, file := range files {
		g.Go(func() error {
			sess, err := env.openSession(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			defer sess.Close(context.WithoutCancel(gctx))
			sess.SetAutoCommit(runAutoCommit)

			runner, closer := env.newRunner(sess, pool, deps)
			defer closer.Close()

			sum, err := runScript(gctx, runner, file, out, nil)
			summaries[i] = sum
			finishTransaction(gctx, sess, err == nil && sum.errors == 0)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			if sum.errors > 0 && runStopOnError {
				return fmt.Errorf("%s: %d statement(s) failed", file, sum.errors)
			}
			return nil
		})
	}
	err := g.Wait()

	failed := 0
	for _, sum := range summaries {
		if sum == nil {
			continue
		}
		sum.render(out.w)
		if sum.errors > 0 {
			failed++
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d script(s) failed", failed)
	}
	return nil
}

// runScript executes every statement of file. The returned summary is never nil.
// busy, when set, is called before each statement and returns a function that ends the
// busy indicator.
func runScript(ctx context.Context, runner *sqlexec.StatementRunner, file string, out *presenter, busy func(index int) func()) (*scriptSummary, error) {
	sum := &scriptSummary{file: file}
	start := time.Now()
	defer func() { sum.elapsed = time.Since(start) }()

	parser, err := env.newParser()
	if err != nil {
		return sum, err
	}
	if file == stdinScript {
		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			return sum, err
		}
		parser.SetScript(string(text))
	} else if err := parser.SetFile(file, runEncoding); err != nil {
		return sum, err
	}
	if err := parser.StartIterator(); err != nil {
		return sum, err
	}
	defer parser.Done()

	stopCancel := context.AfterFunc(ctx, runner.Cancel)
	defer stopCancel()

	for parser.HasNext() {
		if ctx.Err() != nil {
			sum.stopped = true
			break
		}
		c := parser.Next()
		if c == nil {
			break
		}
		if strings.TrimSpace(c.Text()) == "" {
			continue
		}

		done := func() {}
		if busy != nil {
			done = busy(c.Index())
		}
		res := runner.Run(ctx, c.Text())
		done()

		sum.add(res)
		out.show(res, statementLocation{file: file, index: c.Index(), start: c.StartOffset(), text: c.Text()})
		if res.StopScript || (res.Cancelled && ctx.Err() != nil) {
			sum.stopped = true
			break
		}
		if !res.IsSuccess() && runStopOnError {
			sum.stopped = true
			break
		}
	}
	return sum, nil
}

// finishTransaction ends a transaction left open by a run without autocommit.
func finishTransaction(ctx context.Context, sess sqlexec.Session, commit bool) {
	if sess.AutoCommit() || !sess.InTransaction() {
		return
	}
	commit = commit && ctx.Err() == nil
	ctx = context.WithoutCancel(ctx)
	if commit {
		if err := sess.Commit(ctx); err != nil {
			pterm.Error.Println(logging.PresentError("commit failed", err))
		}
		return
	}
	if err := sess.Rollback(ctx); err != nil {
		pterm.Error.Println(logging.PresentError("rollback failed", err))
		return
	}
	pterm.Warning.Println("transaction rolled back")
}
