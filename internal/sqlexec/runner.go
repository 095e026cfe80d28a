// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"sqlwb/cli/internal/config"
	apperr "sqlwb/cli/internal/errors"
	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/script"
	"sqlwb/cli/internal/variables"

	"github.com/pterm/pterm"
)

// Settings is the read-only configuration the runner consults. *config.Settings
// implements it.
type Settings interface {
	String(key, def string) string
	Bool(key string, def bool) bool
	Int(key string, def int) int
	StringSlice(key string) []string
}

// Prompter asks the user for variable values. It returns false when the user cancels.
type Prompter interface {
	PromptForVariables(ctx context.Context, names []string, pool *variables.Pool) bool
}

// ExecutionController confirms data-modifying statements before they run.
type ExecutionController interface {
	ConfirmExecution(ctx context.Context, sql, reason string) bool
}

// StatementHook lets a dialect rewrite statements and observe results. PreExec returns
// false to skip the statement.
type StatementHook interface {
	PreExec(ctx context.Context, session Session, sql string) (string, bool)
	PostExec(ctx context.Context, session Session, sql string, res *Result)
}

// ResultConsumer takes ownership of result sets instead of having them materialized.
// The consumer must close every result set it receives.
type ResultConsumer interface {
	Consume(ctx context.Context, rs ResultSet) error
}

// End-of-read-only-transaction policies for runner.end_readonly_tx.
const (
	EndTxNever    = "never"
	EndTxCommit   = "commit"
	EndTxRollback = "rollback"
)

// RunnerOptions wires the collaborators of a StatementRunner. Only Mapper is required.
type RunnerOptions struct {
	Session    Session
	Mapper     *CommandMapper
	Variables  *variables.Pool
	Settings   Settings
	Logger     *pterm.Logger
	Prompter   Prompter
	Controller ExecutionController
	Hook       StatementHook
	Consumer   ResultConsumer
	History    *History
	Progress   ProgressFunc
}

// StatementRunner executes one statement at a time and reports each outcome as a Result.
// Run is not safe for concurrent use; Cancel may be called from any goroutine.
type StatementRunner struct {
	opts   RunnerOptions
	logger *pterm.Logger

	// pendingUpdates is set once a data-modifying statement ran in the open transaction.
	pendingUpdates bool

	mu      sync.Mutex
	current *execution
	stop    context.CancelFunc
}

// NewStatementRunner creates a runner. A nil mapper gets the default verb table.
func NewStatementRunner(opts RunnerOptions) *StatementRunner {
	if opts.Mapper == nil {
		opts.Mapper = NewCommandMapper()
	}
	if opts.Settings == nil {
		opts.Settings = config.NewSettings(nil)
	}
	r := &StatementRunner{opts: opts, logger: logging.OrDisabled(opts.Logger)}
	if opts.Session != nil {
		opts.Mapper.SetConnection(opts.Session.ProductID(), opts.Settings)
	}
	return r
}

// SetSession switches the runner to s and rebuilds the mapper overlay.
func (r *StatementRunner) SetSession(s Session) {
	r.opts.Session = s
	r.pendingUpdates = false
	if s == nil {
		r.opts.Mapper.SetConnection("", r.opts.Settings)
		return
	}
	r.opts.Mapper.SetConnection(s.ProductID(), r.opts.Settings)
}

// Session returns the current session, or nil.
func (r *StatementRunner) Session() Session { return r.opts.Session }

// Cancel aborts the running statement. Rows fetched so far are kept.
func (r *StatementRunner) Cancel() {
	r.mu.Lock()
	ex, stop := r.current, r.stop
	r.mu.Unlock()
	if ex != nil {
		ex.cancel()
	}
	if stop != nil {
		stop()
	}
}

// Run executes sql and never returns a nil Result. Execution failures are reported in
// the Result, not as errors.
func (r *StatementRunner) Run(ctx context.Context, sql string) *Result {
	start := time.Now()
	res := NewResult(sql)
	defer func() { res.Duration = time.Since(start) }()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if pool := r.opts.Variables; pool != nil {
		if names := pool.VariablesNeedingPrompt(sql); len(names) > 0 && r.opts.Prompter != nil {
			if !r.opts.Prompter.PromptForVariables(ctx, names, pool) {
				res.Cancelled = true
				res.StopScript = true
				res.SetWarning("variable input cancelled")
				return res
			}
		}
		replaced, err := pool.ReplaceAllParameters(sql)
		if err != nil {
			res.SetFailure(NewErrorDescriptor(err.Error()))
			return res
		}
		sql = replaced
		res.SQL = sql
	}

	cmd := r.opts.Mapper.GetCommandToUse(sql)
	if cmd == nil {
		return res
	}
	session := r.opts.Session
	if cmd.NeedsConnection && session == nil {
		res.SetFailure(NewErrorDescriptor(apperr.New(apperr.ConnectionRequired, "not connected to a database").Error()))
		return res
	}

	if cmd.Updating && r.opts.Settings.Bool(config.KeyReadOnly, false) {
		res.SetWarning(cmd.Verb + " not executed, the session is read-only")
		return res
	}
	if reason := r.confirmReason(cmd, sql); reason != "" && r.opts.Controller != nil {
		if !r.opts.Controller.ConfirmExecution(ctx, sql, reason) {
			res.Cancelled = true
			res.SetWarning("statement not executed")
			return res
		}
	}

	if hook := r.opts.Hook; hook != nil {
		rewritten, ok := hook.PreExec(ctx, session, sql)
		if !ok {
			return res
		}
		sql = rewritten
	}

	ex := &execution{
		cmd:      cmd,
		session:  session,
		settings: r.opts.Settings,
		logger:   r.logger,
		vars:     r.opts.Variables,
		consumer: r.opts.Consumer,
		progress: r.opts.Progress,
	}
	r.mu.Lock()
	r.current, r.stop = ex, stop
	r.mu.Unlock()
	defer func() {
		ex.closeStatement()
		r.mu.Lock()
		r.current, r.stop = nil, nil
		r.mu.Unlock()
	}()

	if err := cmd.run(ctx, ex, sql, res); err != nil {
		r.fail(ctx, sql, err, res)
	} else {
		r.track(cmd)
	}

	if hook := r.opts.Hook; hook != nil {
		hook.PostExec(ctx, session, sql, res)
	}
	res.Duration = time.Since(start)
	r.logStatement(sql, cmd, res)
	if res.IsSuccess() && !res.Cancelled {
		r.endReadOnlyTransaction(context.WithoutCancel(ctx), cmd)
	}
	return res
}

func (r *StatementRunner) fail(ctx context.Context, sql string, err error, res *Result) {
	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
		res.Cancelled = true
		res.SetWarning("statement cancelled")
		return
	}
	d := DescribeError(sql, err)
	res.SetFailure(d)
	r.logger.Debug("statement failed", r.logger.Args("sqlstate", d.SQLState, "error", d.Message))
}

// confirmReason returns why sql needs confirmation, or "" when it does not.
func (r *StatementRunner) confirmReason(cmd *Command, sql string) string {
	if !cmd.Updating {
		return ""
	}
	if r.opts.Settings.Bool(config.KeyConfirmUpdates, false) {
		return "data modification"
	}
	if r.opts.Settings.Bool(config.KeyConfirmUnrestrictedDML, false) && isUnrestrictedDML(sql) {
		return "no WHERE clause"
	}
	return ""
}

// isUnrestrictedDML reports an UPDATE or DELETE without a top-level WHERE clause.
func isUnrestrictedDML(sql string) bool {
	tokens := script.Tokens(sql, script.LexerOptions{Dialect: script.ParserPostgres})
	verb := ""
	depth := 0
	for _, t := range tokens {
		if !t.Significant() {
			continue
		}
		if verb == "" {
			verb = strings.ToUpper(t.Text)
			if verb != "UPDATE" && verb != "DELETE" {
				return false
			}
			continue
		}
		switch {
		case t.Text == "(":
			depth++
		case t.Text == ")":
			depth--
		case depth == 0 && t.Kind == script.TokenWord && strings.EqualFold(t.Text, "WHERE"):
			return false
		}
	}
	return verb != ""
}

// track remembers whether the open transaction holds changes.
func (r *StatementRunner) track(cmd *Command) {
	switch {
	case cmd.Kind == KindTransaction && isTransactionEnd(cmd.Verb):
		r.pendingUpdates = false
	case cmd.Updating:
		r.pendingUpdates = true
	}
}

func isTransactionEnd(verb string) bool {
	switch verb {
	case "COMMIT", "END", "ROLLBACK", "ABORT":
		return true
	}
	return false
}

// endReadOnlyTransaction closes a transaction that only ran queries.
func (r *StatementRunner) endReadOnlyTransaction(ctx context.Context, cmd *Command) {
	s := r.opts.Session
	if s == nil || cmd.Kind != KindQuery || s.AutoCommit() || r.pendingUpdates || !s.InTransaction() {
		return
	}
	var err error
	switch policy := r.opts.Settings.String(config.KeyEndReadOnlyTx, EndTxNever); policy {
	case EndTxCommit:
		err = s.Commit(ctx)
	case EndTxRollback:
		err = s.Rollback(ctx)
	default:
		return
	}
	if err != nil {
		r.logger.Warn("cannot end read-only transaction", r.logger.Args("error", err))
	}
}

func (r *StatementRunner) logStatement(sql string, cmd *Command, res *Result) {
	if !r.opts.Settings.Bool(config.KeyLogStatements, false) {
		return
	}
	r.logger.Info("statement executed", r.logger.Args(
		"verb", cmd.Verb,
		"status", res.Status.String(),
		"duration", res.Duration.Round(time.Millisecond).String(),
	))
	if r.opts.History != nil {
		if err := r.opts.History.Record(sql, res); err != nil {
			r.logger.Warn("cannot write statement history", r.logger.Args("error", err))
		}
	}
}
