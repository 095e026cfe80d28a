// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"sqlwb/cli/internal/script"
	"sqlwb/cli/internal/sqlexec"
	"sqlwb/cli/internal/xdg"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const (
	shellPrompt       = "sqlwb> "
	shellContinuation = "  ...> "
)

var shellOffline bool

// shellCmd starts an interactive session. Input is buffered until it holds a complete
// statement, then every statement in the buffer is executed.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive SQL shell",
	Long: `The shell command reads SQL interactively. Lines are collected until the input ends
with a delimiter, then the statements are executed. Ctrl-C cancels a running statement or
clears the input buffer; Ctrl-D or \q exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := env.newPool(nil, "", "")
		if err != nil {
			return err
		}
		parser, err := env.newParser()
		if err != nil {
			return err
		}

		var sess sqlexec.Session
		if !shellOffline {
			s, err := env.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close(context.WithoutCancel(ctx))
			pterm.Info.Printfln("Connected to %s %s", s.Product().Name, s.Product().Version)
			sess = s
		}

		prompter := &terminalPrompter{}
		mapper := sqlexec.NewCommandMapper()
		runner, closer := env.newRunner(sess, pool, runnerDeps{prompter: prompter, controller: prompter, mapper: mapper})
		defer closer.Close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:                 shellPrompt,
			HistoryFile:            shellHistoryPath(),
			DisableAutoSaveHistory: true,
			HistorySearchFold:      true,
			AutoComplete:           shellCompleter(mapper),
			InterruptPrompt:        "^C",
			EOFPrompt:              `\q`,
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		sh := &shell{
			runner: runner,
			mapper: mapper,
			parser: parser,
			out:    newPresenter(rl.Stdout(), env.settings),
		}
		return sh.loop(ctx, rl)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().BoolVar(&shellOffline, "offline", false, "Start without a database connection (workbench commands only)")
}

func shellHistoryPath() string {
	dir, err := xdg.StateDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "shell_history")
}

func shellCompleter(mapper *sqlexec.CommandMapper) readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem(`\q`),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	}
	for _, verb := range mapper.Verbs() {
		items = append(items, readline.PcItem(verb))
	}
	return readline.NewPrefixCompleter(items...)
}

// shell holds the state of one interactive session.
type shell struct {
	runner *sqlexec.StatementRunner
	mapper *sqlexec.CommandMapper
	parser *script.Parser
	out    *presenter
	buf    strings.Builder
	count  int
}

func (s *shell) loop(ctx context.Context, rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			s.buf.Reset()
			rl.SetPrompt(shellPrompt)
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		if s.buf.Len() == 0 {
			switch strings.TrimSpace(line) {
			case "":
				continue
			case `\q`, "exit", "quit":
				return nil
			}
		}
		if s.buf.Len() > 0 {
			s.buf.WriteString("\n")
		}
		s.buf.WriteString(line)

		text := s.buf.String()
		if !s.parser.IsComplete(text) && !s.isSingleLineCommand(text) {
			rl.SetPrompt(shellContinuation)
			continue
		}
		_ = rl.SaveHistory(text)
		s.buf.Reset()
		rl.SetPrompt(shellPrompt)
		s.execute(ctx, text)
	}
}

// execute runs every statement of text. Ctrl-C cancels the running statement.
func (s *shell) execute(ctx context.Context, text string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	stopCancel := context.AfterFunc(ctx, s.runner.Cancel)
	defer stopCancel()

	s.parser.SetScript(text)
	for i := 0; i < s.parser.Size(); i++ {
		sql := s.parser.CommandText(i)
		if strings.TrimSpace(sql) == "" {
			continue
		}
		res := s.runner.Run(ctx, sql)
		s.out.show(res, statementLocation{index: s.count, start: s.parser.StartPosForCommand(i), text: sql})
		s.count++
		if res.StopScript || ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		fmt.Fprintln(s.out.w, pterm.Warning.Sprint("cancelled"))
	}
}

// isSingleLineCommand reports whether a line is a workbench command that runs without
// a delimiter, such as WbVarList.
func (s *shell) isSingleLineCommand(text string) bool {
	if strings.Contains(strings.TrimSpace(text), "\n") {
		return false
	}
	c := s.mapper.GetCommandToUse(text)
	return c != nil && c.IsWorkbench()
}
