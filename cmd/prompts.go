// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"sync"

	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/variables"

	"github.com/pterm/pterm"
)

// terminalPrompter asks for variable values and confirmations on the terminal.
// Prompts are serialized so parallel scripts never interleave their questions.
type terminalPrompter struct {
	mu sync.Mutex
}

// PromptForVariables asks for each missing value. An interrupted prompt cancels.
func (p *terminalPrompter) PromptForVariables(ctx context.Context, names []string, pool *variables.Pool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range names {
		if ctx.Err() != nil {
			return false
		}
		current, _ := pool.ParameterValue(name)
		value, err := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Value for " + name).
			WithDefaultValue(current).
			Show()
		if err != nil {
			return false
		}
		if err := pool.SetParameterValue(name, value); err != nil {
			pterm.Error.Println(err)
			return false
		}
	}
	return true
}

// ConfirmExecution shows the statement and asks whether to run it.
func (p *terminalPrompter) ConfirmExecution(ctx context.Context, sql, reason string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Confirm " + reason))
	pterm.Println(pterm.NewStyle(pterm.FgLightBlue).Sprint(logging.Mask(sql)))
	ok, err := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Execute this statement?").
		WithDefaultValue(false).
		Show()
	return err == nil && ok
}
