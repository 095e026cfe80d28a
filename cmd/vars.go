// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"sqlwb/cli/internal/script"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	varsDefs     []string
	varsFile     string
	varsEncoding string
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Inspect script variables",
	Long: `Variables are referenced in scripts as ${name}$ (prefix and suffix are configurable
with variables.prefix and variables.suffix). ${?name}$ always prompts for a value and
${&name}$ prompts only while the variable is empty.`,
}

var varsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List variables defined with -D and --vars-file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := env.newPool(varsDefs, varsFile, varsEncoding)
		if err != nil {
			return err
		}
		names := pool.Names()
		if len(names) == 0 {
			pterm.Info.Println("No variables defined")
			return nil
		}
		data := pterm.TableData{{"Variable", "Value"}}
		for _, name := range names {
			v, _ := pool.ParameterValue(name)
			data = append(data, []string{name, v})
		}
		return renderTable(cmd, data)
	},
}

var varsCheckCmd = &cobra.Command{
	Use:   "check <script.sql>",
	Short: "Show the variables a script references and whether they are defined",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := env.newPool(varsDefs, varsFile, varsEncoding)
		if err != nil {
			return err
		}
		text, err := script.ReadFile(args[0], varsEncoding)
		if err != nil {
			return err
		}
		refs := pool.References(text)
		if len(refs) == 0 {
			pterm.Info.Println("The script references no variables")
			return nil
		}
		prompted := pool.VariablesNeedingPrompt(text)

		data := pterm.TableData{{"Variable", "Defined", "Prompt", "Value"}}
		undefined := 0
		for _, name := range refs {
			v, ok := pool.ParameterValue(name)
			defined := ok && v != ""
			if !defined && !lo.Contains(prompted, name) {
				undefined++
			}
			data = append(data, []string{name, yesNo(defined), yesNo(lo.Contains(prompted, name)), v})
		}
		if err := renderTable(cmd, data); err != nil {
			return err
		}
		if undefined > 0 {
			pterm.Warning.Printfln("%d variable(s) are neither defined nor prompted for and stay unreplaced", undefined)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(varsCmd)
	varsCmd.AddCommand(varsListCmd, varsCheckCmd)
	pf := varsCmd.PersistentFlags()
	pf.StringArrayVarP(&varsDefs, "var", "D", nil, "Define a variable, e.g. -D schema=public (repeatable)")
	pf.StringVar(&varsFile, "vars-file", "", "Read variable definitions (name=value lines) from a file")
	pf.StringVar(&varsEncoding, "encoding", "", "Encoding of the files read (default UTF-8, BOM aware)")
}

func yesNo(b bool) string { return lo.Ternary(b, "yes", "no") }

func renderTable(cmd *cobra.Command, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
