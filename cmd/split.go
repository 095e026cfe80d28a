// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"sqlwb/cli/internal/script"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	splitEncoding string
	splitJSON     bool
	splitFull     bool
)

const previewWidth = 60

// splitCmd prints the statements of a script without connecting to a database.
var splitCmd = &cobra.Command{
	Use:   "split <script.sql>",
	Short: "Show how a script is split into statements",
	Long: `The split command parses a script with the configured delimiters and prints every
statement with its offsets. No database connection is made.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := env.newParser()
		if err != nil {
			return err
		}
		if args[0] == stdinScript {
			text, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			parser.SetScript(string(text))
		} else if err := parser.SetFile(args[0], splitEncoding); err != nil {
			return err
		}

		stmts, err := collectStatements(parser)
		if err != nil {
			return err
		}
		if splitJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stmts)
		}

		data := pterm.TableData{{"#", "Start", "End", "Delimiter", "Statement"}}
		for _, s := range stmts {
			text := s.Text
			if !splitFull {
				text = preview(text)
			}
			data = append(data, []string{strconv.Itoa(s.Index + 1), strconv.Itoa(s.Start), strconv.Itoa(s.End), s.Delimiter, text})
		}
		if err := renderTable(cmd, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d statement(s), delimiter %q\n", len(stmts), parser.Delimiter().String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(splitCmd)
	splitCmd.Flags().StringVar(&splitEncoding, "encoding", "", "Script file encoding (default UTF-8, BOM aware)")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "Print statements as JSON")
	splitCmd.Flags().BoolVar(&splitFull, "full", false, "Print complete statement text")
}

// splitStatement is the printable form of a parsed statement.
type splitStatement struct {
	Index     int    `json:"index"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Delimiter string `json:"delimiter"`
	Text      string `json:"text"`
}

func collectStatements(p *script.Parser) ([]splitStatement, error) {
	if err := p.StartIterator(); err != nil {
		return nil, err
	}
	defer p.Done()

	var out []splitStatement
	for p.HasNext() {
		c := p.Next()
		if c == nil {
			break
		}
		out = append(out, splitStatement{
			Index:     c.Index(),
			Start:     c.StartOffset(),
			End:       c.EndOffset(),
			Delimiter: c.Delimiter().String(),
			Text:      c.Text(),
		})
	}
	return out, nil
}

// preview returns the first line of text, shortened to previewWidth runes.
func preview(text string) string {
	line, _, more := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) > previewWidth {
		line = string([]rune(line)[:previewWidth-3]) + "..."
		more = false
	}
	if more {
		line += " ..."
	}
	return line
}
