// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"strings"

	"sqlwb/cli/internal/connerr"
	"sqlwb/cli/internal/dsn"
	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/sqlexec"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var infoCheck bool

// infoCmd shows which connection would be used, with the password masked.
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the active database connection",
	Long: `The info command shows the connection string sqlwb would use and where it came from
(flag, environment, config file or keychain profile). The password is masked.
With --check it connects and reports the server product and version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, source, err := env.resolveDSN()
		if err != nil {
			pterm.Warning.Println("No database connection configured")
			pterm.Println("   Run: sqlwb connect")
			return nil
		}
		info, err := dsn.ParseInfo(conn)
		if err != nil {
			return err
		}

		var lines []string
		lines = append(lines,
			"Source:   "+string(source),
			"Format:   "+string(info.Format),
			"Host:     "+info.Endpoint(),
			"Database: "+info.Database,
			"User:     "+info.User,
		)
		if source == dsn.SourceKeychain {
			lines = append(lines, "Profile:  "+env.profileName())
		}
		if infoCheck {
			ctx, cancel := context.WithTimeout(cmd.Context(), connectTimeout)
			defer cancel()
			stop := startSpinner(staticText("connecting"))
			sess, err := sqlexec.Connect(ctx, conn, env.logger)
			stop()
			if err != nil {
				headline, _ := connerr.Hints(connerr.Classify(err), info.Host)
				lines = append(lines, "Server:   "+pterm.Red(headline))
				env.logger.Debug("connect failed", env.logger.Args("error", logging.Mask(err.Error())))
			} else {
				p := sess.Product()
				lines = append(lines, fmt.Sprintf("Server:   %s %s", p.Name, p.Version))
				_ = sess.Close(ctx)
			}
		}
		lines = append(lines, "", logging.Mask(conn))

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(strings.Join(lines, "\n"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoCheck, "check", false, "Connect and report the server version")
}
