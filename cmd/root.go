// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for sqlwb, a SQL script runner.
// It implements subcommands for running and splitting scripts, an interactive shell
// and connection profile management using the Cobra CLI framework.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"sqlwb/cli/internal/config"
	"sqlwb/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	showVersion  bool
	flagDSN      string
	flagProfile  string
	flagLogLevel string
	flagConfig   string
	flagSettings []string
)

// appEnv is the state shared by all subcommands after flags and config are loaded.
type appEnv struct {
	cfg      config.Config
	cfgPath  string
	settings *config.Settings
	logger   *pterm.Logger
}

var env *appEnv

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sqlwb",
	Short: "Run SQL scripts against PostgreSQL-compatible databases",
	Long: `sqlwb splits SQL scripts into statements and runs them one at a time against a
PostgreSQL-compatible database (PostgreSQL, CockroachDB, Redshift, Greenplum, YugabyteDB).
It supports alternate delimiters, script variables and an interactive shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		env = e
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("sqlwb %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDSN, "dsn", "", "Database connection string (URL or key=value form)")
	pf.StringVarP(&flagProfile, "profile", "p", "", "Keychain connection profile to use")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.StringVar(&flagConfig, "config", "", "Path to config.json (defaults to the XDG config dir)")
	pf.StringArrayVar(&flagSettings, "set", nil, "Override a setting, e.g. --set runner.max_rows=100 (repeatable)")
}

// loadEnv reads the config file and applies flag overrides.
func loadEnv() (*appEnv, error) {
	path := flagConfig
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	e := &appEnv{
		cfg:      cfg,
		cfgPath:  path,
		settings: cfg.NewSettings(),
		logger:   logging.New(logging.ParseLevel(level), os.Stderr),
	}
	for _, kv := range flagSettings {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		e.settings.Set(strings.TrimSpace(key), value)
	}
	return e, nil
}
