// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sqlwb/cli/internal/config"
	"sqlwb/cli/internal/connerr"
	"sqlwb/cli/internal/dsn"
	"sqlwb/cli/internal/keychain"
	"sqlwb/cli/internal/script"
	"sqlwb/cli/internal/sqlexec"
	"sqlwb/cli/internal/variables"

	"github.com/pterm/pterm"
)

const connectTimeout = 10 * time.Second

// profileName returns the profile selected by flag or config.
func (e *appEnv) profileName() string {
	if flagProfile != "" {
		return flagProfile
	}
	if e.cfg.DB.Profile != "" {
		return e.cfg.DB.Profile
	}
	return keychain.DefaultProfile
}

// resolveDSN finds the connection string using flag, environment, config and keychain
// in that order.
func (e *appEnv) resolveDSN() (string, dsn.Source, error) {
	return dsn.Resolve(dsn.ResolveOptions{
		Flag:   flagDSN,
		Config: e.cfg.DB.DSN,
		Profile: func() (string, error) {
			km, err := keychain.GetManager()
			if err != nil {
				return "", err
			}
			return km.LoadProfile(e.profileName())
		},
	})
}

// openSession resolves the DSN and connects.
func (e *appEnv) openSession(ctx context.Context) (*sqlexec.PgSession, error) {
	conn, source, err := e.resolveDSN()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("resolved connection", e.logger.Args("source", source))

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	sess, err := sqlexec.Connect(ctx, conn, e.logger)
	if err != nil {
		return nil, connerr.Present(err, hostOf(conn))
	}
	return sess, nil
}

// hostOf returns the host of a connection string for messages, or "".
func hostOf(conn string) string {
	info, err := dsn.ParseInfo(conn)
	if err != nil {
		return ""
	}
	return info.Host
}

// parserConfig builds the parser options from settings.
func parserConfig(s *config.Settings, logger *pterm.Logger) (script.Config, script.Delimiter, script.Delimiter, error) {
	typ, err := script.ParseParserType(s.String(config.KeyParserType, ""))
	if err != nil {
		return script.Config{}, script.Delimiter{}, script.Delimiter{}, err
	}
	def := script.ParseDelimiter(s.String(config.KeyDelimiter, ""))
	alt := script.Delimiter{}
	if v := s.String(config.KeyAlternateDelimiter, ""); strings.TrimSpace(v) != "" {
		alt = script.ParseDelimiter(v)
	}
	cfg := script.Config{
		Type:                    typ,
		CheckEscapedQuotes:      s.Bool(config.KeyCheckEscapedQuotes, false),
		EmptyLineIsDelimiter:    s.Bool(config.KeyEmptyLineDelimiter, false),
		CheckSingleLineCommands: s.Bool(config.KeySingleLineCommands, false),
		SupportOracleInclude:    s.Bool(config.KeyOracleInclude, false),
		AlternateLineComment:    s.String(config.KeyAlternateLineComment, ""),
		InMemoryThreshold:       int64(s.Int(config.KeyInMemoryThreshold, 0)),
		UseOracleTester:         alt.Equals(script.OracleSlash),
		Logger:                  logger,
	}
	return cfg, def, alt, nil
}

// newParser returns a parser configured from settings.
func (e *appEnv) newParser() (*script.Parser, error) {
	cfg, def, alt, err := parserConfig(e.settings, e.logger)
	if err != nil {
		return nil, err
	}
	p := script.NewParser(cfg)
	p.SetDelimiters(def, alt)
	return p, nil
}

// newPool returns a variable pool configured from settings, seeded with name=value
// definitions and an optional definitions file.
func (e *appEnv) newPool(defs []string, file, encoding string) (*variables.Pool, error) {
	pool, err := variables.NewPool(variables.Options{
		Prefix:        e.settings.String(config.KeyVariablePrefix, ""),
		Suffix:        e.settings.String(config.KeyVariableSuffix, ""),
		MaxIterations: e.settings.Int(config.KeyVariableMaxIterations, 0),
		Logger:        e.logger,
	})
	if err != nil {
		return nil, err
	}
	if file != "" {
		n, err := pool.ReadFromFile(file, encoding)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("variables loaded", e.logger.Args("file", file, "count", n))
	}
	for _, d := range defs {
		name, value, ok := strings.Cut(d, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable definition %q, expected name=value", d)
		}
		if err := pool.SetParameterValue(strings.TrimSpace(name), value); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// runnerDeps are the optional collaborators of a statement runner.
type runnerDeps struct {
	mapper     *sqlexec.CommandMapper
	prompter   sqlexec.Prompter
	controller sqlexec.ExecutionController
	progress   sqlexec.ProgressFunc
}

// newRunner builds a statement runner. The returned closer releases the history file.
func (e *appEnv) newRunner(sess sqlexec.Session, pool *variables.Pool, deps runnerDeps) (*sqlexec.StatementRunner, io.Closer) {
	opts := sqlexec.RunnerOptions{
		Session:    sess,
		Mapper:     deps.mapper,
		Variables:  pool,
		Settings:   e.settings,
		Logger:     e.logger,
		Prompter:   deps.prompter,
		Controller: deps.controller,
		Progress:   deps.progress,
	}
	if sess != nil && e.settings.Bool(config.KeyCheckInserts, false) {
		opts.Hook = sqlexec.NewInsertChecker(e.logger)
	}
	var closer io.Closer = nopCloser{}
	if e.settings.Bool(config.KeyLogStatements, false) {
		h, f, err := sqlexec.OpenHistory()
		if err != nil {
			e.logger.Warn("statement history disabled", e.logger.Args("error", err))
		} else {
			opts.History, closer = h, f
		}
	}
	return sqlexec.NewStatementRunner(opts), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
