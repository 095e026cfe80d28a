// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Well known setting keys.
const (
	KeyParserType           = "parser.type"
	KeyDelimiter            = "parser.delimiter"
	KeyAlternateDelimiter   = "parser.alternate_delimiter"
	KeyCheckEscapedQuotes   = "parser.check_escaped_quotes"
	KeyEmptyLineDelimiter   = "parser.empty_line_delimiter"
	KeySingleLineCommands   = "parser.single_line_commands"
	KeyOracleInclude        = "parser.oracle_include"
	KeyAlternateLineComment = "parser.alternate_line_comment"
	KeyInMemoryThreshold    = "parser.in_memory_threshold"

	KeyVariablePrefix        = "variables.prefix"
	KeyVariableSuffix        = "variables.suffix"
	KeyVariableMaxIterations = "variables.max_iterations"

	KeyMaxRows                = "runner.max_rows"
	KeyQueryTimeout           = "runner.query_timeout"
	KeyReadOnly               = "runner.read_only"
	KeyConfirmUpdates         = "runner.confirm_updates"
	KeyConfirmUnrestrictedDML = "runner.confirm_unrestricted_dml"
	KeyLogStatements          = "runner.log_statements"
	KeyEndReadOnlyTx          = "runner.end_readonly_tx"
	KeyErrorVerbosity         = "runner.error_verbosity"
	KeyAbbreviations          = "runner.abbreviations"
	KeyShowResults            = "runner.show_results"
	KeyCheckInserts           = "runner.check_inserts"
)

// Per-product setting names, combined with a product ID by ProductKey.
const (
	ProductIgnore              = "ignore"
	ProductPassthrough         = "passthrough"
	ProductUseSavepoint        = "use_savepoint"
	ProductMaxResultIterations = "max_result_iterations"
	ProductSelectIntoCreates   = "select_into_creates_table"
)

// EnvPrefix prefixes environment overrides: runner.max_rows is read from SQLWB_RUNNER_MAX_ROWS.
const EnvPrefix = "SQLWB_"

// ProductKey returns the key of a per-product setting, e.g. "db.postgresql.use_savepoint".
func ProductKey(productID, name string) string {
	return "db." + strings.ToLower(productID) + "." + name
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Settings is a read-only key/value provider with typed lookups. Values that cannot be
// coerced fall back to the supplied default.
type Settings struct {
	mu     sync.RWMutex
	values map[string]any
	lookup func(string) (string, bool)
}

// NewSettings copies values into a new provider.
func NewSettings(values map[string]any) *Settings {
	return &Settings{values: lo.MapKeys(values, func(_ any, k string) string { return strings.ToLower(k) })}
}

// WithEnv enables environment overrides through lookup (usually os.LookupEnv).
func (s *Settings) WithEnv(lookup func(string) (string, bool)) *Settings {
	s.mu.Lock()
	s.lookup = lookup
	s.mu.Unlock()
	return s
}

// Set stores a value, e.g. from a command line flag.
func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	s.values[strings.ToLower(key)] = value
	s.mu.Unlock()
}

// Get returns the raw value for key, giving the environment precedence.
func (s *Settings) Get(key string) (any, bool) {
	key = strings.ToLower(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lookup != nil {
		if v, ok := s.lookup(EnvName(key)); ok {
			return v, true
		}
	}
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the configured keys in sorted order, without environment overrides.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := lo.Keys(s.values)
	sort.Strings(keys)
	return keys
}

// String returns the value of key as a string.
func (s *Settings) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return str
}

// Bool returns the value of key as a bool.
func (s *Settings) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Int returns the value of key as an int.
func (s *Settings) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// StringSlice returns the value of key as a list. Strings are split on commas.
func (s *Settings) StringSlice(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	var items []string
	if str, isString := v.(string); isString {
		items = strings.Split(str, ",")
	} else {
		items = cast.ToStringSlice(v)
	}
	items = lo.Map(items, func(item string, _ int) string { return strings.TrimSpace(item) })
	return lo.Compact(items)
}
