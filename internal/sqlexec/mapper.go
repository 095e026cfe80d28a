// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"sort"
	"strings"
	"sync/atomic"

	"sqlwb/cli/internal/config"
	"sqlwb/cli/internal/dsn"
	"sqlwb/cli/internal/script"

	"github.com/samber/lo"
)

// CommandKind tags the handler variant of a Command.
type CommandKind int

const (
	KindGeneric CommandKind = iota
	KindQuery
	KindDML
	KindDDL
	KindCall
	KindTransaction
	KindIgnored
	KindWorkbench
)

func (k CommandKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindDML:
		return "dml"
	case KindDDL:
		return "ddl"
	case KindCall:
		return "call"
	case KindTransaction:
		return "transaction"
	case KindIgnored:
		return "ignored"
	case KindWorkbench:
		return "workbench"
	default:
		return "generic"
	}
}

// WildcardVerb keys the fallback handler.
const WildcardVerb = "*"

// Command is the handler resolved for a statement verb.
type Command struct {
	Verb string
	Kind CommandKind
	// Updating marks data-modifying statements for the read-only and confirm guards.
	Updating bool
	// NeedsConnection is false for commands that run entirely in the client.
	NeedsConnection bool

	run handlerFunc
}

// IsWorkbench reports whether the command is a client-side workbench command.
func (c *Command) IsWorkbench() bool { return c.Kind == KindWorkbench }

func sqlCommand(verb string, kind CommandKind, updating bool) *Command {
	return &Command{Verb: verb, Kind: kind, Updating: updating, NeedsConnection: true, run: runSQL}
}

func workbenchCommand(verb string, needsConnection bool, run handlerFunc) *Command {
	return &Command{Verb: verb, Kind: KindWorkbench, NeedsConnection: needsConnection, run: run}
}

func ignoredCommand(verb string) *Command {
	return &Command{Verb: verb, Kind: KindIgnored, run: runIgnored}
}

var genericCommand = sqlCommand(WildcardVerb, KindGeneric, false)

// defaultCommands is the static verb table shared by every mapper.
var defaultCommands = func() map[string]*Command {
	m := map[string]*Command{WildcardVerb: genericCommand}
	add := func(c *Command) { m[c.Verb] = c }

	for _, v := range []string{"SELECT", "WITH", "VALUES", "SHOW", "EXPLAIN", "TABLE", "FETCH"} {
		add(sqlCommand(v, KindQuery, false))
	}
	for _, v := range []string{"INSERT", "UPDATE", "DELETE", "MERGE", "TRUNCATE", "COPY"} {
		add(sqlCommand(v, KindDML, true))
	}
	for _, v := range []string{"CREATE", "ALTER", "DROP", "COMMENT", "GRANT", "REVOKE", "REFRESH"} {
		add(sqlCommand(v, KindDDL, true))
	}
	add(sqlCommand("CALL", KindCall, true))
	for _, v := range []string{"BEGIN", "START TRANSACTION", "COMMIT", "END", "ROLLBACK", "ABORT", "SAVEPOINT", "RELEASE"} {
		add(sqlCommand(v, KindTransaction, false))
	}

	add(workbenchCommand("WBVARDEF", false, runVarDef))
	add(workbenchCommand("WBVARDELETE", false, runVarDelete))
	add(workbenchCommand("WBVARLIST", false, runVarList))
	add(workbenchCommand("WBECHO", false, runEcho))
	add(workbenchCommand("DESC", true, runDescribe))
	add(workbenchCommand("DESCRIBE", true, runDescribe))
	return m
}()

// productAliases are verbs only some servers understand.
var productAliases = map[string][]*Command{
	dsn.ProductCockroachDB: {
		sqlCommand("UPSERT", KindDML, true),
		sqlCommand("USE", KindGeneric, false),
		sqlCommand("SET DATABASE", KindGeneric, false),
	},
	dsn.ProductRedshift: {
		sqlCommand("UNLOAD", KindDML, false),
	},
	dsn.ProductYugabyteDB: {
		sqlCommand("USE", KindGeneric, false),
	},
}

// selectIntoDefaults tells whether SELECT ... INTO creates a table on the product.
var selectIntoDefaults = map[string]bool{
	dsn.ProductPostgreSQL: true,
	dsn.ProductRedshift:   true,
	dsn.ProductGreenplum:  true,
	dsn.ProductYugabyteDB: true,
}

// mapperOverlay holds the per-connection entries. It is replaced as a whole on reconnect.
type mapperOverlay struct {
	product     string
	commands    map[string]*Command
	passthrough map[string]bool
	selectInto  bool
}

// CommandMapper resolves statement verbs to handlers. Lookups are safe for concurrent
// use with SetConnection.
type CommandMapper struct {
	defaults      map[string]*Command
	overlay       atomic.Pointer[mapperOverlay]
	abbreviations atomic.Bool
	lexOpts       script.LexerOptions
}

// NewCommandMapper creates a mapper with the built-in verbs and no connection overlay.
func NewCommandMapper() *CommandMapper {
	m := &CommandMapper{
		defaults: defaultCommands,
		lexOpts:  script.LexerOptions{Dialect: script.ParserPostgres},
	}
	m.overlay.Store(&mapperOverlay{})
	return m
}

// SetAbbreviations enables unambiguous prefix matching of workbench commands.
func (m *CommandMapper) SetAbbreviations(on bool) { m.abbreviations.Store(on) }

// SetConnection rebuilds the per-connection overlay for productID. An empty productID
// drops all product-specific entries. Calling it again replaces the previous overlay.
func (m *CommandMapper) SetConnection(productID string, settings Settings) {
	if settings == nil {
		settings = config.NewSettings(nil)
	}
	m.SetAbbreviations(settings.Bool(config.KeyAbbreviations, m.abbreviations.Load()))
	if productID == "" {
		m.overlay.Store(&mapperOverlay{})
		return
	}

	ov := &mapperOverlay{
		product:  productID,
		commands: map[string]*Command{},
		selectInto: settings.Bool(
			config.ProductKey(productID, config.ProductSelectIntoCreates),
			selectIntoDefaults[productID],
		),
	}
	for _, c := range productAliases[productID] {
		ov.commands[c.Verb] = c
	}
	for _, verb := range settings.StringSlice(config.ProductKey(productID, config.ProductIgnore)) {
		verb = normalizeVerb(verb)
		ov.commands[verb] = ignoredCommand(verb)
	}
	ov.passthrough = lo.SliceToMap(
		settings.StringSlice(config.ProductKey(productID, config.ProductPassthrough)),
		func(v string) (string, bool) { return normalizeVerb(v), true },
	)
	m.overlay.Store(ov)
}

// Product returns the product of the current overlay, or "".
func (m *CommandMapper) Product() string { return m.overlay.Load().product }

// Verbs returns every verb the mapper currently resolves, sorted.
func (m *CommandMapper) Verbs() []string {
	ov := m.overlay.Load()
	verbs := lo.Uniq(append(lo.Keys(m.defaults), lo.Keys(ov.commands)...))
	sort.Strings(verbs)
	return verbs
}

// GetCommandToUse returns the handler for sql. It returns nil only when sql has no verb.
func (m *CommandMapper) GetCommandToUse(sql string) *Command {
	words := script.SignificantWords(sql, 2, m.lexOpts)
	if len(words) == 0 {
		return nil
	}
	verb := strings.ToUpper(words[0])
	ov := m.overlay.Load()

	if verb == "SELECT" && ov.selectInto && m.isSelectInto(sql) {
		return genericCommand
	}
	if ov.passthrough[verb] {
		return genericCommand
	}
	if len(words) > 1 {
		if c := m.lookup(ov, verb+" "+strings.ToUpper(words[1])); c != nil {
			return c
		}
	}
	if c := m.lookup(ov, verb); c != nil {
		return c
	}
	if m.abbreviations.Load() {
		if c := m.abbreviated(verb); c != nil {
			return c
		}
	}
	return genericCommand
}

func (m *CommandMapper) lookup(ov *mapperOverlay, verb string) *Command {
	if c, ok := ov.commands[verb]; ok {
		return c
	}
	return m.defaults[verb]
}

// abbreviated matches verb as a prefix of exactly one workbench command.
func (m *CommandMapper) abbreviated(verb string) *Command {
	matches := lo.Filter(lo.Values(m.defaults), func(c *Command, _ int) bool {
		return c.IsWorkbench() && strings.HasPrefix(c.Verb, verb)
	})
	if len(matches) != 1 {
		return nil
	}
	return matches[0]
}

// isSelectInto reports whether a SELECT has a top-level INTO before its FROM clause.
func (m *CommandMapper) isSelectInto(sql string) bool {
	depth := 0
	for _, t := range script.Tokens(sql, m.lexOpts) {
		switch {
		case !t.Significant():
		case t.Kind == script.TokenSymbol && t.Text == "(":
			depth++
		case t.Kind == script.TokenSymbol && t.Text == ")":
			depth--
		case depth == 0 && t.Kind == script.TokenWord:
			switch strings.ToUpper(t.Text) {
			case "INTO":
				return true
			case "FROM", "WHERE", "UNION", "EXCEPT", "INTERSECT":
				return false
			}
		}
	}
	return false
}

func normalizeVerb(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), " "))
}
