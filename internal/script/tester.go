// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import "strings"

// DelimiterTester decides per statement which delimiter currently terminates it.
// The splitter feeds every significant token to the tester and asks for the current
// delimiter before matching the next one.
type DelimiterTester interface {
	SetDelimiter(d Delimiter)
	SetAlternateDelimiter(d Delimiter)
	CurrentToken(tok Token, isStartOfLine bool)
	CurrentDelimiter() Delimiter
	StatementFinished()
	IsSingleLineStatement(tok Token, isStartOfLine bool) bool
}

// plsqlTypes are the object types whose CREATE statement carries a PL/SQL body.
var plsqlTypes = map[string]bool{
	"PACKAGE":   true,
	"PROCEDURE": true,
	"FUNCTION":  true,
	"TRIGGER":   true,
	"TYPE":      true,
	"LIBRARY":   true,
	"JAVA":      true,
}

// createModifiers may appear between CREATE and the object type.
var createModifiers = map[string]bool{
	"OR":             true,
	"REPLACE":        true,
	"EDITIONABLE":    true,
	"NONEDITIONABLE": true,
	"EDITIONING":     true,
	"AND":            true,
	"COMPILE":        true,
	"RESOLVE":        true,
	"NOFORCE":        true,
}

// beginFollowers mark BEGIN as a transaction statement rather than a PL/SQL block.
var beginFollowers = map[string]bool{
	";":           true,
	"TRANSACTION": true,
	"TRAN":        true,
	"WORK":        true,
	"ISOLATION":   true,
	"READ":        true,
	"DEFERRED":    true,
	"IMMEDIATE":   true,
	"EXCLUSIVE":   true,
}

// OracleDelimiterTester switches to the alternate delimiter for PL/SQL blocks:
// CREATE [OR REPLACE] PACKAGE/PROCEDURE/FUNCTION/TRIGGER/TYPE and anonymous blocks
// starting with BEGIN or DECLARE.
type OracleDelimiterTester struct {
	standard     Delimiter
	alternate    Delimiter
	useAlternate bool
	tokens       int
	createSeen   bool
	pendingBegin bool
}

// NewOracleDelimiterTester creates a tester using ";" and "/".
func NewOracleDelimiterTester() *OracleDelimiterTester {
	return &OracleDelimiterTester{standard: Standard, alternate: OracleSlash}
}

func (t *OracleDelimiterTester) SetDelimiter(d Delimiter) { t.standard = d.OrStandard() }

func (t *OracleDelimiterTester) SetAlternateDelimiter(d Delimiter) {
	if d.IsEmpty() {
		d = OracleSlash
	}
	t.alternate = d
}

// CurrentToken advances the state machine with one token.
func (t *OracleDelimiterTester) CurrentToken(tok Token, isStartOfLine bool) {
	if !tok.Significant() {
		return
	}
	text := strings.ToUpper(tok.Text)
	t.tokens++

	// Only the splitter knows whether the alternate delimiter stands alone on its
	// line; it ends the block through StatementFinished.
	if t.useAlternate {
		return
	}

	if t.pendingBegin {
		t.pendingBegin = false
		if !beginFollowers[text] {
			t.useAlternate = true
		}
		return
	}

	if t.tokens == 1 {
		switch text {
		case "BEGIN":
			t.pendingBegin = true
		case "DECLARE":
			t.useAlternate = true
		case "CREATE", "RECREATE":
			t.createSeen = true
		}
		return
	}

	if t.createSeen {
		switch {
		case createModifiers[text]:
		case plsqlTypes[text]:
			t.useAlternate = true
			t.createSeen = false
		default:
			t.createSeen = false
		}
	}
}

// CurrentDelimiter returns the alternate delimiter inside a PL/SQL block.
func (t *OracleDelimiterTester) CurrentDelimiter() Delimiter {
	if t.useAlternate {
		return t.alternate
	}
	return t.standard
}

// StatementFinished resets the state for the next statement.
func (t *OracleDelimiterTester) StatementFinished() { t.reset() }

// IsSingleLineStatement recognizes @file includes.
func (t *OracleDelimiterTester) IsSingleLineStatement(tok Token, isStartOfLine bool) bool {
	return isStartOfLine && tok.Kind == TokenSymbol && tok.Text == "@"
}

func (t *OracleDelimiterTester) reset() {
	t.useAlternate = false
	t.tokens = 0
	t.createSeen = false
	t.pendingBegin = false
}
