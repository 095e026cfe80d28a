// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"regexp"
	"strings"
	"unicode"
)

// Delimiter describes the text that terminates a statement in a script.
// It is a value type, so every parser run works on its own copy.
type Delimiter struct {
	text       string
	singleLine bool
}

var (
	// Standard is the default ";" delimiter.
	Standard = Delimiter{text: ";"}
	// OracleSlash is the SQL*Plus style "/" delimiter that must be alone on its line.
	OracleSlash = Delimiter{text: "/", singleLine: true}
	// SQLServerGo is the "GO" batch separator used by isql/sqlcmd.
	SQLServerGo = Delimiter{text: "GO", singleLine: true}
)

// NewDelimiter creates a delimiter. Surrounding whitespace is removed.
func NewDelimiter(text string, singleLine bool) Delimiter {
	return Delimiter{text: strings.TrimSpace(text), singleLine: singleLine}
}

// ParseDelimiter converts a settings value into a delimiter.
// A trailing ";nl" marks a single line delimiter ("/;nl"); the aliases ORACLE and
// MSSQL map to "/" and "GO". An empty value yields the standard delimiter.
func ParseDelimiter(value string) Delimiter {
	v := strings.TrimSpace(value)
	switch strings.ToUpper(v) {
	case "":
		return Standard
	case "ORACLE":
		return OracleSlash
	case "MSSQL":
		return SQLServerGo
	}
	if len(v) > 3 && strings.EqualFold(v[len(v)-3:], ";nl") {
		return NewDelimiter(v[:len(v)-3], true)
	}
	return NewDelimiter(v, false)
}

// Text returns the delimiter text.
func (d Delimiter) Text() string { return d.text }

// IsSingleLine reports whether the delimiter only counts when it is alone on a line.
func (d Delimiter) IsSingleLine() bool { return d.singleLine }

// IsStandard reports whether this is the ";" delimiter.
func (d Delimiter) IsStandard() bool { return d.text == ";" }

// IsEmpty reports whether no delimiter text is set.
func (d Delimiter) IsEmpty() bool { return d.text == "" }

// OrStandard returns d, or Standard when d is empty.
func (d Delimiter) OrStandard() Delimiter {
	if d.IsEmpty() {
		return Standard
	}
	return d
}

// Equals compares text (case-insensitive) and the single line flag.
func (d Delimiter) Equals(other Delimiter) bool {
	return d.singleLine == other.singleLine && strings.EqualFold(d.text, other.text)
}

// String returns the settings representation understood by ParseDelimiter.
func (d Delimiter) String() string {
	if d.singleLine {
		return d.text + ";nl"
	}
	return d.text
}

// pattern matches the delimiter at the end of a script.
func (d Delimiter) pattern() *regexp.Regexp {
	quoted := regexp.QuoteMeta(d.text)
	if d.singleLine {
		return regexp.MustCompile(`(?is)(?:^|[\r\n])[ \t]*` + quoted + `[ \t]*[\r\n\s]*$`)
	}
	return regexp.MustCompile(`(?is)` + quoted + `\s*$`)
}

// TerminatesScript reports whether the script ends with this delimiter.
func (d Delimiter) TerminatesScript(script string) bool {
	if d.IsEmpty() || strings.TrimSpace(script) == "" {
		return false
	}
	return d.pattern().MatchString(script)
}

// RemoveFromEnd strips a trailing occurrence of the delimiter from sql.
func (d Delimiter) RemoveFromEnd(sql string) string {
	trimmed := strings.TrimRightFunc(sql, unicode.IsSpace)
	if d.IsEmpty() || !d.TerminatesScript(trimmed) {
		return trimmed
	}
	cut := trimmed[:len(trimmed)-len(d.text)]
	return strings.TrimRightFunc(cut, unicode.IsSpace)
}
