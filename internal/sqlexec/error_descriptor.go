// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	stderrors "errors"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorDescriptor locates a statement error so an editor can highlight the failing token.
// Offsets are rune offsets; -1 means unknown.
type ErrorDescriptor struct {
	// Offset is the error position inside the statement text.
	Offset int
	// Line and Column are zero-based.
	Line   int
	Column int
	// Message is the database error text.
	Message string
	// MessageIncludesPosition is set when Message already names the position.
	MessageIncludesPosition bool
	// InStatementOffset is true when Offset is relative to the statement, not the script.
	InStatementOffset bool
	SQLState          string
}

// NewErrorDescriptor returns a descriptor with an unknown position.
func NewErrorDescriptor(msg string) *ErrorDescriptor {
	return &ErrorDescriptor{Offset: -1, Line: -1, Column: -1, Message: msg, InStatementOffset: true}
}

// HasError reports whether a position is known.
func (d *ErrorDescriptor) HasError() bool {
	if d == nil {
		return false
	}
	return d.Offset >= 0 || (d.Line >= 0 && d.Column >= 0)
}

// ScriptPosition converts an in-statement offset into a script offset given the start of
// the statement in the script. It returns -1 when no offset is known.
func (d *ErrorDescriptor) ScriptPosition(commandStart int) int {
	if d == nil || d.Offset < 0 {
		return -1
	}
	if d.InStatementOffset {
		return commandStart + d.Offset
	}
	return d.Offset
}

type sqlStater interface {
	SQLState() string
}

// DescribeError derives a descriptor from a driver error. For server errors carrying a
// position the offset, line and column are filled in relative to sql.
func DescribeError(sql string, err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	d := NewErrorDescriptor(err.Error())

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		d.Message = pgErr.Message
		d.SQLState = pgErr.Code
		if pgErr.Position > 0 {
			d.setOffset(sql, int(pgErr.Position)-1)
		}
		return d
	}
	var st sqlStater
	if stderrors.As(err, &st) {
		d.SQLState = st.SQLState()
	}
	return d
}

func (d *ErrorDescriptor) setOffset(sql string, offset int) {
	if n := utf8.RuneCountInString(sql); offset > n {
		offset = n
	}
	d.Offset = offset
	d.Line, d.Column = 0, 0
	for i, r := range []rune(sql) {
		if i == offset {
			break
		}
		if r == '\n' {
			d.Line++
			d.Column = 0
			continue
		}
		d.Column++
	}
	d.MessageIncludesPosition = strings.Contains(strings.ToLower(d.Message), "position")
}
