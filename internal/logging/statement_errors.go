// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

// StatementErrorType represents the category of a database error
type StatementErrorType int

const (
	StatementErrorUnknown StatementErrorType = iota
	StatementErrorSyntax
	StatementErrorConstraint
	StatementErrorPermission
	StatementErrorConnection
	StatementErrorTimeout
)

// String returns a short label for the category.
func (t StatementErrorType) String() string {
	switch t {
	case StatementErrorSyntax:
		return "syntax"
	case StatementErrorConstraint:
		return "constraint"
	case StatementErrorPermission:
		return "permission"
	case StatementErrorConnection:
		return "connection"
	case StatementErrorTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// ParseSQLState categorizes a SQLSTATE code, falling back to the message text
// when the driver did not report one.
func ParseSQLState(sqlState, errMsg string) StatementErrorType {
	switch {
	case sqlState == "42501", strings.HasPrefix(sqlState, "28"):
		return StatementErrorPermission
	case strings.HasPrefix(sqlState, "42"):
		return StatementErrorSyntax
	case strings.HasPrefix(sqlState, "23"):
		return StatementErrorConstraint
	case strings.HasPrefix(sqlState, "08"), strings.HasPrefix(sqlState, "57P"):
		return StatementErrorConnection
	case sqlState == "57014", sqlState == "55P03":
		return StatementErrorTimeout
	case sqlState != "":
		return StatementErrorUnknown
	}

	lower := strings.ToLower(errMsg)
	if strings.Contains(lower, "syntax error") {
		return StatementErrorSyntax
	}
	if strings.Contains(lower, "permission denied") {
		return StatementErrorPermission
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "canceling statement") {
		return StatementErrorTimeout
	}
	if strings.Contains(lower, "connection") || strings.Contains(lower, "broken pipe") {
		return StatementErrorConnection
	}
	return StatementErrorUnknown
}

// truncateStatement shortens sql according to the verbosity level:
// 0 omits the statement, 1 keeps the first 80 characters, 2 keeps everything.
func truncateStatement(sql string, verbosity int) string {
	sql = strings.TrimSpace(sql)
	switch {
	case verbosity <= 0:
		return ""
	case verbosity == 1:
		r := []rune(sql)
		if len(r) > 80 {
			return string(r[:80]) + "..."
		}
		return sql
	default:
		return sql
	}
}

// FormatStatementError renders a failed statement. The statement and the database
// message are printed in separate blocks.
func FormatStatementError(sql, errMsg, sqlState string, verbosity int) string {
	errType := ParseSQLState(sqlState, errMsg)

	var builder strings.Builder

	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Statement failed"))
	builder.WriteString("\n")

	if stmt := truncateStatement(sql, verbosity); stmt != "" {
		builder.WriteString("\n")
		builder.WriteString(stmt)
		builder.WriteString("\n")
	}

	builder.WriteString("\n")
	builder.WriteString(Mask(strings.TrimSpace(errMsg)))
	builder.WriteString("\n")

	switch errType {
	case StatementErrorSyntax:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Check the statement syntax near the reported position"))
	case StatementErrorConstraint:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ The data violates a constraint; earlier statements were kept"))
	case StatementErrorPermission:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ The connected role lacks the required privilege"))
	case StatementErrorConnection:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ The connection was lost; run 'sqlwb connect' to verify it"))
	case StatementErrorTimeout:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ The statement was cancelled or timed out"))
	}
	if errType != StatementErrorUnknown {
		builder.WriteString("\n")
	}

	if sqlState != "" {
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint(fmt.Sprintf("SQLSTATE %s (%s)", sqlState, errType)))
		builder.WriteString("\n")
	}

	return builder.String()
}

// PresentStatementError displays a formatted statement error
func PresentStatementError(sql, errMsg, sqlState string, verbosity int) {
	fmt.Println()
	fmt.Print(FormatStatementError(sql, errMsg, sqlState, verbosity))
}
