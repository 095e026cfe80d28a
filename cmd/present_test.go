// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"testing"

	"sqlwb/cli/internal/sqlexec"
)

func TestErrorPosition(t *testing.T) {
	positioned := &sqlexec.ErrorDescriptor{Offset: 12, Line: 1, Column: 2, InStatementOffset: true}
	const stmt = "SELECT 1,\n  bogus FROM t"

	tests := []struct {
		name     string
		d        *sqlexec.ErrorDescriptor
		loc      statementLocation
		executed string
		want     string
	}{
		{
			name:     "unchanged statement gets the script offset",
			d:        positioned,
			loc:      statementLocation{start: 100, text: stmt},
			executed: stmt,
			want:     " (statement line 2, column 3, script offset 112)",
		},
		{
			name:     "substituted statement keeps only the statement position",
			d:        positioned,
			loc:      statementLocation{start: 100, text: "SELECT &cols FROM t"},
			executed: stmt,
			want:     " (statement line 2, column 3)",
		},
		{
			name:     "unknown script text",
			d:        positioned,
			loc:      statementLocation{start: 100},
			executed: stmt,
			want:     " (statement line 2, column 3)",
		},
		{
			name: "message already names the position",
			d:    &sqlexec.ErrorDescriptor{Offset: 3, Line: 0, Column: 3, MessageIncludesPosition: true},
			want: "",
		},
		{
			name: "no position",
			d:    sqlexec.NewErrorDescriptor("connection reset"),
			want: "",
		},
		{
			name: "no error",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorPosition(tt.d, tt.loc, tt.executed); got != tt.want {
				t.Errorf("errorPosition() = %q, want %q", got, tt.want)
			}
		})
	}
}
