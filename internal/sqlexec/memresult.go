// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import "context"

// MemResultSet is a ResultSet over rows held in memory. It backs results that are
// produced locally (DESC, WbVarList) and results buffered ahead of a cursor fetch.
type MemResultSet struct {
	cols   []Column
	rows   [][]any
	pos    int
	closed bool
}

// NewMemResultSet creates a result set over rows.
func NewMemResultSet(cols []Column, rows [][]any) *MemResultSet {
	return &MemResultSet{cols: cols, rows: rows, pos: -1}
}

func (m *MemResultSet) Columns() []Column { return m.cols }

func (m *MemResultSet) Next(ctx context.Context) bool {
	if m.closed || ctx.Err() != nil || m.pos+1 >= len(m.rows) {
		return false
	}
	m.pos++
	return true
}

func (m *MemResultSet) Values() ([]any, error) {
	if m.pos < 0 || m.pos >= len(m.rows) {
		return nil, nil
	}
	return m.rows[m.pos], nil
}

func (m *MemResultSet) Err() error { return nil }

func (m *MemResultSet) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemResultSet) Closed() bool { return m.closed }
