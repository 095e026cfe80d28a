// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
)

// ProgressFunc is called while rows are materialized with the number read so far.
type ProgressFunc func(rows int)

// progressEvery is how often Fill reports progress.
const progressEvery = 100

// DataStore is an in-memory copy of one result set.
type DataStore struct {
	Columns []Column
	Rows    [][]any
	// Truncated is set when the row cap stopped the fetch early.
	Truncated bool

	cancelled atomic.Bool
}

// NewDataStore creates an empty store for cols.
func NewDataStore(cols []Column) *DataStore {
	return &DataStore{Columns: cols, Rows: [][]any{}}
}

// RowCount returns the number of materialized rows.
func (d *DataStore) RowCount() int { return len(d.Rows) }

// ColumnNames returns the column names in order.
func (d *DataStore) ColumnNames() []string {
	return lo.Map(d.Columns, func(c Column, _ int) string { return c.Name })
}

// Cancel stops a running Fill. Rows read so far are kept. Safe to call concurrently.
func (d *DataStore) Cancel() { d.cancelled.Store(true) }

// Cancelled reports whether Fill stopped because of Cancel or context cancellation.
func (d *DataStore) Cancelled() bool { return d.cancelled.Load() }

// Fill reads rows from rs until it is exhausted, maxRows (when > 0) rows are stored or the
// fetch is cancelled. A cancelled fetch is not an error.
func (d *DataStore) Fill(ctx context.Context, rs ResultSet, maxRows int, progress ProgressFunc) error {
	if len(d.Columns) == 0 {
		d.Columns = rs.Columns()
	}
	for {
		if d.cancelled.Load() {
			return nil
		}
		if ctx.Err() != nil {
			d.cancelled.Store(true)
			return nil
		}
		if maxRows > 0 && len(d.Rows) >= maxRows {
			d.Truncated = true
			return nil
		}
		if !rs.Next(ctx) {
			break
		}
		vals, err := rs.Values()
		if err != nil {
			return err
		}
		d.Rows = append(d.Rows, vals)
		if progress != nil && len(d.Rows)%progressEvery == 0 {
			progress(len(d.Rows))
		}
	}
	if err := rs.Err(); err != nil {
		if ctx.Err() != nil {
			d.cancelled.Store(true)
			return nil
		}
		return err
	}
	if len(d.Columns) == 0 {
		d.Columns = rs.Columns()
	}
	return nil
}

// MarshalJSON renders the store as {"columns": [...], "rows": [[...]]} with binary values
// converted to printable strings.
func (d *DataStore) MarshalJSON() ([]byte, error) {
	rows := make([][]any, len(d.Rows))
	for i, row := range d.Rows {
		rows[i] = make([]any, len(row))
		for j, val := range row {
			rows[i][j] = DisplayValue(val)
		}
	}
	return json.Marshal(struct {
		Columns   []string `json:"columns"`
		Rows      [][]any  `json:"rows"`
		Truncated bool     `json:"truncated,omitempty"`
	}{Columns: d.ColumnNames(), Rows: rows, Truncated: d.Truncated})
}

// DisplayValue converts driver values into JSON and text friendly values. UUIDs decoded as
// [16]byte become canonical strings; byte slices use the bytea hex format whatever their
// length.
func DisplayValue(val any) any {
	switch v := val.(type) {
	case [16]byte:
		return formatUUID(v)
	case []byte:
		return fmt.Sprintf("\\x%x", v)
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

func formatUUID(v [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])
}
