// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of one statement.
type Status int

const (
	StatusSuccess Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusError {
		return "error"
	}
	return "success"
}

// Result collects everything one statement produced.
type Result struct {
	SQL    string
	Status Status
	// Warning marks a result that completed but needs the user's attention, e.g. a
	// statement skipped by the read-only guard or a cancelled fetch with partial rows.
	Warning bool
	// Cancelled is set when the user declined a prompt or cancelled execution.
	Cancelled bool
	// StopScript asks the caller to stop running the remaining statements.
	StopScript bool

	DataStores       []*DataStore
	Messages         []string
	TotalUpdateCount int64
	RowsProcessed    int64
	Duration         time.Duration

	Error *ErrorDescriptor
}

// NewResult returns an empty successful result for sql.
func NewResult(sql string) *Result {
	return &Result{SQL: sql}
}

// IsSuccess reports whether the statement succeeded.
func (r *Result) IsSuccess() bool { return r.Status == StatusSuccess }

// SetSuccess marks the result successful and drops any error information.
func (r *Result) SetSuccess() {
	r.Status = StatusSuccess
	r.Error = nil
}

// SetFailure marks the result failed with d.
func (r *Result) SetFailure(d *ErrorDescriptor) {
	r.Status = StatusError
	r.Error = d
	if d != nil && d.Message != "" {
		r.AddMessage(d.Message)
	}
}

// SetWarning marks the result as needing attention and records msg.
func (r *Result) SetWarning(msg string) {
	r.Warning = true
	if msg != "" {
		r.AddMessage(msg)
	}
}

// AddMessage appends a line of output.
func (r *Result) AddMessage(msg string) {
	r.Messages = append(r.Messages, msg)
}

// AddUpdateCount records rows affected by one update count of the chain.
func (r *Result) AddUpdateCount(n int64) {
	r.TotalUpdateCount += n
	r.AddMessage(fmt.Sprintf("%d row(s) affected", n))
}

// AddDataStore appends a materialized result.
func (r *Result) AddDataStore(ds *DataStore) {
	r.DataStores = append(r.DataStores, ds)
	r.RowsProcessed += int64(ds.RowCount())
}

// HasDataStores reports whether any rows were materialized.
func (r *Result) HasDataStores() bool { return len(r.DataStores) > 0 }

// MessageText joins all messages with newlines.
func (r *Result) MessageText() string { return strings.Join(r.Messages, "\n") }

// ErrorMessage returns the database error text, or "" on success.
func (r *Result) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Clear releases row data.
func (r *Result) Clear() {
	r.DataStores = nil
	r.Messages = nil
}
