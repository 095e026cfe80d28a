// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	stderrors "errors"
	"fmt"

	"sqlwb/cli/internal/config"
)

// DefaultMaxResultIterations bounds the result chain walk when no product setting exists.
const DefaultMaxResultIterations = 1000

// maxNestingDepth bounds cursors returned inside cursors.
const maxNestingDepth = 8

type chainState int

const (
	chainResultSet chainState = iota
	chainUpdateCount
	chainExhausted
	// chainFailed is a server error for one of the statements in the chain.
	chainFailed
	// chainDriverError is a driver that failed to report the chain state.
	chainDriverError
)

// chainItem is one poll of a statement's result chain.
type chainItem struct {
	state chainState
	rs    ResultSet
	count int64
	err   error
}

// resultChain polls a Statement and turns driver errors into explicit states.
type resultChain struct {
	stmt Statement
}

func (c resultChain) current(hasResultSet bool) chainItem {
	if hasResultSet {
		if rs := c.stmt.ResultSet(); rs != nil {
			return chainItem{state: chainResultSet, rs: rs}
		}
	}
	n, err := c.stmt.UpdateCount()
	if err != nil {
		return classify(err)
	}
	if n < 0 {
		return chainItem{state: chainExhausted}
	}
	return chainItem{state: chainUpdateCount, count: n}
}

func (c resultChain) next(ctx context.Context) chainItem {
	more, err := c.stmt.MoreResults(ctx)
	if err != nil {
		return classify(err)
	}
	return c.current(more)
}

// classify separates server errors, which fail the statement, from driver errors.
func classify(err error) chainItem {
	var st sqlStater
	if stderrors.As(err, &st) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return chainItem{state: chainFailed, err: err}
	}
	return chainItem{state: chainDriverError, err: err}
}

// opener is implemented by nested result sets that must be fetched before reading.
type opener interface {
	Open(ctx context.Context) error
}

// errStopDrain ends the walk without failing the statement.
var errStopDrain = stderrors.New("stop draining")

// drain walks every result set and update count of st into res.
func (ex *execution) drain(ctx context.Context, st Statement, hasResultSet bool, res *Result) error {
	limit := ex.settings.Int(ex.productSetting(config.ProductMaxResultIterations), DefaultMaxResultIterations)
	if limit <= 0 {
		limit = DefaultMaxResultIterations
	}
	chain := resultChain{stmt: st}
	var lastNested ResultSet

	item := chain.current(hasResultSet)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i >= limit {
			ex.logger.Warn("result iteration limit reached, ignoring further results",
				ex.logger.Args("limit", limit, "product", ex.session.ProductID()))
			return nil
		}

		switch item.state {
		case chainExhausted:
			return nil
		case chainFailed:
			return item.err
		case chainDriverError:
			ex.logger.Warn("driver failed to report further results", ex.logger.Args("error", item.err))
			return nil
		case chainUpdateCount:
			res.AddUpdateCount(item.count)
		case chainResultSet:
			err := ex.processResultSet(ctx, item.rs, res, &lastNested, 0)
			if stderrors.Is(err, errStopDrain) {
				return nil
			}
			if err != nil {
				return err
			}
		}
		item = chain.next(ctx)
	}
}

// processResultSet stores, counts or hands over one result set. Result sets whose only
// column holds cursors are unwrapped and each cursor is processed in order.
func (ex *execution) processResultSet(ctx context.Context, rs ResultSet, res *Result, lastNested *ResultSet, depth int) error {
	cols := rs.Columns()
	if len(cols) == 1 && cols[0].Cursor && depth < maxNestingDepth {
		nested, err := readNested(ctx, rs)
		if err != nil {
			return err
		}
		for _, n := range nested {
			if n == *lastNested {
				ex.logger.Warn("driver returned the same nested result twice, ignoring further results")
				return errStopDrain
			}
			*lastNested = n
			if o, ok := n.(opener); ok {
				if err := o.Open(ctx); err != nil {
					return err
				}
			}
			if err := ex.processResultSet(ctx, n, res, lastNested, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if ex.consumer != nil {
		return ex.consumer.Consume(ctx, rs)
	}
	defer rs.Close()

	if !ex.settings.Bool(config.KeyShowResults, true) {
		var n int64
		for rs.Next(ctx) {
			n++
		}
		if err := rs.Err(); err != nil {
			return err
		}
		res.RowsProcessed += n
		res.AddMessage(fmt.Sprintf("%d row(s) retrieved", n))
		return nil
	}

	ds := NewDataStore(cols)
	ex.setStore(ds)
	defer ex.setStore(nil)
	if err := ds.Fill(ctx, rs, ex.settings.Int(config.KeyMaxRows, 0), ex.progress); err != nil {
		return err
	}
	res.AddDataStore(ds)
	res.AddMessage(fmt.Sprintf("%d row(s) retrieved", ds.RowCount()))
	if ds.Cancelled() {
		res.Cancelled = true
		res.SetWarning("fetch cancelled, partial result kept")
	}
	return nil
}

// readNested collects the cursor values of rs and closes it.
func readNested(ctx context.Context, rs ResultSet) ([]ResultSet, error) {
	defer rs.Close()
	var nested []ResultSet
	for rs.Next(ctx) {
		vals, err := rs.Values()
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			continue
		}
		if n, ok := vals[0].(ResultSet); ok && n != nil {
			nested = append(nested, n)
		}
	}
	return nested, rs.Err()
}
