// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
)

// querier is the subset of *pgx.Conn used for catalog queries.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ColumnInfo describes one table column.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
	Default  string
}

// TableInfo is the structure of one table as shown by DESC.
type TableInfo struct {
	TableName string
	// Columns in ordinal order.
	Columns        []ColumnInfo
	PrimaryKeyCols []string
	// AutoIncrement marks identity columns and columns filled from a sequence.
	AutoIncrement map[string]bool
	// EnumValues holds the literals allowed by single-column CHECK ... IN constraints.
	EnumValues map[string][]string
}

// SchemaInspector reads table structure from pg_catalog and caches it per name for the
// life of the session. DDL run through the runner clears the cache.
type SchemaInspector struct {
	q querier

	mu    sync.RWMutex
	cache map[string]*TableInfo
}

// NewSchemaInspector creates an inspector over the given connection.
func NewSchemaInspector(q querier) *SchemaInspector {
	return &SchemaInspector{q: q, cache: make(map[string]*TableInfo)}
}

const (
	columnsQuery = `
		SELECT a.attname,
		       format_type(a.atttypid, a.atttypmod),
		       NOT a.attnotnull,
		       COALESCE(pg_get_expr(d.adbin, d.adrelid), ''),
		       a.attidentity <> ''
		FROM pg_attribute a
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`

	primaryKeyQuery = `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY (i.indkey)
		WHERE i.indrelid = $1 AND i.indisprimary
		ORDER BY array_position(i.indkey::int2[], a.attnum)`

	checksQuery = `
		SELECT a.attname, pg_get_constraintdef(c.oid)
		FROM pg_constraint c
		JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = c.conkey[1]
		WHERE c.conrelid = $1 AND c.contype = 'c' AND cardinality(c.conkey) = 1`
)

// DescribeTable returns the structure of a table. name may be schema qualified and
// quoted; unqualified names follow the session's search_path.
func (si *SchemaInspector) DescribeTable(ctx context.Context, name string) (*TableInfo, error) {
	key := strings.TrimSpace(name)
	si.mu.RLock()
	info, ok := si.cache[key]
	si.mu.RUnlock()
	if ok {
		return info, nil
	}

	oid, err := si.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if oid == nil {
		return nil, fmt.Errorf("table %s not found", key)
	}

	info = &TableInfo{
		TableName:     key,
		AutoIncrement: make(map[string]bool),
		EnumValues:    make(map[string][]string),
	}
	if err := si.loadColumns(ctx, *oid, info); err != nil {
		return nil, err
	}
	if err := si.loadPrimaryKey(ctx, *oid, info); err != nil {
		return nil, err
	}
	// Not every PostgreSQL-protocol server exposes check constraint definitions.
	_ = si.loadChecks(ctx, *oid, info)

	si.mu.Lock()
	si.cache[key] = info
	si.mu.Unlock()
	return info, nil
}

// ClearCache drops all cached table structures.
func (si *SchemaInspector) ClearCache() {
	si.mu.Lock()
	si.cache = make(map[string]*TableInfo)
	si.mu.Unlock()
}

func (si *SchemaInspector) lookup(ctx context.Context, name string) (*uint32, error) {
	rows, err := si.q.Query(ctx, "SELECT to_regclass($1)::oid", name)
	if err != nil {
		return nil, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowTo[*uint32])
}

func (si *SchemaInspector) loadColumns(ctx context.Context, oid uint32, info *TableInfo) error {
	rows, err := si.q.Query(ctx, columnsQuery, oid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c        ColumnInfo
			identity bool
		)
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default, &identity); err != nil {
			return err
		}
		if identity || strings.HasPrefix(c.Default, "nextval(") || strings.Contains(strings.ToLower(c.Default), "unique_rowid()") {
			info.AutoIncrement[c.Name] = true
		}
		info.Columns = append(info.Columns, c)
	}
	return rows.Err()
}

func (si *SchemaInspector) loadPrimaryKey(ctx context.Context, oid uint32, info *TableInfo) error {
	rows, err := si.q.Query(ctx, primaryKeyQuery, oid)
	if err != nil {
		return err
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	info.PrimaryKeyCols = cols
	return nil
}

func (si *SchemaInspector) loadChecks(ctx context.Context, oid uint32, info *TableInfo) error {
	rows, err := si.q.Query(ctx, checksQuery, oid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var col, def string
		if err := rows.Scan(&col, &def); err != nil {
			return err
		}
		if values := allowedValues(def); len(values) > 0 {
			info.EnumValues[col] = values
		}
	}
	return rows.Err()
}

var (
	reInList   = regexp.MustCompile(`(?is)\bIN\s*\((.*)\)`)
	reAnyArray = regexp.MustCompile(`(?is)=\s*ANY\s*\(\s*(?:\(\s*)?ARRAY\s*\[(.*)\]`)
	reLiteral  = regexp.MustCompile(`'((?:[^']|'')*)'`)
)

// allowedValues extracts the string literals of a constraint such as
// CHECK (status IN ('queued', 'done')) or its normalized form
// CHECK ((status = ANY (ARRAY['queued'::text, 'done'::text]))).
func allowedValues(def string) []string {
	var list string
	if m := reAnyArray.FindStringSubmatch(def); m != nil {
		list = m[1]
	} else if m := reInList.FindStringSubmatch(def); m != nil {
		list = m[1]
	} else {
		return nil
	}
	var out []string
	for _, m := range reLiteral.FindAllStringSubmatch(list, -1) {
		out = append(out, strings.ReplaceAll(m[1], "''", "'"))
	}
	return out
}
