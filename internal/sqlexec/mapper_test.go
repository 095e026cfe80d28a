// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"sync"
	"testing"

	"sqlwb/cli/internal/config"
)

func TestGetCommandToUse(t *testing.T) {
	pgSettings := config.NewSettings(map[string]any{
		config.ProductKey("postgresql", config.ProductIgnore):      "VACUUM, ANALYZE",
		config.ProductKey("postgresql", config.ProductPassthrough): []string{"insert"},
	})

	tests := []struct {
		name     string
		product  string
		settings *config.Settings
		abbrev   bool
		sql      string
		wantNil  bool
		wantVerb string
		wantKind CommandKind
	}{
		{name: "empty", sql: "", wantNil: true},
		{name: "whitespace", sql: "  \n\t", wantNil: true},
		{name: "line comment only", sql: "-- nothing", wantNil: true},
		{name: "block comment only", sql: "/* nothing */", wantNil: true},
		{name: "unknown verb", sql: "FROBNICATE everything", wantVerb: WildcardVerb, wantKind: KindGeneric},
		{name: "select", sql: "select 1", wantVerb: "SELECT", wantKind: KindQuery},
		{name: "leading comment", sql: "/* c */ -- d\n  update t set a = 1", wantVerb: "UPDATE", wantKind: KindDML},
		{name: "multiword verb", sql: "START TRANSACTION READ ONLY", wantVerb: "START TRANSACTION", wantKind: KindTransaction},
		{name: "ddl", sql: "CREATE TABLE t (id int)", wantVerb: "CREATE", wantKind: KindDDL},
		{name: "workbench verb", sql: "wbvarlist", wantVerb: "WBVARLIST", wantKind: KindWorkbench},
		{
			name: "select into without connection", sql: "SELECT * INTO archive FROM t",
			wantVerb: "SELECT", wantKind: KindQuery,
		},
		{
			name: "select into creates a table", product: "postgresql", sql: "SELECT * INTO archive FROM t",
			wantVerb: WildcardVerb, wantKind: KindGeneric,
		},
		{
			name: "select with subquery", product: "postgresql", sql: "SELECT (SELECT 1) AS x FROM t",
			wantVerb: "SELECT", wantKind: KindQuery,
		},
		{
			name: "select into disabled by setting", product: "postgresql", sql: "SELECT * INTO archive FROM t",
			settings: config.NewSettings(map[string]any{config.ProductKey("postgresql", config.ProductSelectIntoCreates): false}),
			wantVerb: "SELECT", wantKind: KindQuery,
		},
		{name: "ignored verb", product: "postgresql", settings: pgSettings, sql: "VACUUM FULL t", wantVerb: "VACUUM", wantKind: KindIgnored},
		{name: "passthrough verb", product: "postgresql", settings: pgSettings, sql: "INSERT INTO t VALUES (1)", wantVerb: WildcardVerb, wantKind: KindGeneric},
		{name: "product alias", product: "cockroachdb", sql: "UPSERT INTO t VALUES (1)", wantVerb: "UPSERT", wantKind: KindDML},
		{name: "alias of another product", product: "postgresql", sql: "UPSERT INTO t VALUES (1)", wantVerb: WildcardVerb, wantKind: KindGeneric},
		{name: "abbreviated workbench command", abbrev: true, sql: "WbVarL", wantVerb: "WBVARLIST", wantKind: KindWorkbench},
		{name: "ambiguous abbreviation", abbrev: true, sql: "WbVar x", wantVerb: WildcardVerb, wantKind: KindGeneric},
		{name: "sql verbs are never abbreviated", abbrev: true, sql: "SEL 1", wantVerb: WildcardVerb, wantKind: KindGeneric},
		{name: "abbreviations disabled", sql: "WbVarL", wantVerb: WildcardVerb, wantKind: KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewCommandMapper()
			if tt.product != "" {
				settings := tt.settings
				if settings == nil {
					settings = config.NewSettings(nil)
				}
				m.SetConnection(tt.product, settings)
			}
			m.SetAbbreviations(tt.abbrev)

			got := m.GetCommandToUse(tt.sql)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("GetCommandToUse(%q) = %v, want nil", tt.sql, got.Verb)
				}
				return
			}
			if got == nil {
				t.Fatalf("GetCommandToUse(%q) = nil", tt.sql)
			}
			if got.Verb != tt.wantVerb || got.Kind != tt.wantKind {
				t.Errorf("GetCommandToUse(%q) = %s/%s, want %s/%s", tt.sql, got.Verb, got.Kind, tt.wantVerb, tt.wantKind)
			}
		})
	}
}

func TestSetConnectionReplacesOverlay(t *testing.T) {
	m := NewCommandMapper()
	m.SetConnection("cockroachdb", config.NewSettings(map[string]any{
		config.ProductKey("cockroachdb", config.ProductIgnore): "SHOW",
	}))
	if c := m.GetCommandToUse("SHOW TABLES"); c.Kind != KindIgnored {
		t.Fatalf("SHOW kind = %s, want ignored", c.Kind)
	}

	m.SetConnection("postgresql", config.NewSettings(nil))
	if m.Product() != "postgresql" {
		t.Errorf("Product() = %q", m.Product())
	}
	if c := m.GetCommandToUse("SHOW TABLES"); c.Kind != KindQuery {
		t.Errorf("stale ignore entry after reconnect: kind %s", c.Kind)
	}
	if c := m.GetCommandToUse("UPSERT INTO t VALUES (1)"); c.Verb != WildcardVerb {
		t.Errorf("stale alias after reconnect: %s", c.Verb)
	}

	m.SetConnection("", nil)
	if m.Product() != "" {
		t.Errorf("Product() = %q after disconnect", m.Product())
	}
}

func TestMapperConcurrentReconnect(t *testing.T) {
	m := NewCommandMapper()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			product := []string{"postgresql", "cockroachdb"}[i%2]
			m.SetConnection(product, config.NewSettings(nil))
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if m.GetCommandToUse("SELECT 1") == nil {
					t.Error("nil command during reconnect")
					return
				}
			}
		}()
	}
	wg.Wait()
}
