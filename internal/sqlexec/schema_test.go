// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"slices"
	"testing"
)

func TestAllowedValues(t *testing.T) {
	tests := []struct {
		name string
		def  string
		want []string
	}{
		{"in list", "CHECK (status IN ('queued', 'running', 'done'))", []string{"queued", "running", "done"}},
		{"normalized any array", "CHECK ((status = ANY (ARRAY['queued'::text, 'done'::text])))", []string{"queued", "done"}},
		{"cast array", "CHECK (((kind)::text = ANY ((ARRAY['a'::character varying, 'b'::character varying])::text[])))", []string{"a", "b"}},
		{"comma and quote inside literal", "CHECK (label IN ('a,b', 'it''s'))", []string{"a,b", "it's"}},
		{"lower case keywords", "check (x in ('y'))", []string{"y"}},
		{"range check", "CHECK ((price > (0)::numeric))", nil},
		{"column named like a keyword", "CHECK ((index_no >= 0))", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allowedValues(tt.def); !slices.Equal(got, tt.want) {
				t.Errorf("allowedValues(%q) = %q, want %q", tt.def, got, tt.want)
			}
		})
	}
}
