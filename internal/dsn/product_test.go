// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"testing"
)

func TestDetectProduct(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantID  string
		wantVer string
	}{
		{
			name:    "postgres",
			version: "PostgreSQL 16.2 (Debian 16.2-1.pgdg120+2) on x86_64-pc-linux-gnu, compiled by gcc",
			wantID:  ProductPostgreSQL,
			wantVer: "16.2",
		},
		{
			name:    "cockroach",
			version: "CockroachDB CCL v23.1.11 (x86_64-pc-linux-gnu, built 2023/09/27 01:53:43, go1.19.10)",
			wantID:  ProductCockroachDB,
			wantVer: "23.1.11",
		},
		{
			name:    "redshift",
			version: "PostgreSQL 8.0.2 on i686-pc-linux-gnu, compiled by GCC gcc (GCC) 3.4.2 20041017 (Red Hat 3.4.2-6.fc3), Redshift 1.0.61580",
			wantID:  ProductRedshift,
			wantVer: "1.0.61580",
		},
		{
			name:    "greenplum",
			version: "PostgreSQL 12.12 (Greenplum Database 7.0.0 build commit:abc) on x86_64",
			wantID:  ProductGreenplum,
			wantVer: "7.0.0",
		},
		{
			name:    "yugabyte",
			version: "PostgreSQL 11.2-YB-2.20.1.0-b0 on x86_64-pc-linux-gnu",
			wantID:  ProductYugabyteDB,
			wantVer: "2.20.1.0",
		},
		{
			name:    "empty",
			version: "",
			wantID:  ProductPostgreSQL,
			wantVer: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectProduct(tt.version)
			if got.ID != tt.wantID {
				t.Errorf("DetectProduct().ID = %v, want %v", got.ID, tt.wantID)
			}
			if got.Version != tt.wantVer {
				t.Errorf("DetectProduct().Version = %v, want %v", got.Version, tt.wantVer)
			}
		})
	}
}
