// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"reflect"
	"testing"
)

func TestKeyValueResolver_Parse(t *testing.T) {
	tests := []struct {
		name        string
		dsn         string
		want        Info
		expectError bool
	}{
		{
			name: "plain values",
			dsn:  "host=db.internal port=5433 dbname=app user=bob password=secret sslmode=require",
			want: Info{Host: "db.internal", Port: "5433", Database: "app", User: "bob", Password: "secret",
				Params: map[string]string{"sslmode": "require"}},
		},
		{
			name: "quoted and escaped values",
			dsn:  `host = localhost dbname='my db' password='it\'s \\ here'`,
			want: Info{Host: "localhost", Database: "my db", Password: `it's \ here`, Params: map[string]string{}},
		},
		{
			name: "keys are case insensitive",
			dsn:  "HOST=localhost DBNAME=app",
			want: Info{Host: "localhost", Database: "app", Params: map[string]string{}},
		},
		{
			name:        "unterminated quote",
			dsn:         "host=localhost password='oops",
			expectError: true,
		},
		{
			name:        "missing equals",
			dsn:         "host localhost",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := NewKeyValueResolver().Parse(tt.dsn)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.want.Format = FormatKeyValue
			tt.want.Original = tt.dsn
			if !reflect.DeepEqual(*info, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", *info, tt.want)
			}
		})
	}
}

func TestKeyValueResolver_NormalizeRoundTrip(t *testing.T) {
	r := NewKeyValueResolver()
	in := `sslmode=disable user=bob password='a b\'c' host=localhost dbname=app application_name=sqlwb`

	info, err := r.Parse(in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Normalize(info)
	if err != nil {
		t.Fatal(err)
	}
	want := `host=localhost dbname=app user=bob password='a b\'c' application_name=sqlwb sslmode=disable`
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}

	again, err := r.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if again.Password != "a b'c" {
		t.Errorf("password after round trip = %q", again.Password)
	}
}

func TestURLResolver_NormalizeIsStable(t *testing.T) {
	r := NewURLResolver()
	info, err := r.Parse("postgres://u:p@h/db?sslmode=disable&connect_timeout=5&application_name=x")
	if err != nil {
		t.Fatal(err)
	}
	want := "postgresql://u:p@h:5432/db?application_name=x&connect_timeout=5&sslmode=disable"
	for i := 0; i < 5; i++ {
		if got, _ := r.Normalize(info); got != want {
			t.Fatalf("Normalize() = %q, want %q", got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	const (
		flagDSN = "postgres://flag:pw@localhost/flagdb"
		envDSN  = "postgres://env:pw@localhost/envdb"
		urlDSN  = "postgres://url:pw@localhost/urldb"
		cfgDSN  = "host=cfg dbname=cfgdb"
		profDSN = "postgres://prof:pw@localhost/profdb"
	)
	profile := func() (string, error) { return profDSN, nil }

	tests := []struct {
		name       string
		opts       ResolveOptions
		env        map[string]string
		wantSource Source
		wantDB     string
		wantErr    bool
	}{
		{name: "flag wins", opts: ResolveOptions{Flag: flagDSN, Config: cfgDSN, Profile: profile},
			env: map[string]string{EnvDSN: envDSN, EnvDatabaseURL: urlDSN}, wantSource: SourceFlag, wantDB: "flagdb"},
		{name: "SQLWB_DSN", opts: ResolveOptions{Config: cfgDSN, Profile: profile},
			env: map[string]string{EnvDSN: envDSN, EnvDatabaseURL: urlDSN}, wantSource: SourceEnv, wantDB: "envdb"},
		{name: "DATABASE_URL", opts: ResolveOptions{Config: cfgDSN, Profile: profile},
			env: map[string]string{EnvDatabaseURL: urlDSN}, wantSource: SourceDatabase, wantDB: "urldb"},
		{name: "config", opts: ResolveOptions{Config: cfgDSN, Profile: profile}, wantSource: SourceConfig, wantDB: "cfgdb"},
		{name: "keychain profile", opts: ResolveOptions{Profile: profile}, wantSource: SourceKeychain, wantDB: "profdb"},
		{name: "nothing configured", opts: ResolveOptions{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDSN, "")
			t.Setenv(EnvDatabaseURL, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, source, err := Resolve(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
			info, err := ParseInfo(got)
			if err != nil {
				t.Fatalf("resolved DSN %q does not parse: %v", got, err)
			}
			if info.Database != tt.wantDB {
				t.Errorf("database = %q, want %q", info.Database, tt.wantDB)
			}
		})
	}
}
