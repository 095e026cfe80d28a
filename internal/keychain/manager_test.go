// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"errors"
	"reflect"
	"testing"

	"github.com/99designs/keyring"
)

func TestProfiles(t *testing.T) {
	m := NewWithRing(keyring.NewArrayKeyring(nil))

	if err := m.SaveProfile("prod", "postgres://u:p@prod/db"); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveProfile("dev", "postgres://u:p@dev/db"); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveProfile("prod", "postgres://u:p2@prod/db"); err != nil {
		t.Fatal(err)
	}

	names, _ := m.ListProfiles()
	if !reflect.DeepEqual(names, []string{"dev", "prod"}) {
		t.Errorf("ListProfiles() = %v", names)
	}
	if got, _ := m.LoadProfile("prod"); got != "postgres://u:p2@prod/db" {
		t.Errorf("LoadProfile(prod) = %q", got)
	}

	if err := m.DeleteProfile("prod"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LoadProfile("prod"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("LoadProfile after delete: %v", err)
	}
	names, _ = m.ListProfiles()
	if !reflect.DeepEqual(names, []string{"dev"}) {
		t.Errorf("ListProfiles() after delete = %v", names)
	}

	if err := m.DeleteProfile("missing"); err != nil {
		t.Errorf("DeleteProfile(missing) = %v", err)
	}
	if err := m.SaveProfile(DefaultProfile, "postgres://u:p@local/db"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.LoadProfile(""); got != "postgres://u:p@local/db" {
		t.Errorf("LoadProfile(\"\") = %q, want the default profile", got)
	}

	if err := m.ClearAll(); err != nil {
		t.Fatal(err)
	}
	if names, _ = m.ListProfiles(); len(names) != 0 {
		t.Errorf("profiles left after ClearAll: %v", names)
	}
}

func TestValidateProfileName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"default", false},
		{"prod-eu_1", false},
		{"", true},
		{"two words", true},
		{"a:b", true},
		{"a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateProfileName(tt.name); (err != nil) != tt.wantErr {
				t.Errorf("ValidateProfileName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}
