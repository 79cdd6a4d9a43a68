package database

import (
	"testing"
)

func TestSafePgIdent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"simple name", "inkwell", "inkwell", true},
		{"underscores and digits", "inkwell_v2", "inkwell_v2", true},
		{"mixed case", "Inkwell", "Inkwell", true},
		{"dash rejected", "ink-well", "", false},
		{"quote rejected", `ink"well`, "", false},
		{"semicolon rejected", "inkwell;drop", "", false},
		{"empty rejected", "", "", false},
		{"spaces rejected", "ink well", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := safePgIdent(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Errorf("safePgIdent(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAdminURLAndDBName(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantAdminURL string
		wantDBName   string
	}{
		{
			"standard URL",
			"postgres://user:pw@localhost:5432/inkwell?sslmode=prefer",
			"postgres://user:pw@localhost:5432/postgres?sslmode=prefer",
			"inkwell",
		},
		{
			"no database in path",
			"postgres://user:pw@localhost:5432",
			"postgres://user:pw@localhost:5432/postgres",
			"",
		},
		{
			"postgres database itself",
			"postgres://user:pw@localhost:5432/postgres",
			"postgres://user:pw@localhost:5432/postgres",
			"postgres",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adminURL, dbName := adminURLAndDBName(tt.input)
			if adminURL != tt.wantAdminURL {
				t.Errorf("admin URL = %s, want %s", adminURL, tt.wantAdminURL)
			}
			if dbName != tt.wantDBName {
				t.Errorf("db name = %s, want %s", dbName, tt.wantDBName)
			}
		})
	}
}
