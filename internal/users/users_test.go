package users

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pulse-mcp/internal/cache"
)

const sample = `
default_user: jane
users:
  - id: jane
    email: jane.doe@example.com
    display_name: Jane Doe
    projects: [PULSE, OPS]
    schedule:
      enabled: true
      frequency: custom
      days: [mon, wed, fri]
  - email: john@example.com
    schedule:
      enabled: false
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	jane, err := d.Lookup("")
	if err != nil {
		t.Fatalf("Lookup(default) error = %v", err)
	}
	if jane.ID != "jane" || len(jane.Projects) != 2 {
		t.Errorf("default profile = %+v", jane)
	}
	if jane.Cadence.Frequency != cache.Custom || len(jane.Cadence.Days) != 3 || jane.Cadence.Days[1] != time.Wednesday {
		t.Errorf("cadence = %+v", jane.Cadence)
	}
	if got := cache.MaxAgeHours(jane.Cadence); got != 72 {
		t.Errorf("MaxAgeHours() = %d, want 72", got)
	}

	john, err := d.Lookup("john@example.com")
	if err != nil {
		t.Fatalf("Lookup(john) error = %v", err)
	}
	if cache.MaxAgeHours(john.Cadence) != 168 {
		t.Errorf("disabled schedule should fall back to 168h")
	}

	if _, err := d.Lookup("nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Lookup(nobody) error = %v, want ErrUnknownUser", err)
	}
	if len(d.All()) != 2 {
		t.Errorf("All() = %d profiles, want 2", len(d.All()))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad weekday", "users:\n  - id: a\n    schedule:\n      days: [funday]\n"},
		{"missing id", "users:\n  - display_name: nobody\n"},
		{"duplicate", "users:\n  - id: a\n  - id: a\n"},
		{"unknown default", "default_user: b\nusers:\n  - id: a\n"},
		{"not yaml", "users: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file should fail")
	}
}

func TestSingle(t *testing.T) {
	d := Single(Profile{ID: "me@example.com", Email: "me@example.com"})
	p, err := d.Lookup("")
	if err != nil || p.Email != "me@example.com" {
		t.Errorf("Lookup() = %+v, %v", p, err)
	}
}
