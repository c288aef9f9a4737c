package dbmigrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Files, ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected embedded file %s", name)
		}
	}
	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down script", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("migration %s has no up script", base)
		}
	}

	data, err := fs.ReadFile(Files, "0001_basket_event_log.up.sql")
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	if !strings.Contains(string(data), "basket_events") {
		t.Fatal("initial migration does not create basket_events")
	}
}
