package db

import (
	"io/fs"
	"testing"
)

func TestEmbeddedMigrationsPaired(t *testing.T) {
	ups, err := fs.Glob(Migrations(), "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for _, up := range ups {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		if _, err := fs.Stat(Migrations(), down); err != nil {
			t.Fatalf("missing %s for %s", down, up)
		}
	}
	seeds, _ := fs.Glob(Seeds(), "*.sql")
	if len(seeds) == 0 {
		t.Fatal("no seeds embedded")
	}
}
