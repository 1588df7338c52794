package postgres

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrations_Sequential(t *testing.T) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("open embedded migrations: %v", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	var versions []uint
	for {
		versions = append(versions, v)
		next, err := src.Next(v)
		if err != nil {
			break
		}
		v = next
	}

	for i, got := range versions {
		if want := uint(i + 1); got != want {
			t.Fatalf("migration %d has version %d, want %d", i, got, want)
		}
	}
	if len(versions) < 2 {
		t.Errorf("expected catalog and seed migrations, got %v", versions)
	}
}

func TestEmbeddedMigrations_HaveDown(t *testing.T) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("open embedded migrations: %v", err)
	}
	defer src.Close()

	for v := uint(1); v <= 2; v++ {
		r, _, err := src.ReadDown(v)
		if err != nil {
			t.Errorf("version %d has no down migration: %v", v, err)
			continue
		}
		r.Close()
	}
}
