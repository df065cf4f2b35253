package main

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"

	appmigrations "github.com/wolfman30/booking-agent/migrations"
)

type fakeMigrator struct {
	upErr   error
	steps   int
	forced  int
	version uint
	verErr  error
}

func (f *fakeMigrator) Up() error { return f.upErr }

func (f *fakeMigrator) Steps(n int) error {
	f.steps = n
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = v
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, f.verErr }

func TestApplyCommands(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 6}
	if msg, err := apply(m, nil); err != nil || msg != "migrations complete" {
		t.Fatalf("up: %q %v", msg, err)
	}
	if _, err := apply(m, []string{"down", "2"}); err != nil || m.steps != -2 {
		t.Fatalf("down: steps=%d err=%v", m.steps, err)
	}
	if _, err := apply(m, []string{"force", "3"}); err != nil || m.forced != 3 {
		t.Fatalf("force: forced=%d err=%v", m.forced, err)
	}
	if msg, err := apply(m, []string{"version"}); err != nil || msg != "version 6 (dirty=false)" {
		t.Fatalf("version: %q %v", msg, err)
	}
	m.verErr = migrate.ErrNilVersion
	if msg, _ := apply(m, []string{"version"}); msg != "no migrations applied" {
		t.Fatalf("nil version: %q", msg)
	}
}

func TestApplyRejectsBadArguments(t *testing.T) {
	m := &fakeMigrator{}
	for _, args := range [][]string{{"down"}, {"down", "x"}, {"down", "0"}, {"force"}, {"sideways"}} {
		if _, err := apply(m, args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(appmigrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	ups, downs := 0, 0
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups++
		case strings.HasSuffix(n, ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}
