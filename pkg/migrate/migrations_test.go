package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/kiggyshop-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestSchemaMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_items.sql": {
			"CREATE TABLE IF NOT EXISTS items",
			"CHECK (kind IN ('big_print', 'small_print', 'button'))",
			"CHECK (quantity >= 0)",
			"DROP TABLE IF EXISTS items",
		},
		"*_create_checkout_sessions.sql": {
			"CREATE TABLE IF NOT EXISTS checkout_sessions",
			"line_items JSONB NOT NULL",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_checkout_sessions_provider_session",
		},
		"*_create_orders.sql": {
			"CONSTRAINT ux_orders_checkout_session UNIQUE (checkout_session_id)",
			"CONSTRAINT ux_orders_provider_session UNIQUE (provider_session_id)",
			"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
			"CHECK (quantity > 0)",
			"needs_reconciliation BOOLEAN NOT NULL DEFAULT false",
		},
		"*_create_provider_cache.sql": {
			"CONSTRAINT ux_provider_prices_item_amount UNIQUE (item_id, unit_amount_cents, currency)",
		},
		"*_flag_checkout_sessions.sql": {
			"ADD COLUMN IF NOT EXISTS needs_attention BOOLEAN NOT NULL DEFAULT false",
			"DROP COLUMN IF EXISTS needs_attention",
		},
		"*_create_outbox.sql": {
			"CONSTRAINT ux_outbox_events_event_aggregate UNIQUE (event_type, aggregate_type, aggregate_id)",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		content := string(data)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_order_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded()); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	onDisk, _ := filepath.Glob(filepath.Join("migrations", "*.sql"))
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded %d migrations, disk has %d", len(embedded), len(onDisk))
	}
}

func TestCreateSQLMigrationNeverReusesVersion(t *testing.T) {
	dir := t.TempDir()
	first, err := migrate.CreateSQLMigration(dir, "one")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := migrate.CreateSQLMigration(dir, "two")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(first)[:14] == filepath.Base(second)[:14] {
		t.Fatalf("versions collide: %s %s", first, second)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("001_init.sql", "-- +goose Up\n-- +goose Down\n")
	write("20260101000000_a.sql", "-- +goose Up\n")
	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"001_init.sql", "missing \"-- +goose Down\""} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename error")
	}
}
