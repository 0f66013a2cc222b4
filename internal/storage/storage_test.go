package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func pragma(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var v int64
	if err := db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return v
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "tabforest.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not found: %v", err)
	}

	// Verify tables exist.
	_, err = db.Exec(`INSERT INTO nodes (url_hash, url) VALUES (1, 'http://example.com/')`)
	if err != nil {
		t.Fatalf("insert into nodes: %v", err)
	}
	_, err = db.Exec(`INSERT INTO trees (created_at) VALUES (1)`)
	if err != nil {
		t.Fatalf("insert into trees: %v", err)
	}
}

func TestOpenDB_FreshDB_AllMigrations(t *testing.T) {
	db := testDB(t)

	// All migrations should be recorded.
	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
	if v := pragma(t, db, "user_version"); v != int64(SchemaVersion()) {
		t.Errorf("user_version = %d, want %d", v, SchemaVersion())
	}
	if id := pragma(t, db, "application_id"); id != ApplicationID {
		t.Errorf("application_id = %#x, want %#x", id, ApplicationID)
	}

	// Columns from later migrations are present.
	if _, err := db.Exec(`INSERT INTO nodes (url_hash, url, starred_at) VALUES (1, 'x', 5)`); err != nil {
		t.Errorf("starred_at column: %v", err)
	}
}

func TestSiblingPositionsAreUnique(t *testing.T) {
	db := testDB(t)

	insert := `INSERT INTO edges (from_node, position, created_at) VALUES (?, ?, 1)`
	if _, err := db.Exec(insert, 1, []byte{0x80}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert, 1, []byte{0x80}); err == nil {
		t.Fatal("expected unique constraint violation")
	}
	if _, err := db.Exec(insert, 2, []byte{0x80}); err != nil {
		t.Fatalf("same position under another parent: %v", err)
	}
}

func TestPositionsSortAsBytes(t *testing.T) {
	db := testDB(t)

	for i, pos := range [][]byte{{0x80}, {0x7f, 0xff, 0x01}, {0x80, 0x01}, {0x10}} {
		if _, err := db.Exec(`INSERT INTO edges (id, from_node, position, created_at) VALUES (?, 1, ?, 1)`, i+1, pos); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rows, err := db.Query(`SELECT id FROM edges WHERE from_node = 1 ORDER BY position`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var got []int
	for rows.Next() {
		var id int
		rows.Scan(&id)
		got = append(got, id)
	}
	want := []int{4, 2, 1, 3}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOpenDB_IdempotentMigrations(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "idempotent.db")

	// Open twice, the second time should be a no-op.
	db1, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("first OpenDB: %v", err)
	}
	db1.Exec(`INSERT INTO nodes (url_hash, url) VALUES (1, 'http://example.com/')`)
	db1.Close()

	db2, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("second OpenDB: %v", err)
	}
	defer db2.Close()

	// Data should survive.
	var n int
	db2.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&n)
	if n != 1 {
		t.Errorf("expected existing node to survive reopening, got %d rows", n)
	}
}

func TestOpenDB_ForeignApplicationID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "foreign.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("PRAGMA application_id = 1234"); err != nil {
		t.Fatalf("set application_id: %v", err)
	}
	db.Close()

	if _, err := OpenDB(dbPath); !errors.Is(err, ErrForeignDatabase) {
		t.Errorf("OpenDB error = %v, want ErrForeignDatabase", err)
	}
}

func TestOpenDB_UnstampedTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE bookmarks (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	db.Close()

	if _, err := OpenDB(dbPath); !errors.Is(err, ErrForeignDatabase) {
		t.Errorf("OpenDB error = %v, want ErrForeignDatabase", err)
	}
}

func TestOpenDB_RestampsOwnSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tabforest.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	// Lose the stamp, keep the tables.
	if _, err := db.Exec("PRAGMA application_id = 0"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = OpenDB(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var appID int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		t.Fatal(err)
	}
	if appID != ApplicationID {
		t.Errorf("application_id = %#x, want %#x", appID, ApplicationID)
	}
}

func TestOpenDB_Pragmas(t *testing.T) {
	db := testDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	// Every pooled connection waits on locks, not just the first.
	db.SetMaxOpenConns(3)
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		c, err := db.Conn(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		conns[i] = c
	}
	for i, c := range conns {
		var ms int
		if err := c.QueryRowContext(context.Background(), "PRAGMA busy_timeout").Scan(&ms); err != nil {
			t.Fatal(err)
		}
		if ms != BusyTimeoutMS {
			t.Errorf("conn %d busy_timeout = %d, want %d", i, ms, BusyTimeoutMS)
		}
	}
}

func TestOpenDB_NewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "newer.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 999"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	db.Close()

	if _, err := OpenDB(dbPath); !errors.Is(err, ErrNewerSchema) {
		t.Errorf("OpenDB error = %v, want ErrNewerSchema", err)
	}
}

func TestDefaultDBPath(t *testing.T) {
	p, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	if filepath.Base(p) != "tabforest.db" {
		t.Errorf("expected filename tabforest.db, got %s", filepath.Base(p))
	}
	if !filepath.IsAbs(p) {
		t.Errorf("expected absolute path, got %s", p)
	}
}
