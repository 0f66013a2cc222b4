package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lotas/tabforest/internal/applog"
	_ "modernc.org/sqlite"
)

// ApplicationID is stamped into PRAGMA application_id ("TabF").
const ApplicationID = 0x54616246

// BusyTimeoutMS is how long a connection waits on a locked database.
const BusyTimeoutMS = 5000

var (
	// ErrForeignDatabase means the file belongs to another application.
	ErrForeignDatabase = errors.New("database file is for a different application")
	// ErrNewerSchema means the file was written by a newer build.
	ErrNewerSchema = errors.New("database was created by a newer version")
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
CREATE TABLE nodes (
    id          INTEGER PRIMARY KEY,
    url_hash    INTEGER NOT NULL,
    url         TEXT NOT NULL,
    favicon_url TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL DEFAULT '',
    visited_at  INTEGER NOT NULL DEFAULT 0,
    group_id    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX nodes_url_hash ON nodes(url_hash);
CREATE TABLE edges (
    id          INTEGER PRIMARY KEY,
    opener_node INTEGER NOT NULL DEFAULT 0,
    from_node   INTEGER NOT NULL,
    to_node     INTEGER NOT NULL DEFAULT 0,
    position    BLOB NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    trashed_at  INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX edges_from_position ON edges(from_node, position);
CREATE INDEX edges_to_node ON edges(to_node);
CREATE TABLE trees (
    id            INTEGER PRIMARY KEY,
    focused_tab   INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,
    closed_at     INTEGER NOT NULL DEFAULT 0,
    expanded_tabs TEXT NOT NULL DEFAULT '[]'
);`,
	},
	{
		Version:     2,
		Description: "add starred_at to nodes",
		SQL:         `ALTER TABLE nodes ADD COLUMN starred_at INTEGER NOT NULL DEFAULT 0;`,
	},
	{
		Version:     3,
		Description: "index trashed edges and closed trees",
		SQL: `
CREATE INDEX edges_trashed_at ON edges(trashed_at) WHERE trashed_at > 0;
CREATE INDEX trees_closed_at ON trees(closed_at);`,
	},
}

// SchemaVersion is the user_version written by this build.
func SchemaVersion() int {
	return migrations[len(migrations)-1].Version
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, checks the application id and
// schema version, enables WAL mode, and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// busy_timeout is per connection, so it goes in the DSN where every
	// pooled connection picks it up.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout("+strconv.Itoa(BusyTimeoutMS)+")")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := checkIdentity(db); err != nil {
		db.Close()
		return nil, err
	}

	// Enable WAL mode for better concurrency.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// checkIdentity refuses files that belong to another application or that a
// newer build has already migrated past what this build understands.
func checkIdentity(db *sql.DB) error {
	var appID int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		return fmt.Errorf("read application_id: %w", err)
	}
	if appID != 0 && appID != ApplicationID {
		return fmt.Errorf("%w (application_id %#x)", ErrForeignDatabase, appID)
	}
	if appID == 0 {
		// Fresh file, or one that has tables but no stamp.
		var tables int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&tables); err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}
		if tables > 0 {
			var ours int
			if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&ours); err != nil {
				return fmt.Errorf("inspect schema: %w", err)
			}
			if ours == 0 {
				return ErrForeignDatabase
			}
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", ApplicationID)); err != nil {
			return fmt.Errorf("set application_id: %w", err)
		}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > SchemaVersion() {
		return fmt.Errorf("%w (user_version %d, supported %d)", ErrNewerSchema, version, SchemaVersion())
	}
	return nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// pending migrations in order, each inside its own transaction, then stamps
// user_version with the latest applied version.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		applog.Info("storage.migrated", "version", m.Version, "description", m.Description)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion())); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabforest/tabforest.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabforest", "tabforest.db"), nil
}
