// Package archive persists fetched market data in a local SQLite database
// for offline research. The profile service writes through it best-effort;
// the request path never reads from the archive, so a broken or missing
// archive degrades to logging, not failures.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // database/sql driver registration

	"github.com/ashita-ai/ichiba/internal/service/profile"
	"github.com/ashita-ai/ichiba/migrations"
)

// Archive owns the SQLite handle. Open it on startup and Close it on
// shutdown; opening applies any unapplied embedded migrations.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ profile.Archiver = (*Archive)(nil)

// Open opens (creating if needed) the archive database at path and brings
// its schema up to date. Deployments that run without an archive should
// pass a nil Archiver to the profile service rather than calling Open.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("archive: empty database path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	// SQLite allows a single writer; one pooled connection keeps concurrent
	// section fills from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping %s: %w", path, err)
	}

	a := &Archive{db: db, logger: logger}
	if err := a.migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Ping verifies the database file is still reachable.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// migrate executes unapplied SQL migration files from migrationsFS in
// lexical order. Applied files are tracked in schema_migrations so each
// runs at most once.
func (a *Archive) migrate(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("archive: create schema_migrations: %w", err)
	}

	applied, err := a.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("archive: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("archive: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		if applied[name] {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("archive: read migration %s: %w", name, err)
		}
		a.logger.Info("running archive migration", "file", name)
		if _, err := a.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("archive: execute migration %s: %w", name, err)
		}
		if _, err := a.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, name,
		); err != nil {
			return fmt.Errorf("archive: record migration %s: %w", name, err)
		}
	}
	return nil
}

func (a *Archive) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
