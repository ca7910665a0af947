// Package migrate applies the fleet control plane schema with version tracking.
//
// Migrations are embedded in the binary at compile time, so a server always
// carries the schema it was built against.
//
// # Usage
//
// Call Run() after establishing a database connection but before serving:
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	if err := migrate.Run(ctx, pool, logger); err != nil {
//	    log.Fatal("migration failed:", err)
//	}
//
// # Migration Files
//
// Migrations are SQL files in the migrations directory with the format:
//
//	NNN_descriptive_name.sql
//
// Migrations are applied in version order and each is run in a transaction.
// Several replicas may start at once; a transaction-scoped advisory lock makes
// sure each migration is applied by exactly one of them.
//
// # Version Tracking
//
// Applied migrations are tracked in the schema_migrations table together with
// a checksum of the SQL that ran. Run refuses to start when an applied file
// has since been edited; add a new migration instead.
//
//	CREATE TABLE schema_migrations (
//	    version INTEGER PRIMARY KEY,
//	    name TEXT NOT NULL,
//	    checksum TEXT NOT NULL DEFAULT '',
//	    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
package migrate

import (
	"context"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes migration runs across replicas.
const advisoryLockKey int64 = 0x666c656574 // "fleet"

// Record represents a completed migration in the database.
type Record struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
}

// Status contains information about the current migration state.
type Status struct {
	Version int      `json:"version"`
	Applied []Record `json:"applied"`
	Pending []string `json:"pending"`
	Drifted []string `json:"drifted,omitempty"` // applied files whose SQL has changed
}

// Run executes all pending database migrations.
//
// It creates the schema_migrations table if it doesn't exist, then applies
// any migrations that haven't been run yet, each in its own transaction.
func Run(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	logger.Info("checking database migrations")

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	available, err := getAvailableMigrations()
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}

	records, err := getAppliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	if drifted := drift(available, records); len(drifted) > 0 {
		return fmt.Errorf("applied migrations were modified: %s", strings.Join(drifted, ", "))
	}

	applied := 0
	for _, mig := range available {
		ok, err := applyMigration(ctx, pool, mig)
		if err != nil {
			return fmt.Errorf("applying migration %03d_%s: %w", mig.version, mig.name, err)
		}
		if !ok {
			continue
		}
		applied++
		logger.Info("migration applied",
			"version", mig.version,
			"name", mig.name,
		)
	}

	if applied == 0 {
		logger.Info("database schema is up to date", "version", latestVersion(available))
	} else {
		logger.Info("migrations complete",
			"applied", applied,
			"version", latestVersion(available),
		)
	}
	return nil
}

// GetStatus returns the current migration state for diagnostics.
func GetStatus(ctx context.Context, pool *pgxpool.Pool) (*Status, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'schema_migrations'
		)
	`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking migrations table: %w", err)
	}

	status := &Status{}
	if exists {
		status.Applied, err = getAppliedMigrations(ctx, pool)
		if err != nil {
			return nil, err
		}
	}

	available, err := getAvailableMigrations()
	if err != nil {
		return nil, err
	}
	status.Version, status.Pending = pending(available, status.Applied)
	status.Drifted = drift(available, status.Applied)
	return status, nil
}

// drift returns the applied migrations whose embedded SQL no longer matches
// the recorded checksum. Records without a checksum are not compared.
func drift(available []migration, applied []Record) []string {
	recorded := make(map[int]string, len(applied))
	for _, r := range applied {
		recorded[r.Version] = r.Checksum
	}

	var names []string
	for _, m := range available {
		sum, ok := recorded[m.version]
		if ok && sum != "" && sum != m.checksum {
			names = append(names, fmt.Sprintf("%03d_%s", m.version, m.name))
		}
	}
	return names
}

// pending returns the highest applied version and the names not yet applied.
func pending(available []migration, applied []Record) (int, []string) {
	appliedSet := make(map[int]bool, len(applied))
	version := 0
	for _, r := range applied {
		appliedSet[r.Version] = true
		if r.Version > version {
			version = r.Version
		}
	}

	var names []string
	for _, m := range available {
		if !appliedSet[m.version] {
			names = append(names, fmt.Sprintf("%03d_%s", m.version, m.name))
		}
	}
	return version, names
}

func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''
	`)
	return err
}

func getAppliedMigrations(ctx context.Context, pool *pgxpool.Pool) ([]Record, error) {
	rows, err := pool.Query(ctx, `
		SELECT version, name, checksum, applied_at
		FROM schema_migrations
		ORDER BY version
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Record
	for rows.Next() {
		var m Record
		if err := rows.Scan(&m.Version, &m.Name, &m.Checksum, &m.AppliedAt); err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}
	return migrations, rows.Err()
}

// migration represents a migration file to be applied.
type migration struct {
	version  int
	name     string
	sql      string
	checksum string
}

// checksum is the hex blake2b-256 digest of a migration's SQL.
func checksum(sql []byte) string {
	sum := blake2b.Sum256(sql)
	return hex.EncodeToString(sum[:])
}

// getAvailableMigrations reads all migration files from the embedded filesystem.
func getAvailableMigrations() ([]migration, error) {
	var migrations []migration

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFilename(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parsing migration filename %s: %w", entry.Name(), err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %03d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			version:  version,
			name:     name,
			sql:      string(content),
			checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// parseMigrationFilename extracts version and name from a migration filename.
// Expected format: NNN_name.sql (e.g., "001_initial_schema.sql")
func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected NNN_name.sql)", filename)
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid version number in %s: %w", filename, err)
	}
	if version <= 0 {
		return 0, "", fmt.Errorf("migration version must be positive in %s", filename)
	}
	return version, parts[1], nil
}

// applyMigration runs one migration under the advisory lock. It reports false
// when another replica already applied it.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, mig migration) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return false, fmt.Errorf("acquiring migration lock: %w", err)
	}

	var done bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)
	`, mig.version).Scan(&done); err != nil {
		return false, fmt.Errorf("checking migration record: %w", err)
	}
	if done {
		return false, nil
	}

	// Exec with no arguments uses the simple protocol, so a file may hold
	// several statements.
	if _, err := tx.Exec(ctx, mig.sql); err != nil {
		return false, fmt.Errorf("executing SQL: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)
	`, mig.version, mig.name, mig.checksum); err != nil {
		return false, fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func latestVersion(migrations []migration) int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].version
}
