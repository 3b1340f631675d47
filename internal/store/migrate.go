package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// migrationLockKey serializes migration runs across API replicas that boot
// at the same time.
const migrationLockKey int64 = 728394021

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// ApplyMigrations runs every *.up.sql file in migrationsDir that is not yet
// recorded in schema_migrations, in file name order, one transaction per
// file.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		files, err := migrationFiles(migrationsDir, upSuffix)
		if err != nil {
			return err
		}
		for _, file := range files {
			version := migrationVersion(file, upSuffix)
			applied, err := isMigrated(ctx, conn, version)
			if err != nil {
				return err
			}
			if applied {
				continue
			}
			if err := runMigration(ctx, conn, file, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
				return err
			}
			log.WithField("version", version).Info("migration applied")
		}
		return nil
	})
}

// RollbackMigrations runs the *.down.sql file of every applied migration,
// newest first, and forgets it in schema_migrations.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		files, err := migrationFiles(migrationsDir, downSuffix)
		if err != nil {
			return err
		}
		for i := len(files) - 1; i >= 0; i-- {
			version := migrationVersion(files[i], downSuffix)
			applied, err := isMigrated(ctx, conn, version)
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			if err := runMigration(ctx, conn, files[i], `DELETE FROM schema_migrations WHERE version=$1`, version); err != nil {
				return err
			}
			log.WithField("version", version).Info("migration rolled back")
		}
		return nil
	})
}

func withMigrationLock(ctx context.Context, db *sql.DB, fn func(*sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			log.WithError(err).Warn("migration unlock failed")
		}
	}()

	if err := ensureMigrationsTable(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

// runMigration executes one SQL file and its bookkeeping statement in a
// single transaction.
func runMigration(ctx context.Context, conn *sql.Conn, file, record, version string) error {
	contents, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	if body := strings.TrimSpace(string(contents)); body != "" {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", filepath.Base(file), err)
		}
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

// migrationVersion maps both 0001_boards.up.sql and 0001_boards.down.sql to
// the recorded version 0001_boards.up.sql.
func migrationVersion(file, suffix string) string {
	return strings.TrimSuffix(filepath.Base(file), suffix) + upSuffix
}

func migrationFiles(migrationsDir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, filepath.Join(migrationsDir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func ensureMigrationsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, conn *sql.Conn, version string) (bool, error) {
	var exists bool
	err := conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
