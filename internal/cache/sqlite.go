package cache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fenilsonani/treeaudit/internal/scanner"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps inventories in a SQLite database, one row set per target
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// brings its schema up to date.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
}

func runMigrations(dbPath string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// The migrate driver closes the handle it is given, so it gets its own.
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{
		DatabaseName: dbPath,
		NoTxWrap:     true,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load reads the stored inventory for target. A header whose file count does
// not match the stored rows is treated as absent.
func (s *SQLiteStore) Load(target string) (*Snapshot, bool) {
	var savedAt, fileCount int64
	var follow bool
	err := s.db.QueryRow(
		`SELECT saved_at, file_count, follow_symlinks FROM scans WHERE target = ?`, target,
	).Scan(&savedAt, &fileCount, &follow)
	if err != nil {
		return nil, false
	}

	excludes, err := s.loadExcludes(target)
	if err != nil {
		return nil, false
	}

	rows, err := s.db.Query(
		`SELECT path, size, mod_time FROM scan_records WHERE target = ? ORDER BY seq`, target,
	)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	records := make([]scanner.FileRecord, 0, fileCount)
	for rows.Next() {
		var rec scanner.FileRecord
		var modTime int64
		if err := rows.Scan(&rec.Path, &rec.Size, &modTime); err != nil {
			return nil, false
		}
		rec.ModTime = time.Unix(0, modTime)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false
	}
	if int64(len(records)) != fileCount {
		return nil, false
	}

	return &Snapshot{
		Target:         target,
		SavedAt:        time.Unix(0, savedAt),
		FollowSymlinks: follow,
		Excludes:       excludes,
		Records:        records,
	}, true
}

func (s *SQLiteStore) loadExcludes(target string) ([]string, error) {
	rows, err := s.db.Query(`SELECT prefix FROM scan_excludes WHERE target = ? ORDER BY prefix`, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var excludes []string
	for rows.Next() {
		var prefix string
		if err := rows.Scan(&prefix); err != nil {
			return nil, err
		}
		excludes = append(excludes, prefix)
	}
	return excludes, rows.Err()
}

// Save replaces the stored inventory for snap.Target in one transaction
func (s *SQLiteStore) Save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	target := snap.Target
	if err := clearTx(tx, target); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO scan_records (target, seq, path, size, mod_time) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range snap.Records {
		if _, err := stmt.Exec(target, i, rec.Path, rec.Size, rec.ModTime.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Path, err)
		}
	}

	for _, prefix := range snap.Excludes {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO scan_excludes (target, prefix) VALUES (?, ?)`, target, prefix,
		); err != nil {
			return fmt.Errorf("failed to insert exclude %s: %w", prefix, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO scans (target, saved_at, file_count, follow_symlinks) VALUES (?, ?, ?, ?)`,
		target, time.Now().UnixNano(), len(snap.Records), snap.FollowSymlinks,
	); err != nil {
		return fmt.Errorf("failed to insert scan header: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}
	return nil
}

// Clear removes the stored inventory for target
func (s *SQLiteStore) Clear(target string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearTx(tx, target); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}
	return nil
}

func clearTx(tx *sql.Tx, target string) error {
	if _, err := tx.Exec(`DELETE FROM scan_records WHERE target = ?`, target); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM scan_excludes WHERE target = ?`, target); err != nil {
		return fmt.Errorf("failed to delete excludes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM scans WHERE target = ?`, target); err != nil {
		return fmt.Errorf("failed to delete scan header: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
