// Package store keeps the case database: data sources, the file catalog,
// the blackboard of data artifacts and ingest job bookkeeping.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

const (
	dbName     = "case.db"
	derivedDir = "derived"
)

// Opener reads files of a registered data source by their path.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Store is a case stored in a directory. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	derived *os.Root

	mu      sync.RWMutex
	sources map[int64]Opener
	jobs    map[int64]string // ingest job id -> row uuid
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS data_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		added_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data_source_id INTEGER NOT NULL REFERENCES data_sources(id),
		parent_id INTEGER DEFAULT NULL REFERENCES files(id),
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		unallocated BOOLEAN NOT NULL DEFAULT false,
		derived BOOLEAN NOT NULL DEFAULT false,
		md5 TEXT DEFAULT NULL,
		sha256 TEXT DEFAULT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS files_data_source ON files(data_source_id)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data_source_id INTEGER NOT NULL REFERENCES data_sources(id),
		file_id INTEGER DEFAULT NULL REFERENCES files(id),
		type TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS artifacts_data_source ON artifacts(data_source_id)`,
	`CREATE TABLE IF NOT EXISTS artifact_attributes (
		artifact_id INTEGER NOT NULL REFERENCES artifacts(id),
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (artifact_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		job_id INTEGER NOT NULL,
		data_source_id INTEGER NOT NULL REFERENCES data_sources(id),
		context TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP DEFAULT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_modules (
		job_uuid TEXT NOT NULL REFERENCES ingest_jobs(uuid),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		type TEXT NOT NULL,
		PRIMARY KEY (job_uuid, position)
	)`,
}

// InitDB opens the sqlite database at dbPath and creates missing tables.
func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers of the embedded database
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return db, nil
}

// Open opens or creates the case in dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, derivedDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating case directory: %w", err)
	}
	derived, err := os.OpenRoot(filepath.Join(dir, derivedDir))
	if err != nil {
		return nil, err
	}
	db, err := InitDB(ctx, filepath.Join(dir, dbName))
	if err != nil {
		_ = derived.Close()
		return nil, err
	}
	return &Store{
		db:      db,
		derived: derived,
		sources: make(map[int64]Opener),
		jobs:    make(map[int64]string),
	}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.db.Close(), s.derived.Close())
}

// withTx runs fn in a transaction committed when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", "err", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// DataSource is a data source registered in the case.
type DataSource struct {
	id   int64
	name string
}

func (d DataSource) ID() int64      { return d.id }
func (d DataSource) Name() string   { return d.name }
func (d DataSource) String() string { return d.name }

// AddDataSource registers a data source. Content of its files is read
// through src.
func (s *Store) AddDataSource(ctx context.Context, name string, src Opener) (DataSource, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO data_sources (name, added_at) VALUES (?, CURRENT_TIMESTAMP)`, name,
	)
	if err != nil {
		return DataSource{}, fmt.Errorf("executing sql insert failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return DataSource{}, err
	}
	s.mu.Lock()
	s.sources[id] = src
	s.mu.Unlock()
	return DataSource{id: id, name: name}, nil
}

func (s *Store) source(id int64) (Opener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("data source %d: %w", id, ErrNotFound)
	}
	return src, nil
}

func derivedName(id int64) string {
	return strconv.FormatInt(id, 10)
}
