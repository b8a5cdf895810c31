package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/CZERTAINLY/Ingestor/internal/datasource"
	"github.com/CZERTAINLY/Ingestor/internal/ingest"
)

const fileColumns = `id, data_source_id, parent_id, path, size, unallocated, derived`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*ingest.File, error) {
	var (
		f      ingest.File
		parent sql.NullInt64
	)
	if err := row.Scan(&f.ID, &f.DataSourceID, &parent, &f.Path, &f.Size, &f.Unallocated, &f.Derived); err != nil {
		return nil, err
	}
	f.ParentID = parent.Int64
	return &f, nil
}

// AddFiles catalogs files found in a data source.
func (s *Store) AddFiles(ctx context.Context, dataSourceID int64, entries []datasource.Entry) ([]*ingest.File, error) {
	ret := make([]*ingest.File, 0, len(entries))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO files (data_source_id, path, size) VALUES (?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			res, err := stmt.ExecContext(ctx, dataSourceID, e.Path, e.Size)
			if err != nil {
				return fmt.Errorf("executing sql insert failed: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ret = append(ret, &ingest.File{
				ID:           id,
				DataSourceID: dataSourceID,
				Path:         e.Path,
				Size:         e.Size,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// AddDerivedFile stores content extracted from parent, for example an
// archive member, and catalogs it under path as a child of parent.
func (s *Store) AddDerivedFile(ctx context.Context, parent *ingest.File, path string, r io.Reader) (*ingest.File, error) {
	f := &ingest.File{
		DataSourceID: parent.DataSourceID,
		ParentID:     parent.ID,
		Path:         path,
		Derived:      true,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO files (data_source_id, parent_id, path, size, derived) VALUES (?, ?, ?, 0, true)`,
			f.DataSourceID, f.ParentID, f.Path,
		)
		if err != nil {
			return fmt.Errorf("executing sql insert failed: %w", err)
		}
		if f.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		out, err := s.derived.Create(derivedName(f.ID))
		if err != nil {
			return err
		}
		n, err := io.Copy(out, r)
		if err = errors.Join(err, out.Close()); err != nil {
			_ = s.derived.Remove(derivedName(f.ID))
			return fmt.Errorf("storing derived file: %w", err)
		}
		f.Size = n

		_, err = tx.ExecContext(ctx, `UPDATE files SET size = ? WHERE id = ?`, n, f.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) File(ctx context.Context, id int64) (*ingest.File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id,
	)
	f, err := scanFile(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	return f, nil
}

// Files returns all files of a data source in the order they were added.
func (s *Store) Files(ctx context.Context, dataSourceID int64) ([]*ingest.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE data_source_id = ? ORDER BY id`, dataSourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer rows.Close()

	var ret []*ingest.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, f)
	}
	return ret, rows.Err()
}

func (s *Store) CountFiles(ctx context.Context, dataSourceID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE data_source_id = ?`, dataSourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("executing sql query failed: %w", err)
	}
	return n, nil
}

// Open returns the content of f. Derived files are read from the case
// directory, the rest from their data source.
func (s *Store) Open(_ context.Context, f *ingest.File) (io.ReadCloser, error) {
	if f.Derived {
		return s.derived.Open(derivedName(f.ID))
	}
	src, err := s.source(f.DataSourceID)
	if err != nil {
		return nil, err
	}
	return src.Open(f.Path)
}

// Hashes are content digests of a file, hex encoded.
type Hashes struct {
	MD5    string
	SHA256 string
}

func (s *Store) SetFileHashes(ctx context.Context, fileID int64, h Hashes) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET md5 = ?, sha256 = ? WHERE id = ?`, h.MD5, h.SHA256, fileID,
	)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching affected rows failed: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("file %d: %w", fileID, ErrNotFound)
	}
	return nil
}

// FileHashes returns the digests of a file. Zero Hashes mean the file was
// not hashed yet.
func (s *Store) FileHashes(ctx context.Context, fileID int64) (Hashes, error) {
	var md5, sha256 sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT md5, sha256 FROM files WHERE id = ?`, fileID,
	).Scan(&md5, &sha256)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Hashes{}, fmt.Errorf("file %d: %w", fileID, ErrNotFound)
	case err != nil:
		return Hashes{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return Hashes{MD5: md5.String, SHA256: sha256.String}, nil
}
