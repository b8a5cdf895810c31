package store

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
)

// Artifacts returns the data artifacts of a data source ordered by id.
func (s *Store) Artifacts(ctx context.Context, dataSourceID int64) ([]ingest.DataArtifact, error) {
	var ret []ingest.DataArtifact
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, data_source_id, file_id, type FROM artifacts WHERE data_source_id = ? ORDER BY id`,
			dataSourceID,
		)
		if err != nil {
			return fmt.Errorf("executing sql query failed: %w", err)
		}
		index := make(map[int64]int)
		for rows.Next() {
			var (
				a      ingest.DataArtifact
				fileID sql.NullInt64
			)
			if err := rows.Scan(&a.ID, &a.DataSourceID, &fileID, &a.Type); err != nil {
				_ = rows.Close()
				return err
			}
			a.FileID = fileID.Int64
			a.Attributes = make(map[string]string)
			index[a.ID] = len(ret)
			ret = append(ret, a)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		attrs, err := tx.QueryContext(ctx,
			`SELECT a.artifact_id, a.name, a.value FROM artifact_attributes a
			 JOIN artifacts r ON r.id = a.artifact_id
			 WHERE r.data_source_id = ?`,
			dataSourceID,
		)
		if err != nil {
			return fmt.Errorf("executing sql query failed: %w", err)
		}
		defer attrs.Close()
		for attrs.Next() {
			var (
				id          int64
				name, value string
			)
			if err := attrs.Scan(&id, &name, &value); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				ret[i].Attributes[name] = value
			}
		}
		return attrs.Err()
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// PostArtifacts stores artifacts and returns them with ids assigned.
func (s *Store) PostArtifacts(ctx context.Context, artifacts []ingest.DataArtifact) ([]ingest.DataArtifact, error) {
	ret := make([]ingest.DataArtifact, 0, len(artifacts))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range artifacts {
			var fileID sql.NullInt64
			if a.FileID != 0 {
				fileID = sql.NullInt64{Int64: a.FileID, Valid: true}
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO artifacts (data_source_id, file_id, type) VALUES (?, ?, ?)`,
				a.DataSourceID, fileID, a.Type,
			)
			if err != nil {
				return fmt.Errorf("executing sql insert failed: %w", err)
			}
			if a.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			for _, name := range slices.Sorted(maps.Keys(a.Attributes)) {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO artifact_attributes (artifact_id, name, value) VALUES (?, ?, ?)`,
					a.ID, name, a.Attributes[name],
				)
				if err != nil {
					return fmt.Errorf("executing sql insert failed: %w", err)
				}
			}
			a.Attributes = maps.Clone(a.Attributes)
			ret = append(ret, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
