package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/google/uuid"
)

// Job is an ingest job as recorded in the case.
type Job struct {
	UUID         string
	JobID        int64
	DataSourceID int64
	Context      string
	Status       string
	Start        time.Time
	End          *time.Time
	Modules      []ingest.ModuleInfo
}

// RecordJobStart stores the job and the modules of its pipelines.
func (s *Store) RecordJobStart(ctx context.Context, info ingest.JobInfo, start time.Time) error {
	id := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ingest_jobs (uuid, job_id, data_source_id, context, status, start_time)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, info.ID, info.DataSourceID, info.Context, ingest.StatusStarted.String(), start.UTC(),
		)
		if err != nil {
			return fmt.Errorf("executing sql insert failed: %w", err)
		}
		for pos, m := range info.Modules {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO ingest_modules (job_uuid, position, name, version, type) VALUES (?, ?, ?, ?, ?)`,
				id, pos, m.Name, m.Version, m.Type.String(),
			)
			if err != nil {
				return fmt.Errorf("executing sql insert failed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[info.ID] = id
	s.mu.Unlock()
	return nil
}

// RecordJobEnd stores the final status of a job. ErrAlreadyFinished is
// returned when the end was recorded before.
func (s *Store) RecordJobEnd(ctx context.Context, jobID int64, status ingest.JobStatus, end time.Time) error {
	s.mu.RLock()
	id, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ingest job %d: %w", jobID, ErrNotFound)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var finished sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT end_time FROM ingest_jobs WHERE uuid = ?`, id,
		).Scan(&finished)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("executing sql query failed: %w", err)
		case finished.Valid:
			return ErrAlreadyFinished
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE ingest_jobs SET status = ?, end_time = ? WHERE uuid = ?`,
			status.String(), end.UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("executing sql update failed: %w", err)
		}
		return nil
	})
}

// Jobs returns the recorded jobs of a data source, oldest first.
func (s *Store) Jobs(ctx context.Context, dataSourceID int64) ([]Job, error) {
	var ret []Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT uuid, job_id, data_source_id, context, status, start_time, end_time
			 FROM ingest_jobs WHERE data_source_id = ? ORDER BY id`,
			dataSourceID,
		)
		if err != nil {
			return fmt.Errorf("executing sql query failed: %w", err)
		}
		for rows.Next() {
			var (
				j   Job
				end sql.NullTime
			)
			if err := rows.Scan(&j.UUID, &j.JobID, &j.DataSourceID, &j.Context, &j.Status, &j.Start, &end); err != nil {
				_ = rows.Close()
				return err
			}
			if end.Valid {
				j.End = &end.Time
			}
			ret = append(ret, j)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range ret {
			modules, err := tx.QueryContext(ctx,
				`SELECT name, version, type FROM ingest_modules WHERE job_uuid = ? ORDER BY position`,
				ret[i].UUID,
			)
			if err != nil {
				return fmt.Errorf("executing sql query failed: %w", err)
			}
			for modules.Next() {
				var (
					m   ingest.ModuleInfo
					typ string
				)
				if err := modules.Scan(&m.Name, &m.Version, &typ); err != nil {
					_ = modules.Close()
					return err
				}
				m.Type = ingest.ParseModuleType(typ)
				ret[i].Modules = append(ret[i].Modules, m)
			}
			if err := modules.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
