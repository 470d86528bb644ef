package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"boardpilot/internal/domain"
)

// SQLiteStore implements domain.CanvasStore and domain.JobStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open canvas db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate canvas db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS objects (
			id         TEXT NOT NULL,
			canvas_id  TEXT NOT NULL,
			type       TEXT NOT NULL,
			text       TEXT NOT NULL DEFAULT '',
			x          REAL NOT NULL DEFAULT 0,
			y          REAL NOT NULL DEFAULT 0,
			width      REAL NOT NULL DEFAULT 0,
			height     REAL NOT NULL DEFAULT 0,
			color      TEXT NOT NULL DEFAULT '',
			parent_id  TEXT NOT NULL DEFAULT '',
			z          INTEGER NOT NULL DEFAULT 0,
			rotation   REAL NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (canvas_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS connectors (
			id           TEXT NOT NULL,
			canvas_id    TEXT NOT NULL,
			from_id      TEXT NOT NULL DEFAULT '',
			to_id        TEXT NOT NULL DEFAULT '',
			from_point   TEXT,
			to_point     TEXT,
			style        TEXT NOT NULL DEFAULT 'arrow',
			color        TEXT NOT NULL DEFAULT '',
			stroke_width REAL NOT NULL DEFAULT 0,
			label        TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			PRIMARY KEY (canvas_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			canvas_id     TEXT NOT NULL,
			job_id        TEXT NOT NULL,
			command       TEXT NOT NULL DEFAULT '',
			user_id       TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'pending',
			start_version INTEGER NOT NULL DEFAULT 0,
			end_version   INTEGER NOT NULL DEFAULT 0,
			progress      TEXT NOT NULL DEFAULT '[]',
			result        TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (canvas_id, job_id)
		)`,
		`CREATE TABLE IF NOT EXISTS canvas_versions (
			canvas_id TEXT PRIMARY KEY,
			version   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_connectors_from ON connectors (canvas_id, from_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connectors_to ON connectors (canvas_id, to_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status, updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const objectCols = "id, canvas_id, type, text, x, y, width, height, color, parent_id, z, rotation, created_by, created_at, updated_at"

func (s *SQLiteStore) ListObjects(ctx context.Context, canvasID string) ([]domain.Object, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+objectCols+" FROM objects WHERE canvas_id = ? ORDER BY z, created_at", canvasID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []domain.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, rows.Err()
}

func (s *SQLiteStore) GetObject(ctx context.Context, canvasID, objectID string) (*domain.Object, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+objectCols+" FROM objects WHERE canvas_id = ? AND id = ?", canvasID, objectID)
	obj, err := scanObject(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewSubSystemError("object", "Store.GetObject", domain.ErrNotFound, objectID)
	}
	return obj, err
}

func (s *SQLiteStore) InsertObject(ctx context.Context, obj *domain.Object) error {
	now := time.Now().UTC()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}
	obj.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO objects ("+objectCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		obj.ID, obj.CanvasID, string(obj.Type), obj.Text, obj.X, obj.Y, obj.Width, obj.Height,
		obj.Color, obj.ParentID, obj.Z, obj.Rotation, obj.CreatedBy,
		obj.CreatedAt.Format(time.RFC3339Nano), obj.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) UpdateObject(ctx context.Context, obj *domain.Object) error {
	obj.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET type = ?, text = ?, x = ?, y = ?, width = ?, height = ?,
		 color = ?, parent_id = ?, z = ?, rotation = ?, updated_at = ?
		 WHERE canvas_id = ? AND id = ?`,
		string(obj.Type), obj.Text, obj.X, obj.Y, obj.Width, obj.Height,
		obj.Color, obj.ParentID, obj.Z, obj.Rotation,
		obj.UpdatedAt.Format(time.RFC3339Nano), obj.CanvasID, obj.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewSubSystemError("object", "Store.UpdateObject", domain.ErrNotFound, obj.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteObject(ctx context.Context, canvasID, objectID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM objects WHERE canvas_id = ? AND id = ?", canvasID, objectID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewSubSystemError("object", "Store.DeleteObject", domain.ErrNotFound, objectID)
	}
	return nil
}

const connectorCols = "id, canvas_id, from_id, to_id, from_point, to_point, style, color, stroke_width, label, created_at"

func (s *SQLiteStore) ListConnectors(ctx context.Context, canvasID string) ([]domain.Connector, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+connectorCols+" FROM connectors WHERE canvas_id = ? ORDER BY created_at", canvasID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.Connector
	for rows.Next() {
		conn, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

func (s *SQLiteStore) InsertConnector(ctx context.Context, conn *domain.Connector) error {
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}
	fromPt, err := marshalPoint(conn.FromPoint)
	if err != nil {
		return err
	}
	toPt, err := marshalPoint(conn.ToPoint)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO connectors ("+connectorCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		conn.ID, conn.CanvasID, conn.FromID, conn.ToID, fromPt, toPt,
		string(conn.Style), conn.Color, conn.StrokeWidth, conn.Label,
		conn.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) DeleteConnector(ctx context.Context, canvasID, connectorID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM connectors WHERE canvas_id = ? AND id = ?", canvasID, connectorID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewSubSystemError("connector", "Store.DeleteConnector", domain.ErrNotFound, connectorID)
	}
	return nil
}

func (s *SQLiteStore) DeleteConnectorsForObject(ctx context.Context, canvasID, objectID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM connectors WHERE canvas_id = ? AND (from_id = ? OR to_id = ?)",
		canvasID, objectID, objectID)
	return err
}

func (s *SQLiteStore) LoadJob(ctx context.Context, canvasID, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT canvas_id, job_id, command, user_id, status, start_version, end_version,
		 progress, result, created_at, updated_at
		 FROM jobs WHERE canvas_id = ? AND job_id = ?`, canvasID, jobID)

	var job domain.Job
	var status, progressStr, createdStr, updatedStr string
	var resultStr sql.NullString
	err := row.Scan(&job.CanvasID, &job.JobID, &job.Command, &job.UserID, &status,
		&job.StartVersion, &job.EndVersion, &progressStr, &resultStr, &createdStr, &updatedStr)
	if err == sql.ErrNoRows {
		return nil, domain.NewSubSystemError("job", "Store.LoadJob", domain.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal([]byte(progressStr), &job.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal job progress: %w", err)
	}
	if resultStr.Valid && resultStr.String != "" {
		job.Result = &domain.ExecutionResult{}
		if err := json.Unmarshal([]byte(resultStr.String), job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &job, nil
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *domain.Job) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("marshal job progress: %w", err)
	}
	var result sql.NullString
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (canvas_id, job_id, command, user_id, status, start_version,
		 end_version, progress, result, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (canvas_id, job_id) DO UPDATE SET
		 status = excluded.status, start_version = excluded.start_version,
		 end_version = excluded.end_version, progress = excluded.progress,
		 result = excluded.result, updated_at = excluded.updated_at`,
		job.CanvasID, job.JobID, job.Command, job.UserID, string(job.Status),
		job.StartVersion, job.EndVersion, string(progress), result,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// ListStaleJobs returns full job rows so that expiring them via SaveJob keeps
// the command, user, versions, and progress trail intact.
func (s *SQLiteStore) ListStaleJobs(ctx context.Context, maxAgeSeconds int64) ([]domain.Job, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeSeconds) * time.Second)
	rows, err := s.db.QueryContext(ctx,
		`SELECT canvas_id, job_id, command, user_id, status, start_version, end_version,
		 progress, result, created_at, updated_at
		 FROM jobs WHERE status NOT IN ('completed', 'failed') AND updated_at < ?`,
		cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		var status, progressStr, createdStr, updatedStr string
		var resultStr sql.NullString
		if err := rows.Scan(&job.CanvasID, &job.JobID, &job.Command, &job.UserID, &status,
			&job.StartVersion, &job.EndVersion, &progressStr, &resultStr, &createdStr, &updatedStr); err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		if err := json.Unmarshal([]byte(progressStr), &job.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal job progress: %w", err)
		}
		if resultStr.Valid && resultStr.String != "" {
			job.Result = &domain.ExecutionResult{}
			if err := json.Unmarshal([]byte(resultStr.String), job.Result); err != nil {
				return nil, fmt.Errorf("unmarshal job result: %w", err)
			}
		}
		job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) GetVersion(ctx context.Context, canvasID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM canvas_versions WHERE canvas_id = ?", canvasID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

func (s *SQLiteStore) IncrementVersion(ctx context.Context, canvasID string) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_versions (canvas_id, version) VALUES (?, 1)
		 ON CONFLICT (canvas_id) DO UPDATE SET version = version + 1`, canvasID)
	if err != nil {
		return 0, err
	}
	return s.GetVersion(ctx, canvasID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObject(sc scanner) (*domain.Object, error) {
	var obj domain.Object
	var objType, createdStr, updatedStr string
	err := sc.Scan(&obj.ID, &obj.CanvasID, &objType, &obj.Text, &obj.X, &obj.Y,
		&obj.Width, &obj.Height, &obj.Color, &obj.ParentID, &obj.Z, &obj.Rotation,
		&obj.CreatedBy, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}
	obj.Type = domain.ObjectType(objType)
	obj.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	obj.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &obj, nil
}

func scanConnector(sc scanner) (*domain.Connector, error) {
	var conn domain.Connector
	var style, createdStr string
	var fromPt, toPt sql.NullString
	err := sc.Scan(&conn.ID, &conn.CanvasID, &conn.FromID, &conn.ToID, &fromPt, &toPt,
		&style, &conn.Color, &conn.StrokeWidth, &conn.Label, &createdStr)
	if err != nil {
		return nil, err
	}
	conn.Style = domain.ConnectorStyle(style)
	if conn.FromPoint, err = unmarshalPoint(fromPt); err != nil {
		return nil, err
	}
	if conn.ToPoint, err = unmarshalPoint(toPt); err != nil {
		return nil, err
	}
	conn.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return &conn, nil
}

func marshalPoint(p *domain.Point) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal point: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalPoint(ns sql.NullString) (*domain.Point, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var p domain.Point
	if err := json.Unmarshal([]byte(ns.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshal point: %w", err)
	}
	return &p, nil
}
