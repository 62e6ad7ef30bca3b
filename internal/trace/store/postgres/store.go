// Package postgres stores trace records in a JSONB column. The attribute document
// is persisted in the record wire shape, version and region tags included, so
// aggregations see exactly what a document store would.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tracekeeper/internal/trace/models"
	"tracekeeper/pkg/platform/sentinel"
	"tracekeeper/pkg/platform/tx"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS traces (
	id         uuid PRIMARY KEY,
	attributes jsonb NOT NULL DEFAULT '{}'::jsonb,
	event_time timestamptz,
	sys_time   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS traces_trade_id_event_time_idx
	ON traces ((attributes->>'trade_id'), event_time DESC)
	WHERE attributes ? 'trade_id';
CREATE INDEX IF NOT EXISTS traces_semconv_version_idx
	ON traces ((attributes->>'semconv_version'), id);
CREATE INDEX IF NOT EXISTS traces_attributes_idx
	ON traces USING GIN (attributes jsonb_path_ops);
CREATE TABLE IF NOT EXISTS schema_versions (
	version text NOT NULL,
	CONSTRAINT schema_versions_version_key UNIQUE (version)
);
`

const selectColumns = `SELECT id, attributes, event_time, sys_time FROM traces`

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Store persists trace records in PostgreSQL.
// This store is pure I/O; migration and audit rules live in the services.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the tables and indexes and seeds the version tags.
func (s *Store) EnsureIndexes(ctx context.Context, knownVersions []string) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return wrapErr("ensure schema", err)
	}
	for _, v := range knownVersions {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_versions (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, v); err != nil {
			return wrapErr("seed schema version", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec *models.TraceRecord) (models.RecordID, error) {
	if rec == nil {
		return "", fmt.Errorf("insert trace: record is required")
	}
	id := rec.ID
	if id.IsNil() {
		generated, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("insert trace: generate id: %w", err)
		}
		id = models.RecordID(generated.String())
	} else if _, err := uuid.Parse(id.String()); err != nil {
		return "", fmt.Errorf("insert trace: id %q is not a uuid", id)
	}

	attrs, err := json.Marshal(rec.StoredAttributes())
	if err != nil {
		return "", fmt.Errorf("insert trace: encode attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO traces (id, attributes, event_time, sys_time) VALUES ($1, $2, $3, $4)`,
		id.String(), attrs, nullTime(rec.EventTime), rec.StoreTime,
	)
	if err != nil {
		return "", wrapErr("insert trace", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id models.RecordID) (*models.TraceRecord, error) {
	if _, err := uuid.Parse(id.String()); err != nil {
		return nil, fmt.Errorf("get trace %s: %w", id, sentinel.ErrNotFound)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id.String()))
	if err != nil {
		return nil, wrapErr("get trace "+id.String(), err)
	}
	return rec, nil
}

func (s *Store) ListByVersion(ctx context.Context, version string, afterID models.RecordID, limit int) ([]*models.TraceRecord, error) {
	after := uuid.Nil.String()
	if !afterID.IsNil() {
		after = afterID.String()
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE attributes->>'semconv_version' = $1 AND id > $2 ORDER BY id LIMIT $3`,
		version, after, limit,
	)
	if err != nil {
		return nil, wrapErr("list traces by version", err)
	}
	defer rows.Close()

	var out []*models.TraceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list traces by version", err)
	}
	return out, nil
}

// FindByAttributes uses jsonb containment, so numbers compare by value and the
// GIN index on attributes serves the lookup.
func (s *Store) FindByAttributes(ctx context.Context, match models.AttributeMatch, limit int) ([]*models.TraceRecord, error) {
	doc, err := match.Nested()
	if err != nil {
		return nil, fmt.Errorf("find traces: %w", err)
	}
	filter, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("find traces: encode match: %w", err)
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE attributes @> $1::jsonb ORDER BY id LIMIT $2`,
		filter, limit,
	)
	if err != nil {
		return nil, wrapErr("find traces", err)
	}
	defer rows.Close()

	var out []*models.TraceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("find traces", err)
	}
	return out, nil
}

// ApplyMigration locks the row, applies the update in Go and writes back only when
// something changed, so a replayed migration reports zero modified rows.
func (s *Store) ApplyMigration(ctx context.Context, update models.MigrationUpdate) (int64, error) {
	if _, err := uuid.Parse(update.ID.String()); err != nil {
		return 0, fmt.Errorf("apply migration %s: %w", update.ID, sentinel.ErrNotFound)
	}

	var modified int64
	err := tx.RunInTx(ctx, s.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		rec, err := scanRecord(sqlTx.QueryRowContext(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, update.ID.String()))
		if err != nil {
			return wrapErr("lock trace "+update.ID.String(), err)
		}
		next, changed, err := rec.Apply(update)
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", update.ID, err)
		}
		if !changed {
			return nil
		}
		attrs, err := json.Marshal(next.StoredAttributes())
		if err != nil {
			return fmt.Errorf("apply migration %s: encode attributes: %w", update.ID, err)
		}
		res, err := sqlTx.ExecContext(ctx,
			`UPDATE traces SET attributes = $2, sys_time = $3 WHERE id = $1`,
			update.ID.String(), attrs, next.StoreTime,
		)
		if err != nil {
			return wrapErr("update trace "+update.ID.String(), err)
		}
		modified, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return modified, nil
}

// FieldTypes walks nested objects with a recursive CTE and collects the JSON types
// seen per path.
func (s *Store) FieldTypes(ctx context.Context) ([]models.FieldTypes, error) {
	const query = `
		WITH RECURSIVE fields(path, value) AS (
			SELECT e.key, e.value
			FROM traces t, jsonb_each(t.attributes) e
			UNION ALL
			SELECT f.path || '.' || e.key, e.value
			FROM fields f,
				jsonb_each(CASE WHEN jsonb_typeof(f.value) = 'object' THEN f.value ELSE '{}'::jsonb END) e
		)
		SELECT path, array_agg(DISTINCT jsonb_typeof(value) ORDER BY jsonb_typeof(value))
		FROM fields
		GROUP BY path
		ORDER BY path
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("field types", err)
	}
	defer rows.Close()

	var out []models.FieldTypes
	for rows.Next() {
		var (
			path  string
			types pq.StringArray
		)
		if err := rows.Scan(&path, &types); err != nil {
			return nil, fmt.Errorf("scan field types: %w", err)
		}
		row := models.FieldTypes{Path: path}
		for _, t := range types {
			row.Types = append(row.Types, normalizeType(t))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("field types", err)
	}
	return out, nil
}

func (s *Store) TimeGaps(ctx context.Context, threshold time.Duration) ([]models.TimeGap, error) {
	const query = `
		SELECT id, EXTRACT(EPOCH FROM (sys_time - event_time))::float8
		FROM traces
		WHERE event_time IS NOT NULL
			AND sys_time - event_time > make_interval(secs => $1)
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, threshold.Seconds())
	if err != nil {
		return nil, wrapErr("time gaps", err)
	}
	defer rows.Close()

	var out []models.TimeGap
	for rows.Next() {
		var (
			id      string
			seconds float64
		)
		if err := rows.Scan(&id, &seconds); err != nil {
			return nil, fmt.Errorf("scan time gap: %w", err)
		}
		out = append(out, models.TimeGap{
			ID:  models.RecordID(id),
			Gap: time.Duration(seconds * float64(time.Second)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("time gaps", err)
	}
	return out, nil
}

func (s *Store) DistinctTopLevelFields(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT k FROM traces, jsonb_object_keys(traces.attributes) AS k ORDER BY k`)
	if err != nil {
		return nil, wrapErr("distinct top-level fields", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("distinct top-level fields", err)
	}
	return out, nil
}

type traceRow interface {
	Scan(dest ...any) error
}

func scanRecord(row traceRow) (*models.TraceRecord, error) {
	var (
		id        string
		raw       []byte
		eventTime sql.NullTime
		sysTime   time.Time
	)
	if err := row.Scan(&id, &raw, &eventTime, &sysTime); err != nil {
		return nil, err
	}
	attrs, err := models.DecodeAttributes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", id, err)
	}
	var event *time.Time
	if eventTime.Valid {
		t := eventTime.Time.UTC()
		event = &t
	}
	return models.FromStored(models.RecordID(id), attrs, event, sysTime.UTC()), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// normalizeType maps jsonb_typeof names onto the shared type tags.
func normalizeType(t string) string {
	if t == "boolean" {
		return models.TypeBool
	}
	return t
}

func wrapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
