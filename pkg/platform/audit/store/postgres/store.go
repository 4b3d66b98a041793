// Package postgres is the durable audit store. Events live in the append-only
// audit_events table (see migrations/).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	audit "workspace-audit/pkg/platform/audit"
)

// maxRowsPerInsert keeps one INSERT well under Postgres' 65535 parameter limit.
const maxRowsPerInsert = 1000

const columns = `id, category, action, severity, admin_id, admin_roles, resource, resource_id,
	old_values, new_values, metadata, timestamp, success, error,
	instance_id, sequence, verification_hash`

const columnCount = 17

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertBatch writes events with ON CONFLICT (id) DO NOTHING so a retried or
// replayed batch never creates duplicates. Batches larger than one statement
// are written in a single transaction. Events that cannot be encoded are left
// out and reported through *audit.UnencodableError once the rest is stored.
func (s *Store) InsertBatch(ctx context.Context, events []audit.Event) error {
	rows := make([][]any, 0, len(events))
	var rejected *audit.UnencodableError
	for _, e := range events {
		row, err := rowArgs(e)
		if err != nil {
			if rejected == nil {
				rejected = &audit.UnencodableError{Err: err}
			}
			rejected.IDs = append(rejected.IDs, e.ID)
			continue
		}
		rows = append(rows, row)
	}
	if err := s.insertRows(ctx, rows); err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}
	return nil
}

func (s *Store) insertRows(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) <= maxRowsPerInsert {
		return s.insert(ctx, s.db, rows)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(rows))
		if err := s.insert(ctx, tx, rows[start:end]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit insert: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, db execer, rows [][]any) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO audit_events (" + columns + ") VALUES ")
	args := make([]any, 0, len(rows)*columnCount)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range columnCount {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*columnCount+c+1)
		}
		sb.WriteByte(')')
		args = append(args, row...)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert audit events: %w", err)
	}
	return nil
}

func rowArgs(e audit.Event) ([]any, error) {
	roles := e.AdminRoles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, fmt.Errorf("encode admin roles for %s: %w", e.ID, err)
	}
	oldValues, err := jsonColumn(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("encode old values for %s: %w", e.ID, err)
	}
	newValues, err := jsonColumn(e.NewValues)
	if err != nil {
		return nil, fmt.Errorf("encode new values for %s: %w", e.ID, err)
	}
	metadata, err := jsonColumn(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", e.ID, err)
	}
	return []any{
		e.ID,
		string(e.Category),
		string(e.Action),
		string(e.Severity),
		e.AdminID,
		string(rolesJSON),
		e.Resource,
		e.ResourceID,
		oldValues,
		newValues,
		metadata,
		e.Timestamp.UTC(),
		e.Success,
		e.Error,
		e.InstanceID,
		e.Sequence,
		e.VerificationHash,
	}, nil
}

// jsonColumn returns nil (SQL NULL) for empty maps.
func jsonColumn(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Get implements audit.Reader.
func (s *Store) Get(ctx context.Context, id string) (*audit.Event, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM audit_events WHERE id = $1", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Find implements audit.Reader.
func (s *Store) Find(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	where, args := buildWhere(f)
	query := "SELECT " + columns + " FROM audit_events" + where + orderBy(f.Order)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.query(ctx, query, args...)
}

// Count implements audit.Reader.
func (s *Store) Count(ctx context.Context, f audit.Filter) (int64, error) {
	where, args := buildWhere(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// ListExpired implements audit.Purger.
func (s *Store) ListExpired(ctx context.Context, severity audit.Severity, cutoff time.Time, limit int) ([]audit.Event, error) {
	query := "SELECT " + columns + ` FROM audit_events
		WHERE severity = $1 AND timestamp < $2
		ORDER BY timestamp ASC, id ASC
		LIMIT $3`
	return s.query(ctx, query, string(severity), cutoff.UTC(), limit)
}

// DeleteByIDs implements audit.Purger.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE id = ANY($1)", ids)
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired implements audit.Purger.
func (s *Store) DeleteExpired(ctx context.Context, severity audit.Severity, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE severity = $1 AND timestamp < $2",
		string(severity), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*audit.Event, error) {
	var (
		e                          audit.Event
		category, action, severity string
		roles                      []byte
		oldValues, newValues, meta []byte
	)
	err := row.Scan(
		&e.ID,
		&category,
		&action,
		&severity,
		&e.AdminID,
		&roles,
		&e.Resource,
		&e.ResourceID,
		&oldValues,
		&newValues,
		&meta,
		&e.Timestamp,
		&e.Success,
		&e.Error,
		&e.InstanceID,
		&e.Sequence,
		&e.VerificationHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	e.Category = audit.Category(category)
	e.Action = audit.Action(action)
	e.Severity = audit.Severity(severity)
	e.Timestamp = e.Timestamp.UTC()

	if err := json.Unmarshal(roles, &e.AdminRoles); err != nil {
		return nil, fmt.Errorf("decode admin roles for %s: %w", e.ID, err)
	}
	for _, col := range []struct {
		raw []byte
		dst *map[string]any
	}{{oldValues, &e.OldValues}, {newValues, &e.NewValues}, {meta, &e.Metadata}} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

var _ audit.Store = (*Store)(nil)
