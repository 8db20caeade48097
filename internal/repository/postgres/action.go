package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// ActionRepo implements pipeline.ActionStore. Inserts are keyed by the
// action's idempotency key, so regenerating a record's actions creates
// nothing new.
type ActionRepo struct{ db *sql.DB }

// NewActionRepo creates a Postgres-backed action repository.
func NewActionRepo(db *sql.DB) *ActionRepo { return &ActionRepo{db: db} }

// SaveActions writes the set in one transaction and counts only the rows
// that were newly inserted.
func (r *ActionRepo) SaveActions(ctx context.Context, set domain.ActionSet) (counts domain.ActionCounts, err error) {
	if set.Len() == 0 {
		return counts, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin action tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, t := range set.Tasks {
		n, err := insertIgnore(ctx, tx, `
			INSERT INTO tasks
				(id, record_id, property_id, title, description, category, priority, due_date, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (idempotency_key) DO NOTHING
		`, orNewID(t.ID), t.RecordID, t.PropertyID, t.Title, t.Description, t.Category, t.Priority, t.DueDate, t.IdempotencyKey)
		if err != nil {
			return domain.ActionCounts{}, fmt.Errorf("insert task: %w", err)
		}
		counts.Tasks += n
	}
	for _, e := range set.Events {
		n, err := insertIgnore(ctx, tx, `
			INSERT INTO calendar_events
				(id, record_id, property_id, title, description, event_type, starts_at, all_day, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (idempotency_key) DO NOTHING
		`, orNewID(e.ID), e.RecordID, e.PropertyID, e.Title, e.Description, e.EventType, e.StartsAt, e.AllDay, e.IdempotencyKey)
		if err != nil {
			return domain.ActionCounts{}, fmt.Errorf("insert event: %w", err)
		}
		counts.Events += n
	}
	for _, nt := range set.Notes {
		n, err := insertIgnore(ctx, tx, `
			INSERT INTO notes
				(id, record_id, property_id, category, content, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (idempotency_key) DO NOTHING
		`, orNewID(nt.ID), nt.RecordID, nt.PropertyID, nt.Category, nt.Content, nt.IdempotencyKey)
		if err != nil {
			return domain.ActionCounts{}, fmt.Errorf("insert note: %w", err)
		}
		counts.Notes += n
	}

	if err = tx.Commit(); err != nil {
		return domain.ActionCounts{}, fmt.Errorf("commit action tx: %w", err)
	}
	return counts, nil
}

// ListTasks returns the tasks generated for a property, newest first.
func (r *ActionRepo) ListTasks(ctx context.Context, propertyID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, record_id, property_id, title, COALESCE(description,''), category, priority, due_date, idempotency_key
		FROM tasks
		WHERE property_id = $1
		ORDER BY created_at DESC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		var (
			t   domain.Task
			pid sql.NullString
			due sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.RecordID, &pid, &t.Title, &t.Description, &t.Category, &t.Priority, &due, &t.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if pid.Valid {
			t.PropertyID = &pid.String
		}
		if due.Valid {
			t.DueDate = &due.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertIgnore(ctx context.Context, tx *sql.Tx, q string, args ...interface{}) (int, error) {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func orNewID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}
