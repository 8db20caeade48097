package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/pipeline"
)

// RecordRepo implements pipeline.RecordStore against PostgreSQL.
type RecordRepo struct{ db *sql.DB }

// NewRecordRepo creates a Postgres-backed processing record repository.
func NewRecordRepo(db *sql.DB) *RecordRepo { return &RecordRepo{db: db} }

// RecordFilter narrows List.
type RecordFilter struct {
	Status       domain.RecordStatus
	ManualReview *bool
	PropertyID   string
	Limit        int
	Offset       int
}

const recordColumns = `
	id, message_id, sender, recipients, subject, body, status,
	is_property_related, classification_confidence, COALESCE(classification_method,''),
	property_id, match_confidence, COALESCE(match_method,''), requires_manual_review,
	documents_stored, tasks_created, events_created, notes_created, errors,
	created_at, updated_at`

// Create inserts a record. A second record for the same message id is
// rejected with pipeline.ErrDuplicate.
func (r *RecordRepo) Create(ctx context.Context, rec *domain.ProcessingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO processing_records
			(id, message_id, sender, recipients, subject, body, status, errors, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`, rec.ID, rec.MessageID, rec.Sender, pq.Array(rec.Recipients), rec.Subject, rec.Body,
		string(rec.Status), pq.Array(rec.Errors), rec.CreatedAt, rec.UpdatedAt).Scan(&id)
	if err == sql.ErrNoRows || isUniqueViolation(err) {
		return pipeline.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// Update writes the mutable pipeline fields of a record.
func (r *RecordRepo) Update(ctx context.Context, rec *domain.ProcessingRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_records SET
			status = $2, is_property_related = $3, classification_confidence = $4,
			classification_method = $5, property_id = $6, match_confidence = $7,
			match_method = $8, requires_manual_review = $9, documents_stored = $10,
			tasks_created = $11, events_created = $12, notes_created = $13,
			errors = $14, updated_at = $15
		WHERE id = $1
	`, rec.ID, string(rec.Status), rec.IsPropertyRelated, rec.ClassificationConfidence,
		nullString(rec.ClassificationMethod), rec.PropertyID, rec.MatchConfidence,
		nullString(rec.MatchMethod), rec.RequiresManualReview, rec.DocumentsStored,
		rec.TasksCreated, rec.EventsCreated, rec.NotesCreated,
		pq.Array(rec.Errors), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads one record by id.
func (r *RecordRepo) Get(ctx context.Context, id string) (*domain.ProcessingRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM processing_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns records newest first along with the total matching count.
func (r *RecordRepo) List(ctx context.Context, f RecordFilter) ([]domain.ProcessingRecord, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE 1=1`
	args := []interface{}{}
	idx := 1
	add := func(cond string, val interface{}) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, val)
		idx++
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ManualReview != nil {
		add("requires_manual_review = $%d", *f.ManualReview)
	}
	if f.PropertyID != "" {
		add("property_id = $%d", f.PropertyID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	q := `SELECT ` + recordColumns + ` FROM processing_records` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

// Ping checks connectivity.
func (r *RecordRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.ProcessingRecord, error) {
	var (
		rec        domain.ProcessingRecord
		status     string
		propertyID sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.MessageID, &rec.Sender, pq.Array(&rec.Recipients), &rec.Subject, &rec.Body, &status,
		&rec.IsPropertyRelated, &rec.ClassificationConfidence, &rec.ClassificationMethod,
		&propertyID, &rec.MatchConfidence, &rec.MatchMethod, &rec.RequiresManualReview,
		&rec.DocumentsStored, &rec.TasksCreated, &rec.EventsCreated, &rec.NotesCreated, pq.Array(&rec.Errors),
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.RecordStatus(status)
	if propertyID.Valid {
		rec.PropertyID = &propertyID.String
	}
	return &rec, nil
}
