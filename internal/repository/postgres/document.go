package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// DocumentRepo implements pipeline.DocumentStore. A document row and its
// property link are written in one transaction.
type DocumentRepo struct{ db *sql.DB }

// NewDocumentRepo creates a Postgres-backed document repository.
func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

// StoreDocument inserts doc unless the record already holds a document with
// the same content hash, and links it to propertyID when one is given.
// created is false for a re-stored document.
func (r *DocumentRepo) StoreDocument(ctx context.Context, doc domain.ExtractedDocument, propertyID *string) (created bool, err error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin document tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO extracted_documents
			(id, record_id, property_id, filename, source_filename, mime_type, text,
			 content_hash, document_type, confidence, page_start, page_end,
			 extraction_method, archive_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (record_id, content_hash) DO NOTHING
		RETURNING id
	`, doc.ID, doc.RecordID, propertyID, doc.Filename, nullString(doc.SourceFilename), doc.MIMEType, doc.Text,
		doc.ContentHash, string(doc.DocumentType), doc.Confidence, doc.PageStart, doc.PageEnd,
		nullString(doc.ExtractionMethod), nullString(doc.ArchiveKey)).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM extracted_documents WHERE record_id = $1 AND content_hash = $2`,
			doc.RecordID, doc.ContentHash).Scan(&id)
		if err != nil {
			return false, fmt.Errorf("load existing document: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("insert document: %w", err)
	default:
		created = true
	}

	if propertyID != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO property_documents (property_id, document_id, document_type, created_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (property_id, document_id) DO NOTHING
		`, *propertyID, id, string(doc.DocumentType))
		if err != nil {
			return false, fmt.Errorf("link document: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit document tx: %w", err)
	}
	return created, nil
}

// ListByProperty returns the documents linked to a property, newest first.
func (r *DocumentRepo) ListByProperty(ctx context.Context, propertyID string) ([]domain.ExtractedDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.record_id, d.filename, COALESCE(d.source_filename,''), d.mime_type,
		       d.content_hash, d.document_type, d.confidence, d.page_start, d.page_end,
		       COALESCE(d.extraction_method,''), COALESCE(d.archive_key,''), d.created_at
		FROM property_documents pd
		JOIN extracted_documents d ON d.id = pd.document_id
		WHERE pd.property_id = $1
		ORDER BY d.created_at DESC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.ExtractedDocument
	for rows.Next() {
		var (
			d       domain.ExtractedDocument
			docType string
		)
		if err := rows.Scan(&d.ID, &d.RecordID, &d.Filename, &d.SourceFilename, &d.MIMEType,
			&d.ContentHash, &docType, &d.Confidence, &d.PageStart, &d.PageEnd,
			&d.ExtractionMethod, &d.ArchiveKey, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.DocumentType = domain.DocumentType(docType)
		pid := propertyID
		d.PropertyID = &pid
		out = append(out, d)
	}
	return out, rows.Err()
}
