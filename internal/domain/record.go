package domain

import "time"

// RecordStatus enumerates the lifecycle states of a processing record.
type RecordStatus string

const (
	StatusReceived     RecordStatus = "received"
	StatusClassified   RecordStatus = "classified"
	StatusIgnored      RecordStatus = "ignored"
	StatusMatched      RecordStatus = "matched"
	StatusManualReview RecordStatus = "manual_review"
	StatusProcessed    RecordStatus = "processed"
	StatusFailed       RecordStatus = "failed"
)

// IsTerminal reports whether no further pipeline step runs for the status.
func (s RecordStatus) IsTerminal() bool {
	return s == StatusIgnored || s == StatusProcessed || s == StatusFailed
}

// ProcessingRecord is the durable per-email state tracked through the pipeline.
type ProcessingRecord struct {
	ID                       string       `json:"id" db:"id"`
	MessageID                string       `json:"message_id" db:"message_id"`
	Sender                   string       `json:"sender" db:"sender"`
	Recipients               []string     `json:"recipients" db:"recipients"`
	Subject                  string       `json:"subject" db:"subject"`
	Body                     string       `json:"body" db:"body"`
	Status                   RecordStatus `json:"status" db:"status"`
	IsPropertyRelated        bool         `json:"is_property_related" db:"is_property_related"`
	ClassificationConfidence float64      `json:"classification_confidence" db:"classification_confidence"`
	ClassificationMethod     string       `json:"classification_method" db:"classification_method"`
	PropertyID               *string      `json:"property_id" db:"property_id"`
	MatchConfidence          float64      `json:"match_confidence" db:"match_confidence"`
	MatchMethod              string       `json:"match_method" db:"match_method"`
	RequiresManualReview     bool         `json:"requires_manual_review" db:"requires_manual_review"`
	DocumentsStored          int          `json:"documents_stored" db:"documents_stored"`
	TasksCreated             int          `json:"tasks_created" db:"tasks_created"`
	EventsCreated            int          `json:"events_created" db:"events_created"`
	NotesCreated             int          `json:"notes_created" db:"notes_created"`
	Errors                   []string     `json:"errors" db:"errors"`
	CreatedAt                time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at" db:"updated_at"`
}
