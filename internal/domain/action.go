package domain

import "time"

// ActionKind distinguishes generated work items.
type ActionKind string

const (
	ActionTask  ActionKind = "task"
	ActionEvent ActionKind = "event"
	ActionNote  ActionKind = "note"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a follow-up work item for the property team.
type Task struct {
	ID             string     `json:"id" db:"id"`
	RecordID       string     `json:"record_id" db:"record_id"`
	PropertyID     *string    `json:"property_id" db:"property_id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Category       string     `json:"category" db:"category"`
	Priority       string     `json:"priority" db:"priority"`
	DueDate        *time.Time `json:"due_date" db:"due_date"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
}

// CalendarEvent is a dated milestone placed on the team calendar.
type CalendarEvent struct {
	ID             string    `json:"id" db:"id"`
	RecordID       string    `json:"record_id" db:"record_id"`
	PropertyID     *string   `json:"property_id" db:"property_id"`
	Title          string    `json:"title" db:"title"`
	Description    string    `json:"description" db:"description"`
	EventType      string    `json:"event_type" db:"event_type"`
	StartsAt       time.Time `json:"starts_at" db:"starts_at"`
	AllDay         bool      `json:"all_day" db:"all_day"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
}

// Note is an audit entry attached to a property or record.
type Note struct {
	ID             string  `json:"id" db:"id"`
	RecordID       string  `json:"record_id" db:"record_id"`
	PropertyID     *string `json:"property_id" db:"property_id"`
	Category       string  `json:"category" db:"category"`
	Content        string  `json:"content" db:"content"`
	IdempotencyKey string  `json:"idempotency_key" db:"idempotency_key"`
}

// ActionSet groups the actions generated for one record.
type ActionSet struct {
	Tasks  []Task          `json:"tasks"`
	Events []CalendarEvent `json:"events"`
	Notes  []Note          `json:"notes"`
}

// Len returns the total number of actions in the set.
func (s ActionSet) Len() int {
	return len(s.Tasks) + len(s.Events) + len(s.Notes)
}

// ActionCounts reports how many actions of each kind were newly created.
type ActionCounts struct {
	Tasks  int `json:"tasks"`
	Events int `json:"events"`
	Notes  int `json:"notes"`
}
