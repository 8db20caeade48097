package pipeline

import "sync/atomic"

// Stats holds monotonically increasing pipeline counters. One Stats is
// shared by everything that processes emails in a process; tests create
// their own.
type Stats struct {
	emailsProcessed atomic.Int64
	duplicates      atomic.Int64
	ignored         atomic.Int64
	matchesFound    atomic.Int64
	manualReviews   atomic.Int64
	documentsStored atomic.Int64
	tasksCreated    atomic.Int64
	eventsCreated   atomic.Int64
	notesCreated    atomic.Int64
	errors          atomic.Int64
	failed          atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	EmailsProcessed int64 `json:"emails_processed"`
	Duplicates      int64 `json:"duplicates"`
	Ignored         int64 `json:"ignored"`
	MatchesFound    int64 `json:"matches_found"`
	ManualReviews   int64 `json:"manual_reviews"`
	DocumentsStored int64 `json:"documents_stored"`
	TasksCreated    int64 `json:"tasks_created"`
	EventsCreated   int64 `json:"events_created"`
	NotesCreated    int64 `json:"notes_created"`
	Errors          int64 `json:"errors"`
	Failed          int64 `json:"failed"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		EmailsProcessed: s.emailsProcessed.Load(),
		Duplicates:      s.duplicates.Load(),
		Ignored:         s.ignored.Load(),
		MatchesFound:    s.matchesFound.Load(),
		ManualReviews:   s.manualReviews.Load(),
		DocumentsStored: s.documentsStored.Load(),
		TasksCreated:    s.tasksCreated.Load(),
		EventsCreated:   s.eventsCreated.Load(),
		NotesCreated:    s.notesCreated.Load(),
		Errors:          s.errors.Load(),
		Failed:          s.failed.Load(),
	}
}

func addNonNegative(c *atomic.Int64, n int) {
	if n > 0 {
		c.Add(int64(n))
	}
}
