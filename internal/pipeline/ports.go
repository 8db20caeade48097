package pipeline

import (
	"context"
	"errors"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/splitter"
)

// ErrDuplicate is returned by RecordStore.Create when a record for the same
// external message id already exists.
var ErrDuplicate = errors.New("pipeline: duplicate message")

// RecordStore persists processing records.
type RecordStore interface {
	Create(ctx context.Context, rec *domain.ProcessingRecord) error
	Update(ctx context.Context, rec *domain.ProcessingRecord) error
	Ping(ctx context.Context) error
}

// DocumentStore persists one document and, when propertyID is set, its
// property link in a single transaction. created is false when the
// document was already stored for the record.
type DocumentStore interface {
	StoreDocument(ctx context.Context, doc domain.ExtractedDocument, propertyID *string) (created bool, err error)
}

// ActionStore persists generated actions, skipping any whose idempotency
// key already exists, and reports how many were newly created.
type ActionStore interface {
	SaveActions(ctx context.Context, set domain.ActionSet) (domain.ActionCounts, error)
}

// Archive stores raw document bytes and returns their key.
type Archive interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// Oracle is the subset of the classification gateway the pipeline uses.
// Classify and ExtractFacts never fail; they degrade to local heuristics.
type Oracle interface {
	Classify(ctx context.Context, email domain.InboundEmail) domain.Classification
	ExtractFacts(ctx context.Context, text string) domain.ExtractedFacts
	Ping(ctx context.Context) error
	Available() bool
}

// DocumentExtractor turns one attachment into documents.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) splitter.Result
}

// Matcher resolves facts to a property.
type Matcher interface {
	FindMatch(ctx context.Context, email domain.InboundEmail, facts domain.ExtractedFacts) *domain.MatchResult
}

// Responder sends the automated reply for a processed email.
type Responder interface {
	Respond(ctx context.Context, email domain.InboundEmail, rec domain.ProcessingRecord) error
}

// ReadMarker marks a message read in the mailbox.
type ReadMarker interface {
	MarkRead(ctx context.Context, id string) error
}
