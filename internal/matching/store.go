package matching

import (
	"context"
	"errors"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// ErrSimilarityUnavailable is returned by a Store whose database lacks a
// similarity primitive. Strategies then degrade to substring search.
var ErrSimilarityUnavailable = errors.New("similarity search unavailable")

// IdentifierKind selects which identifier FindByIdentifier compares.
type IdentifierKind string

const (
	IdentifierMLS  IdentifierKind = "mls"
	IdentifierLoan IdentifierKind = "loan"
)

// Field selects a searchable property column.
type Field string

const (
	FieldAddress    Field = "address"
	FieldClientName Field = "client_name"
)

// Scored is a property with a store-computed similarity in [0,1].
type Scored struct {
	Property   domain.Property
	Similarity float64
}

// Store is the read-only property lookup the engine needs.
type Store interface {
	// FindByIdentifier compares digits against the identifier column with
	// non-digits stripped. MLS lookups also match addresses containing the
	// digits, since some listings record the MLS number in the address.
	FindByIdentifier(ctx context.Context, kind IdentifierKind, digits string) ([]domain.Property, error)
	FindByClientName(ctx context.Context, name string) ([]domain.Property, error)
	FindByAgent(ctx context.Context, agent string) ([]domain.Property, error)
	// FindByStreetNumber returns every property whose address starts with
	// the house number, without a limit.
	FindByStreetNumber(ctx context.Context, number string) ([]domain.Property, error)
	// Similar ranks properties by similarity of field to value, best first,
	// or returns ErrSimilarityUnavailable.
	Similar(ctx context.Context, field Field, value string, limit int) ([]Scored, error)
	// Substring returns properties whose field contains fragment,
	// case-insensitively.
	Substring(ctx context.Context, field Field, fragment string, limit int) ([]domain.Property, error)
}
