package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/matching"
)

// PropertyRepo implements matching.Store. Similarity search relies on the
// pg_trgm extension and its GIN indexes on address and client_name.
type PropertyRepo struct{ db *sql.DB }

// NewPropertyRepo creates a Postgres-backed property repository.
func NewPropertyRepo(db *sql.DB) *PropertyRepo { return &PropertyRepo{db: db} }

const propertyColumns = `
	id, address, COALESCE(city,''), COALESCE(state,''), COALESCE(zip_code,''),
	COALESCE(client_name,''), COALESCE(selling_agent,''), COALESCE(loan_number,''),
	COALESCE(mls_number,''), listing_price, sales_price, status`

// searchColumns whitelists the columns a matching.Field may address.
var searchColumns = map[matching.Field]string{
	matching.FieldAddress:    "address",
	matching.FieldClientName: "client_name",
}

func (r *PropertyRepo) FindByIdentifier(ctx context.Context, kind matching.IdentifierKind, digits string) ([]domain.Property, error) {
	var q string
	switch kind {
	case matching.IdentifierMLS:
		q = `SELECT ` + propertyColumns + ` FROM properties
			WHERE regexp_replace(COALESCE(mls_number,''), '[^0-9]', '', 'g') = $1
			   OR address LIKE '%' || $1 || '%'`
	case matching.IdentifierLoan:
		q = `SELECT ` + propertyColumns + ` FROM properties
			WHERE regexp_replace(COALESCE(loan_number,''), '[^0-9]', '', 'g') = $1`
	default:
		return nil, fmt.Errorf("unknown identifier kind %q", kind)
	}
	return r.query(ctx, "find by "+string(kind), q, digits)
}

func (r *PropertyRepo) FindByClientName(ctx context.Context, name string) ([]domain.Property, error) {
	return r.query(ctx, "find by client name", `SELECT `+propertyColumns+` FROM properties
		WHERE LOWER(TRIM(client_name)) = LOWER(TRIM($1))`, name)
}

func (r *PropertyRepo) FindByAgent(ctx context.Context, agent string) ([]domain.Property, error) {
	return r.query(ctx, "find by agent", `SELECT `+propertyColumns+` FROM properties
		WHERE LOWER(TRIM(selling_agent)) = LOWER(TRIM($1))`, agent)
}

func (r *PropertyRepo) FindByStreetNumber(ctx context.Context, number string) ([]domain.Property, error) {
	return r.query(ctx, "find by street number", `SELECT `+propertyColumns+` FROM properties
		WHERE substring(btrim(address) from '^[0-9]+') = $1`, number)
}

// Similar ranks by pg_trgm similarity(). The % operator keeps the GIN index
// in play and applies the server's similarity threshold (0.3 by default).
func (r *PropertyRepo) Similar(ctx context.Context, field matching.Field, value string, limit int) ([]matching.Scored, error) {
	col, ok := searchColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown search field %q", field)
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, similarity(%s, $1) AS sim
		FROM properties
		WHERE %s %% $1
		ORDER BY sim DESC
		LIMIT $2`, propertyColumns, col, col), value, limit)
	if isUndefinedFunction(err) {
		return nil, matching.ErrSimilarityUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("similar %s: %w", col, err)
	}
	defer rows.Close()

	var out []matching.Scored
	for rows.Next() {
		var s matching.Scored
		p, err := scanProperty(rows, &s.Similarity)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		s.Property = *p
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedFunction(err) {
			return nil, matching.ErrSimilarityUnavailable
		}
		return nil, err
	}
	return out, nil
}

func (r *PropertyRepo) Substring(ctx context.Context, field matching.Field, fragment string, limit int) ([]domain.Property, error) {
	col, ok := searchColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown search field %q", field)
	}
	q := fmt.Sprintf(`SELECT %s FROM properties
		WHERE %s ILIKE '%%' || $1 || '%%'
		ORDER BY address
		LIMIT $2`, propertyColumns, col)
	return r.query(ctx, "substring "+col, q, escapeLike(fragment), limit)
}

// Get loads one property by id.
func (r *PropertyRepo) Get(ctx context.Context, id string) (*domain.Property, error) {
	p, err := scanProperty(r.db.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

func (r *PropertyRepo) query(ctx context.Context, op, q string, args ...interface{}) ([]domain.Property, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// scanProperty scans propertyColumns followed by any extra destinations.
func scanProperty(s scanner, extra ...interface{}) (*domain.Property, error) {
	var (
		p       domain.Property
		listing sql.NullFloat64
		sales   sql.NullFloat64
		status  string
	)
	dest := []interface{}{
		&p.ID, &p.Address, &p.City, &p.State, &p.ZipCode,
		&p.ClientName, &p.SellingAgent, &p.LoanNumber,
		&p.MLSNumber, &listing, &sales, &status,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if listing.Valid {
		p.ListingPrice = &listing.Float64
	}
	if sales.Valid {
		p.SalesPrice = &sales.Float64
	}
	p.Status = domain.PropertyStatus(status)
	return &p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
