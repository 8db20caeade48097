package domain

// PropertyStatus enumerates listing states of a property.
type PropertyStatus string

const (
	PropertyActive        PropertyStatus = "Active"
	PropertyHold          PropertyStatus = "Hold"
	PropertyUnderContract PropertyStatus = "Under Contract"
	PropertyPending       PropertyStatus = "Pending"
	PropertyClosed        PropertyStatus = "Closed"
	PropertyWithdrawn     PropertyStatus = "Withdrawn"
)

// Property is a stored property record matched against inbound evidence.
// The matching core only reads properties.
type Property struct {
	ID           string         `json:"id" db:"id"`
	Address      string         `json:"address" db:"address"`
	City         string         `json:"city" db:"city"`
	State        string         `json:"state" db:"state"`
	ZipCode      string         `json:"zip_code" db:"zip_code"`
	ClientName   string         `json:"client_name" db:"client_name"`
	SellingAgent string         `json:"selling_agent" db:"selling_agent"`
	LoanNumber   string         `json:"loan_number" db:"loan_number"`
	MLSNumber    string         `json:"mls_number" db:"mls_number"`
	ListingPrice *float64       `json:"listing_price" db:"listing_price"`
	SalesPrice   *float64       `json:"sales_price" db:"sales_price"`
	Status       PropertyStatus `json:"status" db:"status"`
}
