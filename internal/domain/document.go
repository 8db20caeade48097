package domain

import (
	"strings"
	"time"
)

// DocumentType labels a logical document inside an attachment.
type DocumentType string

const (
	DocListingAgreement  DocumentType = "listing_agreement"
	DocPurchaseAgreement DocumentType = "purchase_agreement"
	DocCounterOffer      DocumentType = "counter_offer"
	DocAddendum          DocumentType = "addendum"
	DocDisclosure        DocumentType = "disclosure"
	DocInspectionReport  DocumentType = "inspection_report"
	DocAppraisal         DocumentType = "appraisal"
	DocTitle             DocumentType = "title"
	DocClosingStatement  DocumentType = "closing_statement"
	DocLoanDocument      DocumentType = "loan_document"
	DocUnknown           DocumentType = "unknown"
)

// KnownDocumentTypes lists every label the oracle may answer with.
var KnownDocumentTypes = []DocumentType{
	DocListingAgreement, DocPurchaseAgreement, DocCounterOffer, DocAddendum,
	DocDisclosure, DocInspectionReport, DocAppraisal, DocTitle,
	DocClosingStatement, DocLoanDocument, DocUnknown,
}

// ParseDocumentType maps a free-form label ("Listing Agreement",
// "listing-agreement") onto a known type.
func ParseDocumentType(s string) DocumentType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for _, t := range KnownDocumentTypes {
		if string(t) == s {
			return t
		}
	}
	return DocUnknown
}

// ExtractedDocument is one attachment, or one split sub-document of an
// attachment, with its text and provenance.
type ExtractedDocument struct {
	ID               string       `json:"id" db:"id"`
	RecordID         string       `json:"record_id" db:"record_id"`
	PropertyID       *string      `json:"property_id" db:"property_id"`
	Filename         string       `json:"filename" db:"filename"`
	SourceFilename   string       `json:"source_filename" db:"source_filename"`
	MIMEType         string       `json:"mime_type" db:"mime_type"`
	Text             string       `json:"text" db:"text"`
	ContentHash      string       `json:"content_hash" db:"content_hash"`
	DocumentType     DocumentType `json:"document_type" db:"document_type"`
	Confidence       float64      `json:"confidence" db:"confidence"`
	PageStart        int          `json:"page_start" db:"page_start"`
	PageEnd          int          `json:"page_end" db:"page_end"`
	ExtractionMethod string       `json:"extraction_method" db:"extraction_method"`
	ArchiveKey       string       `json:"archive_key" db:"archive_key"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`

	// Data holds the materialized bytes until the document is archived.
	Data []byte `json:"-" db:"-"`
}

// DocumentBoundary is a provisional page range inside a multi-document PDF.
// Pages are 1-based and inclusive.
type DocumentBoundary struct {
	StartPage  int          `json:"start_page"`
	EndPage    int          `json:"end_page"`
	Type       DocumentType `json:"type"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
}

// Pages returns the number of pages covered by the boundary.
func (b DocumentBoundary) Pages() int {
	return b.EndPage - b.StartPage + 1
}

// PageSummary is the compact per-page view sent to the oracle when asking
// for a boundary proposal.
type PageSummary struct {
	PageNumber int      `json:"page"`
	Leading    string   `json:"leading_text"`
	WordCount  int      `json:"word_count"`
	Signatures []string `json:"signatures,omitempty"`
}
