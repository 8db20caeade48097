package domain

import "time"

// Attachment is a file carried by an inbound email.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// InboundEmail is a raw message as yielded by a mail source.
type InboundEmail struct {
	ID          string       `json:"id"`
	UID         string       `json:"uid,omitempty"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	HTML        string       `json:"html,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ExternalID returns the stable identifier used for deduplication.
// The message id wins; the mailbox UID is used when no message id exists.
func (e InboundEmail) ExternalID() string {
	if e.ID != "" {
		return e.ID
	}
	return e.UID
}

// HasDocumentAttachments reports whether any attachment is a document type
// the extraction pipeline understands.
func (e InboundEmail) HasDocumentAttachments() bool {
	for _, a := range e.Attachments {
		if IsDocumentMIME(a.MIMEType) {
			return true
		}
	}
	return false
}

// IsDocumentMIME reports whether the MIME type is PDF, Word or an image.
func IsDocumentMIME(mime string) bool {
	switch mime {
	case MIMEPDF, MIMEDocx, MIMEDoc:
		return true
	}
	return len(mime) > 6 && mime[:6] == "image/"
}

// Supported MIME types.
const (
	MIMEPDF  = "application/pdf"
	MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDoc  = "application/msword"
	MIMEText = "text/plain"
)
