// Package mailsource supplies inbound messages to the pipeline. The mail
// transport itself lives outside this module; Spool reads messages that a
// transport (or an operator) dropped into a directory as JSON.
package mailsource

import (
	"context"
	"errors"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

// ErrUnknownMessage is returned by MarkRead for an id the source never yielded.
var ErrUnknownMessage = errors.New("mailsource: unknown message")

// Source yields unread messages and records which ones were handled.
// A message left unread after processing is not yielded again by the same
// source unless it is released.
type Source interface {
	// Fetch returns up to limit unread messages not yet handed out, oldest first.
	Fetch(ctx context.Context, limit int) ([]domain.InboundEmail, error)
	// MarkRead marks the message with the given external id as read.
	MarkRead(ctx context.Context, id string) error
	// Release returns a handed-out message to the pool for a later Fetch.
	Release(ctx context.Context, id string) error
	// Ping reports whether the source is reachable.
	Ping(ctx context.Context) error
}
