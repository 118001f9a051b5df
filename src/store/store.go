// Package store defines the interface for persistent ticket storage.
package store

import (
	"context"
	"time"

	"freeda-support/src/contracts"
)

// Store persists tickets and their message history.
//
// Implementations return ticket.ErrNotFound for unknown ids and must give
// read-your-writes consistency for a single ticket within one process.
// Returned tickets are copies; mutating them does not affect the store.
type Store interface {
	// SaveTicket creates or fully replaces a ticket, messages included.
	SaveTicket(ctx context.Context, t *contracts.Ticket) error

	// GetTicket returns the ticket with the given id.
	GetTicket(ctx context.Context, id string) (*contracts.Ticket, error)

	// TicketExists reports whether a ticket with the given id exists.
	TicketExists(ctx context.Context, id string) (bool, error)

	// UpdateTicketStatus sets the status and stamps the update time. Moving
	// to fermé also stamps the closing time.
	UpdateTicketStatus(ctx context.Context, id string, status contracts.Status, at time.Time) error

	// AddMessage appends one message to the ticket history.
	AddMessage(ctx context.Context, id string, msg contracts.Message) error

	// ListTickets returns up to limit tickets, most recently updated first.
	ListTickets(ctx context.Context, limit int) ([]*contracts.Ticket, error)

	// Close closes the store connection
	Close() error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultListLimit caps ListTickets when the caller passes zero.
const DefaultListLimit = 50

func applyStatus(t *contracts.Ticket, status contracts.Status, at time.Time) {
	t.Status = status
	t.UpdatedAt = at
	if status == contracts.StatusClosed {
		closedAt := at
		t.ClosedAt = &closedAt
	}
}
