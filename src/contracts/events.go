package contracts

import "time"

// EventType discriminates the events pushed to live ticket viewers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventNewMessage     EventType = "new_message"
	EventStatusUpdated  EventType = "status_updated"
	EventTicketSnapshot EventType = "ticket_snapshot"
)

// Event is the envelope broadcast to every subscriber of a ticket.
// Exactly one of the payload fields is set, according to Type.
type Event struct {
	Type     EventType      `json:"type"`
	TicketID string         `json:"ticket_id"`
	Ticket   *TicketSummary `json:"ticket,omitempty"`
	Message  *EventMessage  `json:"message,omitempty"`
	Status   Status         `json:"status,omitempty"`
	Snapshot *Ticket        `json:"snapshot,omitempty"`
}

// TicketSummary is the payload of a ticket_created event.
type TicketSummary struct {
	ID        string    `json:"ticket_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// EventMessage is the payload of a new_message event.
type EventMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTicketCreatedEvent builds the event emitted once per ticket creation.
func NewTicketCreatedEvent(t *Ticket) Event {
	return Event{
		Type:     EventTicketCreated,
		TicketID: t.ID,
		Ticket:   &TicketSummary{ID: t.ID, Status: t.Status, CreatedAt: t.CreatedAt},
	}
}

// NewMessageEvent builds a new_message event for a single appended message.
func NewMessageEvent(ticketID string, m Message) Event {
	return Event{
		Type:     EventNewMessage,
		TicketID: ticketID,
		Message: &EventMessage{
			ID:        m.ID,
			Content:   m.Content,
			Role:      m.Role(),
			Timestamp: m.Timestamp,
		},
	}
}

// NewStatusEvent builds a status_updated event.
func NewStatusEvent(ticketID string, status Status) Event {
	return Event{Type: EventStatusUpdated, TicketID: ticketID, Status: status}
}

// NewSnapshotEvent carries the full ticket to a newly attached viewer.
func NewSnapshotEvent(t *Ticket) Event {
	return Event{Type: EventTicketSnapshot, TicketID: t.ID, Snapshot: t}
}

// Topic names used when ticket events are mirrored to a message broker.
const (
	// TopicTicketEvents carries every broadcast event, keyed by ticket id.
	TopicTicketEvents = "freeda.tickets.events"
)
