// Package contracts defines the ticket, message and event types shared by the
// support backend, its storage backends and its live transports.
package contracts

import "time"

// Status is the lifecycle state of a support ticket.
type Status string

const (
	// StatusNew is the initial state of every ticket.
	StatusNew Status = "nouveau"
	// StatusInProgress is set by the agent-side workflow.
	StatusInProgress Status = "en cours"
	// StatusClosed is terminal. A closed ticket accepts no client messages.
	StatusClosed Status = "fermé"
)

// MessageType identifies who wrote a message.
type MessageType string

const (
	MessageClient    MessageType = "client"
	MessageAssistant MessageType = "assistant"
	MessageAgent     MessageType = "agent"
)

// Chat roles understood by the conversational gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a ticket's append-only history.
type Message struct {
	// Unique identifier.
	ID string `json:"message_id"`
	// Message body as written by its author.
	Content string `json:"content"`
	// Display name of the author.
	Author string `json:"author"`
	// Time the message was appended.
	Timestamp time.Time `json:"timestamp"`
	// Who wrote the message.
	Type MessageType `json:"type"`
	// Sentiment computed by analytics when the message was appended.
	Sentiment string `json:"sentiment,omitempty"`
}

// Role maps the message author onto the gateway's chat roles.
func (m Message) Role() string {
	if m.Type == MessageAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// Analytics is the enrichment computed over a ticket's recent conversation.
type Analytics struct {
	Sentiment  string    `json:"sentiment"`
	Category   string    `json:"category"`
	Urgency    string    `json:"urgency"`
	ChurnRisk  int       `json:"churn_risk"`
	Summary    string    `json:"summary"`
	NextAction string    `json:"next_action"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	// Alert is set to "URGENT_RETENTION" when the churn risk is critical.
	Alert string `json:"alert,omitempty"`
}

// Ticket is a customer support case and its conversation.
type Ticket struct {
	// Human-presentable, non-guessable identifier (e.g. FRE-1A2B3C4D).
	ID string `json:"ticket_id"`
	// First message sent by the customer.
	InitialMessage string `json:"initial_message"`
	// Display name of the customer.
	CustomerName string `json:"customer_name"`
	// Channel the ticket was opened from (e.g. "chat", "email").
	Channel string `json:"channel"`
	// Current lifecycle state.
	Status Status `json:"status"`
	// Creation time.
	CreatedAt time.Time `json:"created_at"`
	// Last mutation time.
	UpdatedAt time.Time `json:"updated_at"`
	// Time the ticket was closed, nil while open.
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	// Ordered conversation history.
	Messages []Message `json:"messages"`
	// Latest analytics snapshot, nil when analytics is disabled.
	Analytics *Analytics `json:"analytics,omitempty"`
	// Whether the ticket was opened from the public surface.
	Public bool `json:"public"`
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = append([]Message(nil), t.Messages...)
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		c.ClosedAt = &closedAt
	}
	if t.Analytics != nil {
		analytics := *t.Analytics
		c.Analytics = &analytics
	}
	return &c
}

// LastMessages returns up to n of the most recent messages.
func (t *Ticket) LastMessages(n int) []Message {
	if n <= 0 || len(t.Messages) == 0 {
		return nil
	}
	if len(t.Messages) <= n {
		return t.Messages
	}
	return t.Messages[len(t.Messages)-n:]
}

// ChatMessage is one role-tagged turn sent to the conversational gateway.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
