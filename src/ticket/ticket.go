// Package ticket implements the support ticket state machine.
//
// A ticket starts "nouveau", may be moved to "en cours" by agent tooling and
// ends "fermé". Closing is the only transition callers can request and it is
// idempotent. A closed ticket rejects new messages.
package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"freeda-support/src/contracts"
)

const (
	// AssistantAuthor signs every AI or canned reply.
	AssistantAuthor = "Assistant Free"
	// AnonymousCustomer is used when no customer name is given.
	AnonymousCustomer = "Anonyme"

	idPrefix         = "FRE-"
	defaultChannel   = "chat"
	fallbackAuthor   = "Client"
	idRandomHexChars = 8
)

// NewID returns a ticket id such as FRE-1A2B3C4D.
func NewID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return idPrefix + strings.ToUpper(raw[:idRandomHexChars])
}

// ValidID reports whether id has the FRE-XXXXXXXX shape.
func ValidID(id string) bool {
	if !strings.HasPrefix(id, idPrefix) || len(id) != len(idPrefix)+idRandomHexChars {
		return false
	}
	for _, r := range id[len(idPrefix):] {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// New builds a ticket in state nouveau holding the opening client message.
func New(id, initialMessage, customerName, channel string, now time.Time) (*contracts.Ticket, error) {
	if strings.TrimSpace(initialMessage) == "" {
		return nil, ErrEmptyMessage
	}
	if channel == "" {
		channel = defaultChannel
	}
	author := customerName
	if author == "" {
		author = fallbackAuthor
	}
	if customerName == "" {
		customerName = AnonymousCustomer
	}

	return &contracts.Ticket{
		ID:             id,
		InitialMessage: initialMessage,
		CustomerName:   customerName,
		Channel:        channel,
		Status:         contracts.StatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
		Public:         true,
		Messages: []contracts.Message{
			newMessage(initialMessage, author, contracts.MessageClient, now),
		},
	}, nil
}

// AppendMessage adds a client message. It fails with ErrTicketClosed, leaving
// the history untouched, when the ticket is closed. An empty author falls
// back to the customer name.
func AppendMessage(t *contracts.Ticket, content, author string, now time.Time) (contracts.Message, error) {
	if t.Status == contracts.StatusClosed {
		return contracts.Message{}, ErrTicketClosed
	}
	if strings.TrimSpace(content) == "" {
		return contracts.Message{}, ErrEmptyMessage
	}
	if author == "" {
		author = t.CustomerName
	}
	if author == "" {
		author = fallbackAuthor
	}

	msg := newMessage(content, author, contracts.MessageClient, now)
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = now
	return msg, nil
}

// AppendAssistantMessage adds an assistant reply. Status is unchanged.
func AppendAssistantMessage(t *contracts.Ticket, content string, now time.Time) contracts.Message {
	msg := NewAssistantMessage(content, now)
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = now
	return msg
}

// NewAssistantMessage builds an assistant message without attaching it.
func NewAssistantMessage(content string, now time.Time) contracts.Message {
	return newMessage(content, AssistantAuthor, contracts.MessageAssistant, now)
}

// Close moves the ticket to fermé. Closing an already closed ticket changes
// nothing and reports changed=false.
func Close(t *contracts.Ticket, now time.Time) (changed bool) {
	if t.Status == contracts.StatusClosed {
		return false
	}
	closedAt := now
	t.Status = contracts.StatusClosed
	t.ClosedAt = &closedAt
	t.UpdatedAt = now
	return true
}

// ValidateTransition checks a status change requested from outside. Only
// closing is allowed.
func ValidateTransition(target contracts.Status) error {
	if target != contracts.StatusClosed {
		return fmt.Errorf("%w: %q", ErrInvalidTransition, target)
	}
	return nil
}

// StartProgress marks a new ticket as taken over by an agent. It is a no-op
// for tickets that are already in progress and fails for closed ones.
func StartProgress(t *contracts.Ticket, now time.Time) error {
	switch t.Status {
	case contracts.StatusNew:
		t.Status = contracts.StatusInProgress
		t.UpdatedAt = now
		return nil
	case contracts.StatusInProgress:
		return nil
	default:
		return ErrTicketClosed
	}
}

func newMessage(content, author string, kind contracts.MessageType, now time.Time) contracts.Message {
	return contracts.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Author:    author,
		Timestamp: now,
		Type:      kind,
	}
}
