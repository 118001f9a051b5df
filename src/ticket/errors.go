package ticket

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("ticket not found")
	ErrTicketClosed      = errors.New("ticket is closed")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrStorage           = errors.New("ticket storage failure")
	ErrEmptyMessage      = errors.New("message content is empty")
)

// StorageError marks a failed persistence call. It matches ErrStorage with
// errors.Is while keeping the driver error reachable.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// UserError wraps errors with user-friendly messages
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// WrapError converts ticket errors to user-friendly messages for the CLI and
// MCP tools.
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return &UserError{
			Message: "Ticket introuvable",
			Hint:    "Check the ticket id. Ids look like FRE-1A2B3C4D.",
			Err:     err,
		}
	case errors.Is(err, ErrTicketClosed):
		return &UserError{
			Message: "Ticket fermé",
			Hint:    "A closed ticket accepts no new messages. Open a new ticket instead.",
			Err:     err,
		}
	case errors.Is(err, ErrInvalidTransition):
		return &UserError{
			Message: "Action non autorisée",
			Hint:    "Only closing a ticket (status \"fermé\") is allowed.",
			Err:     err,
		}
	case errors.Is(err, ErrStorage):
		return &UserError{
			Message: "Ticket storage unavailable",
			Hint:    "Check STORAGE_TYPE and the storage backend (TICKETS_FILE or POSTGRES_DSN).",
			Err:     err,
		}
	}

	return err
}
