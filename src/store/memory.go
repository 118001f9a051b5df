package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
)

// MemoryStore is an in-memory implementation of Store.
// Useful for testing and local mode.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]*contracts.Ticket
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]*contracts.Ticket),
	}
}

// SaveTicket stores a copy of t.
func (s *MemoryStore) SaveTicket(ctx context.Context, t *contracts.Ticket) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("ticket id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets[t.ID] = t.Clone()
	return nil
}

// GetTicket returns a copy of the stored ticket.
func (s *MemoryStore) GetTicket(ctx context.Context, id string) (*contracts.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tickets[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
	}
	return t.Clone(), nil
}

// TicketExists reports whether id is stored.
func (s *MemoryStore) TicketExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.tickets[id]
	return exists, nil
}

// UpdateTicketStatus updates the status of a ticket.
func (s *MemoryStore) UpdateTicketStatus(ctx context.Context, id string, status contracts.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tickets[id]
	if !exists {
		return fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
	}
	applyStatus(t, status, at)
	return nil
}

// AddMessage appends a message to a ticket.
func (s *MemoryStore) AddMessage(ctx context.Context, id string, msg contracts.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tickets[id]
	if !exists {
		return fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = msg.Timestamp
	return nil
}

// ListTickets returns copies of the most recently updated tickets.
func (s *MemoryStore) ListTickets(ctx context.Context, limit int) ([]*contracts.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortAndLimit(s.tickets, limit), nil
}

// Close closes the store (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

func sortAndLimit(tickets map[string]*contracts.Ticket, limit int) []*contracts.Ticket {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	result := make([]*contracts.Ticket, 0, len(tickets))
	for _, t := range tickets {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}
