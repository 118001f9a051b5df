package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
)

// FileStore keeps tickets in a single JSON document keyed by ticket id. The
// whole document is rewritten on every mutation through a temp file and an
// atomic rename, so a crash never leaves a half-written file behind.
type FileStore struct {
	mu      sync.Mutex
	path    string
	tickets map[string]*contracts.Ticket
}

// NewFileStore opens (or creates) the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		tickets: make(map[string]*contracts.Ticket),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.tickets); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return s, nil
}

// SaveTicket stores a copy of t and flushes the file.
func (s *FileStore) SaveTicket(ctx context.Context, t *contracts.Ticket) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("ticket id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.tickets[t.ID]
	s.tickets[t.ID] = t.Clone()
	if err := s.flush(); err != nil {
		if had {
			s.tickets[t.ID] = prev
		} else {
			delete(s.tickets, t.ID)
		}
		return err
	}
	return nil
}

// GetTicket returns a copy of the stored ticket.
func (s *FileStore) GetTicket(ctx context.Context, id string) (*contracts.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tickets[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
	}
	return t.Clone(), nil
}

// TicketExists reports whether id is stored.
func (s *FileStore) TicketExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.tickets[id]
	return exists, nil
}

// UpdateTicketStatus updates the status of a ticket and flushes the file.
func (s *FileStore) UpdateTicketStatus(ctx context.Context, id string, status contracts.Status, at time.Time) error {
	return s.mutate(id, func(t *contracts.Ticket) {
		applyStatus(t, status, at)
	})
}

// AddMessage appends a message and flushes the file.
func (s *FileStore) AddMessage(ctx context.Context, id string, msg contracts.Message) error {
	return s.mutate(id, func(t *contracts.Ticket) {
		t.Messages = append(t.Messages, msg)
		t.UpdatedAt = msg.Timestamp
	})
}

// ListTickets returns copies of the most recently updated tickets.
func (s *FileStore) ListTickets(ctx context.Context, limit int) ([]*contracts.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortAndLimit(s.tickets, limit), nil
}

// Close flushes pending state.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// mutate applies fn to a copy and only swaps it in once the file is written.
func (s *FileStore) mutate(id string, fn func(t *contracts.Ticket)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.tickets[id]
	if !exists {
		return fmt.Errorf("%w: %s", ticket.ErrNotFound, id)
	}
	updated := current.Clone()
	fn(updated)

	s.tickets[id] = updated
	if err := s.flush(); err != nil {
		s.tickets[id] = current
		return err
	}
	return nil
}

// flush writes the document. Caller holds s.mu.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.tickets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tickets: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tickets-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
