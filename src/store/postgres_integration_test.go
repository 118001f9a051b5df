//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
)

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping integration test")
	}

	ctx := context.Background()
	st, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	tk, err := ticket.New(ticket.NewID(), "Ma box redémarre en boucle", "Inès", "chat", now)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveTicket(ctx, tk); err != nil {
		t.Fatalf("SaveTicket failed: %v", err)
	}

	reply := ticket.NewAssistantMessage("Je vérifie votre ligne.", now.Add(time.Second))
	if err := st.AddMessage(ctx, tk.ID, reply); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := st.UpdateTicketStatus(ctx, tk.ID, contracts.StatusClosed, now.Add(2*time.Second)); err != nil {
		t.Fatalf("UpdateTicketStatus failed: %v", err)
	}

	got, err := st.GetTicket(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if got.Status != contracts.StatusClosed || got.ClosedAt == nil {
		t.Errorf("expected closed ticket, got status=%q closed_at=%v", got.Status, got.ClosedAt)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != reply.Content {
		t.Errorf("messages = %+v", got.Messages)
	}

	if _, err := st.GetTicket(ctx, "FRE-00000000"); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("GetTicket(unknown) error = %v, expected ErrNotFound", err)
	}

	t.Logf("Round-tripped ticket %s with %d messages", got.ID, len(got.Messages))
}
