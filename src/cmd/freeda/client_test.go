package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"freeda-support/src/app"
	"freeda-support/src/config"
	"freeda-support/src/contracts"
	"freeda-support/src/orchestrator"
	"freeda-support/src/server"
	"freeda-support/src/ticket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newBackend(t *testing.T) (*app.App, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimitPerMinute = 0
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	srv := httptest.NewServer(server.New(a).Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return a, srv
}

func openTicket(t *testing.T, a *app.App) string {
	t.Helper()
	res, err := a.Orchestrator.CreateTicket(context.Background(), orchestrator.CreateRequest{
		InitialMessage: "Je n'ai plus de télévision",
		CustomerName:   "Lucas",
		Channel:        "email",
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.Ticket.ID
}

func TestClientStatus(t *testing.T) {
	a, srv := newBackend(t)
	id := openTicket(t, a)

	st, err := newAPIClient(srv.URL+"/").Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.TicketID != id || st.Status != contracts.StatusNew {
		t.Errorf("status = %+v", st)
	}
	if st.StatusInfo.Label != "Nouveau" {
		t.Errorf("label = %q, expected Nouveau", st.StatusInfo.Label)
	}
	if st.MessageCount != 1 {
		t.Errorf("message count = %d, expected 1", st.MessageCount)
	}
}

func TestClientStatus_UnknownTicket(t *testing.T) {
	_, srv := newBackend(t)

	_, err := newAPIClient(srv.URL).Status(context.Background(), "FRE-00000000")
	if !errors.Is(err, ticket.ErrNotFound) {
		t.Fatalf("error = %v, expected ErrNotFound", err)
	}
	var userErr *ticket.UserError
	if !errors.As(err, &userErr) || userErr.Message != "Ticket introuvable" {
		t.Errorf("expected a user-facing error, got %v", err)
	}
}

func TestClientStream(t *testing.T) {
	a, srv := newBackend(t)
	id := openTicket(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan contracts.Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- newAPIClient(srv.URL).Stream(ctx, id, events)
	}()

	next := func() contracts.Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for event")
		}
		return contracts.Event{}
	}

	snapshot := next()
	if snapshot.Type != contracts.EventTicketSnapshot || snapshot.Snapshot == nil || snapshot.Snapshot.ID != id {
		t.Fatalf("first event = %+v, expected snapshot", snapshot)
	}

	if _, err := a.Orchestrator.AddMessage(context.Background(), id, "Toujours rien", "Lucas"); err != nil {
		t.Fatal(err)
	}
	msg := next()
	if msg.Type != contracts.EventNewMessage || msg.Message == nil || msg.Message.Content != "Toujours rien" {
		t.Fatalf("event = %+v, expected the client message", msg)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Stream() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return after cancel")
	}
	// Stream closes the channel on return.
	for range events {
	}
}

func TestStatusCommand(t *testing.T) {
	a, srv := newBackend(t)
	id := openTicket(t, a)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", id, "--url", srv.URL})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{id, "Nouveau", "En attente...", "Messages:     1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestStatusCommand_RejectsMalformedID(t *testing.T) {
	rootCmd.SetArgs([]string{"status", "not-a-ticket"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	if !errors.Is(err, ticket.ErrNotFound) {
		t.Fatalf("error = %v, expected ErrNotFound", err)
	}
}
