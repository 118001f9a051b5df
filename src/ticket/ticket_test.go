package ticket

import (
	"errors"
	"testing"
	"time"

	"freeda-support/src/contracts"
)

var t0 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := NewID()
		if !ValidID(id) {
			t.Fatalf("NewID() = %q, not a valid id", id)
		}
		if seen[id] {
			t.Fatalf("NewID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"FRE-1A2B3C4D", true},
		{"FRE-00000000", true},
		{"FRE-1a2b3c4d", false},
		{"FRE-1A2B3C4", false},
		{"ABC-1A2B3C4D", false},
		{"FRE-1A2B3C4G", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	tk, err := New("FRE-AAAAAAAA", "Ma box ne marche plus", "Julie", "chat", t0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tk.Status != contracts.StatusNew {
		t.Errorf("Status = %q, want nouveau", tk.Status)
	}
	if len(tk.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(tk.Messages))
	}
	m := tk.Messages[0]
	if m.Type != contracts.MessageClient || m.Author != "Julie" || m.Content != "Ma box ne marche plus" {
		t.Errorf("opening message = %+v", m)
	}
	if m.ID == "" {
		t.Error("opening message has no id")
	}
	if !tk.CreatedAt.Equal(t0) || !tk.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v, want %v", tk.CreatedAt, tk.UpdatedAt, t0)
	}
}

func TestNew_Defaults(t *testing.T) {
	tk, err := New("FRE-AAAAAAAA", "Bonjour", "", "", t0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tk.CustomerName != AnonymousCustomer {
		t.Errorf("CustomerName = %q, want %q", tk.CustomerName, AnonymousCustomer)
	}
	if tk.Messages[0].Author != "Client" {
		t.Errorf("author = %q, want Client", tk.Messages[0].Author)
	}
	if tk.Channel != "chat" {
		t.Errorf("Channel = %q, want chat", tk.Channel)
	}
}

func TestNew_RejectsEmptyMessage(t *testing.T) {
	if _, err := New("FRE-AAAAAAAA", "   ", "Julie", "chat", t0); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("New() error = %v, want ErrEmptyMessage", err)
	}
}

func TestAppendMessage(t *testing.T) {
	tk, _ := New("FRE-AAAAAAAA", "Bonjour", "Julie", "chat", t0)
	later := t0.Add(time.Minute)

	msg, err := AppendMessage(tk, "Toujours en panne", "", later)
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if msg.Author != "Julie" {
		t.Errorf("author = %q, want customer name", msg.Author)
	}
	if len(tk.Messages) != 2 {
		t.Errorf("len(Messages) = %d, want 2", len(tk.Messages))
	}
	if !tk.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", tk.UpdatedAt, later)
	}
	if tk.Status != contracts.StatusNew {
		t.Errorf("append changed status to %q", tk.Status)
	}
}

func TestAppendMessage_ClosedTicket(t *testing.T) {
	tk, _ := New("FRE-AAAAAAAA", "Bonjour", "Julie", "chat", t0)
	Close(tk, t0.Add(time.Minute))
	before := len(tk.Messages)
	updated := tk.UpdatedAt

	_, err := AppendMessage(tk, "Encore moi", "Julie", t0.Add(2*time.Minute))
	if !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("AppendMessage() error = %v, want ErrTicketClosed", err)
	}
	if len(tk.Messages) != before {
		t.Errorf("len(Messages) = %d, want unchanged %d", len(tk.Messages), before)
	}
	if !tk.UpdatedAt.Equal(updated) {
		t.Error("UpdatedAt changed on rejected append")
	}
}

func TestAppendAssistantMessage(t *testing.T) {
	tk, _ := New("FRE-AAAAAAAA", "Bonjour", "Julie", "chat", t0)
	msg := AppendAssistantMessage(tk, "Bonjour Julie", t0.Add(time.Second))

	if msg.Type != contracts.MessageAssistant || msg.Author != AssistantAuthor {
		t.Errorf("assistant message = %+v", msg)
	}
	if msg.Role() != contracts.RoleAssistant {
		t.Errorf("Role() = %q, want assistant", msg.Role())
	}
	if tk.Status != contracts.StatusNew {
		t.Errorf("Status = %q, want unchanged", tk.Status)
	}
}

func TestClose_Idempotent(t *testing.T) {
	tk, _ := New("FRE-AAAAAAAA", "Bonjour", "Julie", "chat", t0)
	first := t0.Add(time.Hour)

	if !Close(tk, first) {
		t.Fatal("first Close() = false, want true")
	}
	if tk.Status != contracts.StatusClosed || tk.ClosedAt == nil || !tk.ClosedAt.Equal(first) {
		t.Fatalf("after close: status=%q closedAt=%v", tk.Status, tk.ClosedAt)
	}

	if Close(tk, first.Add(time.Hour)) {
		t.Error("second Close() = true, want false")
	}
	if !tk.UpdatedAt.Equal(first) {
		t.Errorf("UpdatedAt = %v, want unchanged %v", tk.UpdatedAt, first)
	}
	if !tk.ClosedAt.Equal(first) {
		t.Errorf("ClosedAt = %v, want unchanged %v", tk.ClosedAt, first)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		target  contracts.Status
		wantErr bool
	}{
		{contracts.StatusClosed, false},
		{contracts.StatusNew, true},
		{contracts.StatusInProgress, true},
		{"ferme", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateTransition(tt.target)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTransition(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("ValidateTransition(%q) error = %v, want ErrInvalidTransition", tt.target, err)
		}
	}
}

func TestStartProgress(t *testing.T) {
	tk, _ := New("FRE-AAAAAAAA", "Bonjour", "Julie", "chat", t0)

	if err := StartProgress(tk, t0); err != nil || tk.Status != contracts.StatusInProgress {
		t.Fatalf("StartProgress() = %v, status %q", err, tk.Status)
	}
	if err := StartProgress(tk, t0); err != nil {
		t.Errorf("second StartProgress() error = %v", err)
	}

	Close(tk, t0)
	if err := StartProgress(tk, t0); !errors.Is(err, ErrTicketClosed) {
		t.Errorf("StartProgress() on closed = %v, want ErrTicketClosed", err)
	}
}

func TestInfoAndLabel(t *testing.T) {
	if got := Info(contracts.StatusClosed); got.Label != "Résolu" || got.Color != "green" {
		t.Errorf("Info(fermé) = %+v", got)
	}
	if got := Info("archivé"); got.Label != "archivé" || got.Color != "gray" {
		t.Errorf("Info(unknown) = %+v", got)
	}
	if got := Label(contracts.StatusNew); got != "Nouveau - En attente" {
		t.Errorf("Label(nouveau) = %q", got)
	}
}
