package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"freeda-support/src/clock"
	"freeda-support/src/contracts"
	"freeda-support/src/gateway"
	"freeda-support/src/logger"
)

type fakeChatter struct {
	reply string
	err   error
	calls []gateway.Request
}

func (f *fakeChatter) Chat(ctx context.Context, req gateway.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

var now = time.Date(2025, 4, 10, 15, 0, 0, 0, time.UTC)

func newService(gw Chatter) *Service {
	return NewService(gw, clock.Fake(now), logger.NewSilentLogger())
}

func user(content string) contracts.ChatMessage {
	return contracts.ChatMessage{Role: contracts.RoleUser, Content: content}
}

func TestAnalyzeTicket_ParsesVerdict(t *testing.T) {
	gw := &fakeChatter{reply: "```json\n{\"sentiment\":\"negatif\",\"category\":\"technique\",\"urgency\":\"haute\",\"churn_risk\":45,\"summary\":\"Panne fibre depuis 3 jours\",\"next_action\":\"Envoyer un technicien\"}\n```"}
	s := newService(gw)

	got, err := s.AnalyzeTicket(context.Background(), []contracts.ChatMessage{user("Ma fibre est coupée depuis 3 jours")})
	if err != nil {
		t.Fatalf("AnalyzeTicket() error = %v", err)
	}
	if got.Sentiment != "negatif" || got.Category != "technique" || got.Urgency != "haute" || got.ChurnRisk != 45 {
		t.Errorf("AnalyzeTicket() = %+v", got)
	}
	if got.Alert != "" {
		t.Errorf("Alert = %q, want none below threshold", got.Alert)
	}
	if !got.AnalyzedAt.Equal(now) {
		t.Errorf("AnalyzedAt = %v, want %v", got.AnalyzedAt, now)
	}

	if len(gw.calls) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(gw.calls))
	}
	req := gw.calls[0]
	if req.Temperature == nil || *req.Temperature != 0.1 || req.MaxTokens != 300 {
		t.Errorf("request params = temp %v, tokens %d", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.Messages[0].Content, "USER: Ma fibre est coupée") {
		t.Errorf("prompt missing conversation: %q", req.Messages[0].Content)
	}
}

func TestAnalyzeTicket_ChurnAlert(t *testing.T) {
	gw := &fakeChatter{reply: `Voici: {"sentiment":"negatif","category":"resiliation","urgency":"haute","churn_risk":"92","summary":"Veut partir chez un concurrent","next_action":"Offre de retention"}`}
	got, err := newService(gw).AnalyzeTicket(context.Background(), []contracts.ChatMessage{user("Je vais résilier, c'est trop cher")})
	if err != nil {
		t.Fatalf("AnalyzeTicket() error = %v", err)
	}
	if got.ChurnRisk != 92 || got.Alert != AlertRetention {
		t.Errorf("churn = %d alert = %q", got.ChurnRisk, got.Alert)
	}
}

func TestAnalyzeTicket_SkipsTrivialMessages(t *testing.T) {
	for _, msg := range []string{"ok", "Merci", "oui", "d'accord", "non", "top", "  ok  "} {
		gw := &fakeChatter{reply: "{}"}
		got, err := newService(gw).AnalyzeTicket(context.Background(), []contracts.ChatMessage{user("Bonjour, ma box clignote"), user(msg)})
		if err != nil {
			t.Fatalf("AnalyzeTicket(%q) error = %v", msg, err)
		}
		if len(gw.calls) != 0 {
			t.Errorf("AnalyzeTicket(%q) called the gateway", msg)
		}
		if got.Sentiment != "neutre" || got.Category != "autre" {
			t.Errorf("AnalyzeTicket(%q) = %+v, want default", msg, got)
		}
	}
}

func TestAnalyzeTicket_UsesLastFiveTurns(t *testing.T) {
	gw := &fakeChatter{reply: `{"sentiment":"neutre"}`}
	history := []contracts.ChatMessage{
		user("message un"), user("message deux"), user("message trois"),
		{Role: contracts.RoleAssistant, Content: "message quatre"},
		user("message cinq"), user("message six"), user("message sept"),
	}
	if _, err := newService(gw).AnalyzeTicket(context.Background(), history); err != nil {
		t.Fatalf("AnalyzeTicket() error = %v", err)
	}
	p := gw.calls[0].Messages[0].Content
	if strings.Contains(p, "message deux") {
		t.Error("prompt includes turns older than the last five")
	}
	if !strings.Contains(p, "ASSISTANT: message quatre") || !strings.Contains(p, "USER: message sept") {
		t.Errorf("prompt missing recent turns: %q", p)
	}
}

func TestAnalyzeTicket_Failures(t *testing.T) {
	tests := []struct {
		name string
		gw   *fakeChatter
	}{
		{"gateway error", &fakeChatter{err: gateway.ErrServiceUnavailable}},
		{"garbage reply", &fakeChatter{reply: "désolé, je ne peux pas"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newService(tt.gw).AnalyzeTicket(context.Background(), []contracts.ChatMessage{user("Problème de facture")})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got.Sentiment != "neutre" || got.Urgency != "moyenne" || got.ChurnRisk != 0 {
				t.Errorf("fallback record = %+v", got)
			}
		})
	}

	_, err := newService(&fakeChatter{err: gateway.ErrGenerationFailed}).AnalyzeTicket(context.Background(), []contracts.ChatMessage{user("Problème de facture")})
	if !errors.Is(err, gateway.ErrGenerationFailed) {
		t.Errorf("error = %v, want wrapped ErrGenerationFailed", err)
	}
}

func TestAnalyzeTicket_NoGateway(t *testing.T) {
	got, err := newService(nil).AnalyzeTicket(context.Background(), []contracts.ChatMessage{user("Problème de facture")})
	if err != nil || got.Summary != "En attente d'analyse" {
		t.Errorf("AnalyzeTicket() = %+v, %v", got, err)
	}
}

func TestParse_ClampsAndTruncates(t *testing.T) {
	long := strings.Repeat("é", 150)
	got, err := Parse(`{"churn_risk": 250, "summary": "` + long + `"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.ChurnRisk != 100 {
		t.Errorf("ChurnRisk = %d, want clamped 100", got.ChurnRisk)
	}
	if n := len([]rune(got.Summary)); n != 100 {
		t.Errorf("summary length = %d runes, want 100", n)
	}
	if got.NextAction != "Vérifier le dossier" || got.Category != "autre" {
		t.Errorf("defaults not applied: %+v", got)
	}

	got, _ = Parse(`{"churn_risk": -3}`)
	if got.ChurnRisk != 0 {
		t.Errorf("ChurnRisk = %d, want clamped 0", got.ChurnRisk)
	}
}

func TestIsTrivial(t *testing.T) {
	tests := map[string]bool{
		"ok":                         true,
		"OUI":                        true,
		"abcd":                       true,
		"Ma box ne s'allume plus":    false,
		"merci beaucoup pour l'aide": false,
	}
	for msg, want := range tests {
		if got := IsTrivial(msg); got != want {
			t.Errorf("IsTrivial(%q) = %v, want %v", msg, got, want)
		}
	}
}
