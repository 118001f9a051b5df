package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"freeda-support/src/broker"
	"freeda-support/src/clock"
	"freeda-support/src/config"
	"freeda-support/src/contracts"
	"freeda-support/src/orchestrator"
	"freeda-support/src/store"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.Config
		expected Mode
	}{
		{
			name:     "Local mode - no brokers",
			config:   &config.Config{RedpandaBrokers: []string{}},
			expected: LocalMode,
		},
		{
			name:     "Local mode - nil brokers",
			config:   &config.Config{RedpandaBrokers: nil, StorageType: config.StoragePostgres},
			expected: LocalMode,
		},
		{
			name:     "Distributed mode - with brokers",
			config:   &config.Config{RedpandaBrokers: []string{"localhost:19092"}},
			expected: DistributedMode,
		},
		{
			name:     "Distributed mode - multiple brokers",
			config:   &config.Config{RedpandaBrokers: []string{"broker1:9092", "broker2:9092"}},
			expected: DistributedMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := DetectMode(tt.config)
			if mode != tt.expected {
				t.Errorf("Expected mode %v, got %v", tt.expected, mode)
			}
		})
	}
}

// fakeMistral answers every chat completion with reply.
func fakeMistral(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
			})
		case "/v1/embeddings":
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"embedding": []float64{1, 0, 0}}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_LocalWithoutGateway(t *testing.T) {
	cfg := config.Default()
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Mode != LocalMode || a.Broker != nil || a.Gateway != nil || a.Analytics != nil {
		t.Errorf("unexpected wiring: mode=%v broker=%v gateway=%v", a.Mode, a.Broker, a.Gateway)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}

	res, err := a.Orchestrator.CreateTicket(context.Background(), orchestrator.CreateRequest{InitialMessage: "Ma ligne est coupée depuis ce matin", Channel: "chat"})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if res.AssistantMessage.Content != orchestrator.DegradedReply {
		t.Errorf("reply = %q, want degraded text", res.AssistantMessage.Content)
	}

	h := a.Health(context.Background())
	if h.Status != HealthDegraded || h.Gateway.Enabled || h.Mode != "local" {
		t.Errorf("Health() = %+v", h)
	}
}

func TestNew_WithGateway(t *testing.T) {
	srv := fakeMistral(t, "Votre ligne sera rétablie sous 24h.")
	cfg := config.Default()
	cfg.MistralAPIKey = "test-key"
	cfg.MistralBaseURL = srv.URL
	cfg.EnableAnalytics = false

	a, err := New(context.Background(), cfg, nil, WithClock(clock.Fake(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	res, err := a.Orchestrator.CreateTicket(context.Background(), orchestrator.CreateRequest{InitialMessage: "Ma ligne est coupée depuis ce matin", Channel: "chat"})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if res.ReplySource != orchestrator.ReplyGateway || !strings.HasSuffix(res.AssistantMessage.Content, "-- Agent Free") {
		t.Errorf("reply = %q (%s)", res.AssistantMessage.Content, res.ReplySource)
	}

	h := a.Health(context.Background())
	if h.Status != HealthOK || !h.Gateway.Enabled || h.Gateway.Attempts != 1 {
		t.Errorf("Health() = %+v", h)
	}
}

func TestNew_RAGWithMissingKnowledgeBase(t *testing.T) {
	srv := fakeMistral(t, "ok")
	cfg := config.Default()
	cfg.MistralAPIKey = "test-key"
	cfg.MistralBaseURL = srv.URL
	cfg.EnableRAG = true
	cfg.KnowledgeBaseFile = filepath.Join(t.TempDir(), "absent.json")

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()
	if a.Knowledge == nil {
		t.Fatal("knowledge base not created")
	}
	if h := a.Health(context.Background()); h.Knowledge == nil || h.Knowledge.TotalDocuments != 0 || h.KnowledgeDocs != 0 {
		t.Errorf("Health().Knowledge = %+v", h.Knowledge)
	}
}

func TestHealth_ReportsKnowledgeStats(t *testing.T) {
	srv := fakeMistral(t, "ok")
	path := filepath.Join(t.TempDir(), "kb.json")
	data := `[
		{"question": "Comment lire ma facture ?", "answer": "Espace abonné", "category": "facturation"},
		{"question": "Ma facture est fausse", "answer": "Contactez le 3244", "category": "facturation"},
		{"question": "Ma box clignote", "answer": "Redémarrez-la", "category": "technique"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.MistralAPIKey = "test-key"
	cfg.MistralBaseURL = srv.URL
	cfg.EnableRAG = true
	cfg.KnowledgeBaseFile = path

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	h := a.Health(context.Background())
	if h.KnowledgeDocs != 3 || h.Knowledge == nil {
		t.Fatalf("Health() knowledge = %d, %+v", h.KnowledgeDocs, h.Knowledge)
	}
	if h.Knowledge.Categories["facturation"] != 2 || h.Knowledge.Categories["technique"] != 1 {
		t.Errorf("categories = %v", h.Knowledge.Categories)
	}
}

func TestNew_FileStorage(t *testing.T) {
	cfg := config.Default()
	cfg.StorageType = config.StorageFile
	cfg.TicketsFile = filepath.Join(t.TempDir(), "data", "tickets.json")

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Orchestrator.CreateTicket(context.Background(), orchestrator.CreateRequest{InitialMessage: "Facture incorrecte", Channel: "email"}); err != nil {
		t.Fatal(err)
	}
	a.Close()

	if _, err := os.Stat(cfg.TicketsFile); err != nil {
		t.Errorf("tickets file not written: %v", err)
	}
}

func TestNew_BadCannedRepliesFile(t *testing.T) {
	cfg := config.Default()
	cfg.CannedRepliesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Error("New() expected error for missing canned replies file")
	}
}

func TestDistributed_RelayBetweenReplicas(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := store.NewMemoryStore()
	bus := broker.NewInMemoryBroker()
	defer bus.Close()

	cfg := config.Default()
	cfg.RedpandaBrokers = []string{"in-memory"}

	writer, err := New(ctx, cfg, nil, WithStore(shared), WithBroker(bus))
	if err != nil {
		t.Fatal(err)
	}
	reader, err := New(ctx, cfg, nil, WithStore(shared), WithBroker(bus))
	if err != nil {
		t.Fatal(err)
	}
	if writer.Mode != DistributedMode {
		t.Fatalf("Mode = %v", writer.Mode)
	}
	if err := reader.Start(ctx); err != nil {
		t.Fatal(err)
	}

	created, err := writer.Orchestrator.CreateTicket(ctx, orchestrator.CreateRequest{InitialMessage: "Box en panne", Channel: "email"})
	if err != nil {
		t.Fatal(err)
	}

	sub, err := reader.Orchestrator.Watch(ctx, created.Ticket.ID)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer reader.Orchestrator.Unwatch(sub)

	if _, err := writer.Orchestrator.AddMessage(ctx, created.Ticket.ID, "Toujours rien", ""); err != nil {
		t.Fatal(err)
	}

	// Relayed creation events may still be in flight, so skip ahead.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-sub.C():
			var ev contracts.Event
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.Type == contracts.EventNewMessage && ev.Message.Content == "Toujours rien" {
				return
			}
		case <-timeout:
			t.Fatal("event from the other replica never arrived")
		}
	}
}

// unreachableBroker is an in-memory broker whose cluster never answers.
type unreachableBroker struct {
	*broker.InMemoryBroker
}

func (unreachableBroker) Ping(context.Context) error {
	return errors.New("dial tcp 10.0.0.9:19092: connection refused")
}

func TestHealth_UnreachableBrokerDegrades(t *testing.T) {
	srv := fakeMistral(t, "ok")
	cfg := config.Default()
	cfg.MistralAPIKey = "test-key"
	cfg.MistralBaseURL = srv.URL

	a, err := New(context.Background(), cfg, nil, WithBroker(unreachableBroker{broker.NewInMemoryBroker()}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	h := a.Health(context.Background())
	if h.Status != HealthDegraded {
		t.Errorf("status = %q, want %q", h.Status, HealthDegraded)
	}
	if !strings.Contains(h.BrokerError, "connection refused") {
		t.Errorf("broker error = %q", h.BrokerError)
	}
}
