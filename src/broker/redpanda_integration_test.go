//go:build integration

package broker

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"freeda-support/src/logger"
)

func TestRedpandaBrokerIntegration(t *testing.T) {
	brokers := os.Getenv("REDPANDA_BROKERS")
	if brokers == "" {
		t.Skip("REDPANDA_BROKERS not set, skipping integration test")
	}

	b, err := NewRedpandaBroker(strings.Split(brokers, ","), logger.NewSilentLogger())
	if err != nil {
		t.Fatalf("NewRedpandaBroker failed: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	topic := "freeda.integration." + uuid.NewString()[:8]
	msgs, err := b.Subscribe(ctx, topic, "freeda-it-"+uuid.NewString())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Consumption starts at the end of the topic, so keep publishing until
	// the group has joined and one message comes through.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := b.Publish(ctx, topic, "FRE-1A2B3C4D", []byte(`{"type":"status_updated"}`)); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
		case msg, ok := <-msgs:
			if !ok {
				t.Fatal("message channel closed")
			}
			if msg.Key != "FRE-1A2B3C4D" || msg.Topic != topic {
				t.Errorf("unexpected message %+v", msg)
			}
			return
		case <-ctx.Done():
			t.Fatal("timeout waiting for mirrored message")
		}
	}
}
