package events

import (
	"context"
	"encoding/json"

	"freeda-support/src/broker"
	"freeda-support/src/contracts"
)

// mirrorRecord is the broker payload. Origin lets a process skip the
// records it published itself when relaying.
type mirrorRecord struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

func (b *Broadcaster) publishMirror(ctx context.Context, ticketID string, data []byte) {
	if b.mirror == nil {
		return
	}
	value, err := json.Marshal(mirrorRecord{Origin: b.instanceID, Event: data})
	if err != nil {
		b.logger.Error("[Broadcaster] Failed to encode mirror record for %s: %v", ticketID, err)
		return
	}
	if err := b.mirror.Publish(ctx, contracts.TopicTicketEvents, ticketID, value); err != nil {
		b.logger.Warn("[Broadcaster] Failed to mirror event for %s: %v", ticketID, err)
	}
}

// Consume fans ticket events mirrored by other processes out to this
// process's local subscribers. Records published by this broadcaster are
// skipped. It blocks until ctx is done or msgs is closed.
func (b *Broadcaster) Consume(ctx context.Context, msgs <-chan broker.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.relayOne(msg)
		}
	}
}

func (b *Broadcaster) relayOne(msg broker.Message) {
	var rec mirrorRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		b.logger.Warn("[Broadcaster] Skipping malformed mirror record at offset %d: %v", msg.Offset, err)
		return
	}
	if rec.Origin == b.instanceID {
		return
	}

	var head struct {
		Type     contracts.EventType `json:"type"`
		TicketID string              `json:"ticket_id"`
	}
	if err := json.Unmarshal(rec.Event, &head); err != nil {
		b.logger.Warn("[Broadcaster] Skipping mirror record with bad event: %v", err)
		return
	}
	ticketID := head.TicketID
	if ticketID == "" {
		ticketID = msg.Key
	}
	b.fanOut(ticketID, Frame{Type: head.Type, TicketID: ticketID, Data: rec.Event})
}
