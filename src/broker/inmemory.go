package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBuffer = 256

type inMemorySub struct {
	ch     chan Message
	closed bool
}

// InMemoryBroker delivers messages to subscribers in the same process.
// Publishing never blocks: a subscriber whose buffer is full misses the
// message and the drop is counted.
type InMemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[string][]*inMemorySub
	offsets     map[string]int64
	closed      bool
	dropped     atomic.Int64
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subscribers: make(map[string][]*inMemorySub),
		offsets:     make(map[string]int64),
	}
}

// Publish sends a message to all current subscribers of the topic.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	offset := b.offsets[topic]
	b.offsets[topic] = offset + 1

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    offset,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, sub := range b.subscribers[topic] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned channel is closed when
// ctx is done or the broker is closed.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	sub := &inMemorySub{ch: make(chan Message, subscriberBuffer)}
	b.subscribers[topic] = append(b.subscribers[topic], sub)

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			b.unsubscribe(topic, sub)
		}()
	}

	return sub.ch, nil
}

func (b *InMemoryBroker) unsubscribe(topic string, target *inMemorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub == target {
			b.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if !target.closed {
		target.closed = true
		close(target.ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *InMemoryBroker) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Further calls are no-ops.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
	}
	b.subscribers = make(map[string][]*inMemorySub)
	return nil
}
