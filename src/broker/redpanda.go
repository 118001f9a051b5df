package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"freeda-support/src/logger"
)

const (
	clientID = "freeda-support"

	// fetchRetryDelay paces polling while the cluster reports fetch errors.
	fetchRetryDelay = time.Second
	// produceTimeout bounds one ticket event publication.
	produceTimeout = 10 * time.Second
)

var errClosed = errors.New("broker is closed")

// RedpandaBroker mirrors ticket events through a Kafka-compatible cluster
// using franz-go. One producer client is shared; every Subscribe call gets
// its own consumer group client, released when its context ends.
type RedpandaBroker struct {
	producer *kgo.Client
	seeds    []string
	logger   logger.Logger

	mu        sync.Mutex
	consumers map[string]*kgo.Client // "topic/group" -> consumer
	closed    bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRedpandaBroker connects a producer to the given seed brokers
// (e.g. ["localhost:19092"]). Topics are created on first use.
func NewRedpandaBroker(seeds []string, log logger.Logger) (*RedpandaBroker, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
		kgo.ProduceRequestTimeout(produceTimeout),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	return &RedpandaBroker{
		producer:  producer,
		seeds:     seeds,
		logger:    log,
		consumers: make(map[string]*kgo.Client),
		done:      make(chan struct{}),
	}, nil
}

// Ping checks that at least one seed broker answers.
func (b *RedpandaBroker) Ping(ctx context.Context) error {
	if err := b.producer.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach brokers %v: %w", b.seeds, err)
	}
	return nil
}

// Publish writes one record and waits for the acknowledgement. Records with
// the same key land on the same partition, which keeps one ticket's events
// in order for every consumer.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errClosed
	}

	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe joins groupID on topic and streams records from the end of the
// topic: relayed viewers only need activity that happens after they attach.
// The channel is closed once ctx is done or the broker is closed.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errClosed
	}
	key := topic + "/" + groupID
	if _, exists := b.consumers[key]; exists {
		return nil, fmt.Errorf("consumer already exists for topic %s and group %s", topic, groupID)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.seeds...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	b.consumers[key] = consumer

	out := make(chan Message, 100)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.release(key, consumer)
		defer close(out)
		b.consume(ctx, consumer, out)
	}()
	return out, nil
}

func (b *RedpandaBroker) consume(ctx context.Context, consumer *kgo.Client, out chan<- Message) {
	for ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				b.logger.Warn("[RedpandaBroker] Fetch error on %s[%d]: %v", fe.Topic, fe.Partition, fe.Err)
			}
			select {
			case <-time.After(fetchRetryDelay):
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
			continue
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			msg := Message{
				Topic:     rec.Topic,
				Key:       string(rec.Key),
				Value:     rec.Value,
				Offset:    rec.Offset,
				Partition: rec.Partition,
				Timestamp: rec.Timestamp.UnixMilli(),
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}
}

// release leaves the consumer group and forgets the consumer, unless Close
// already took ownership of it.
func (b *RedpandaBroker) release(key string, consumer *kgo.Client) {
	b.mu.Lock()
	owned := b.consumers[key] == consumer
	if owned {
		delete(b.consumers, key)
	}
	b.mu.Unlock()
	if owned {
		consumer.Close()
	}
}

// Close stops every consumer, waits for their loops to exit and flushes the
// producer. It is idempotent.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	consumers := b.consumers
	b.consumers = make(map[string]*kgo.Client)
	b.mu.Unlock()

	for _, consumer := range consumers {
		consumer.Close()
	}
	b.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), produceTimeout)
	defer cancel()
	err := b.producer.Flush(ctx)
	b.producer.Close()
	if err != nil {
		return fmt.Errorf("failed to flush pending events: %w", err)
	}
	return nil
}
