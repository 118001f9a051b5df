// Package broker carries ticket events between processes.
//
// Every event broadcast to local viewers is also published through a Broker,
// so that another API replica (or an agent console, or an archiver) can
// follow ticket activity it did not handle itself.
package broker

import "context"

// Broker publishes and consumes keyed records. InMemoryBroker serves a
// single process and tests; RedpandaBroker spans replicas.
type Broker interface {
	// Publish sends value to topic. Ticket events are keyed by ticket id;
	// implementations that partition must keep one key's records ordered.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe streams records published to topic. Subscribers sharing a
	// groupID split the records between them; the in-memory broker ignores
	// groupID and gives every subscriber a copy.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close releases connections. Subscriber channels are closed.
	Close() error
}

// Pinger is implemented by brokers backed by a remote cluster.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Message is a consumed record.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	// Timestamp is in Unix milliseconds.
	Timestamp int64
}
