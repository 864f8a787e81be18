package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Connector establishes a physical broker connection. The session manager
// receives one at construction; Dial is the production implementation.
type Connector func(ctx context.Context, opts ServerOptions) (Conn, error)

// Conn is the narrow view of a broker connection the session manager needs.
type Conn interface {
	// Publish sends a message; headers may be nil.
	Publish(subject string, data []byte, header nats.Header) error
	// Request issues a blocking request and waits for the first response
	// or context expiry.
	Request(ctx context.Context, subject string, data []byte, header nats.Header) (*nats.Msg, error)
	// Subscribe opens a message stream on a subject.
	Subscribe(subject string) (Subscription, error)
	// Flush forces buffered writes to the transport.
	Flush() error
	// JetStream exposes the connection's JetStream capability, or an
	// error when the connection has none.
	JetStream() (JetStream, error)
	// Close terminates the connection.
	Close()
	// IsClosed reports whether the underlying client considers itself closed.
	IsClosed() bool
}

// Subscription is one open message stream. Next blocks until a message
// arrives, the stream terminates, or the context is done.
type Subscription interface {
	Next(ctx context.Context) (*nats.Msg, error)
	Unsubscribe() error
}

// JetStream is the durable-pull capability of a connection.
type JetStream interface {
	Consumer(ctx context.Context, stream, durable string) (Consumer, error)
}

// Consumer is a named durable consumer on a stream.
type Consumer interface {
	Fetch(batch int, maxWait time.Duration) (jetstream.MessageBatch, error)
}
