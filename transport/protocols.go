// Package transport expresses the minimum a bus must satisfy to back
// the control plane: a message stream, request/reply, subject
// subscription (with optional queue groups), and plain publish.
// StoreManager's watch capability is a separate seam (see package
// store) that does not go through a transport.Conn.
package transport

import "context"

// Msg is a single delivered message: a subject, payload bytes, and
// (for request/reply) a way to send a reply back to the requester.
type Msg interface {
	Subject() string
	Data() []byte
	// Reply sends data back to this message's reply inbox, if any. A
	// transport with no reply-to set (pure publish) treats this as a
	// no-op so handlers never need to branch on transport kind.
	Reply(data []byte) error
}

// Handler processes one delivered message.
type Handler func(Msg)

// Subscription is a single live subject subscription. Unsubscribe stops
// delivery; it is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Conn is the pluggable bus handle CtlQueue and the bus-backed
// EventPublisher are built on. Any transport satisfying this
// (NATS, an in-memory bus for tests, or another message-oriented
// substrate) can back the core.
type Conn interface {
	// Publish fires a message with no expectation of reply.
	Publish(subject string, data []byte) error

	// Request sends data to subject and blocks for a single reply or
	// until ctx is done.
	Request(ctx context.Context, subject string, data []byte) (Msg, error)

	// Subscribe delivers every message on subject to handler.
	Subscribe(subject string, handler Handler) (Subscription, error)

	// QueueSubscribe delivers each message on subject to exactly one
	// subscriber sharing group, matching the queue-group subjects in
	// the CtlQueue routing table.
	QueueSubscribe(subject, group string, handler Handler) (Subscription, error)

	// Close tears down the connection and all live subscriptions.
	Close() error
}
