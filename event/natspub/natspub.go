// Package natspub is the NATS-backed EventPublisher wired by
// NatsHostBuilder: it encodes a lifecycle event as CloudEvents JSON and
// publishes it to the "lifecycle.<kind>" subject, logging rather than
// surfacing publish failures.
package natspub

import (
	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/event"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/transport"
)

// Publisher publishes CloudEvents lifecycle events over a transport.Conn.
type Publisher struct {
	conn   transport.Conn
	prefix string
	log    hostlog.Logger
}

var _ event.Publisher = (*Publisher)(nil)

// New builds a Publisher. prefix is the bus topic prefix events publish
// under, e.g. "wasmbus.ctl" — the subject becomes "<prefix>.<evt.Subject()>".
func New(conn transport.Conn, prefix string, log hostlog.Logger) *Publisher {
	if log == nil {
		log = hostlog.Noop()
	}
	return &Publisher{conn: conn, prefix: prefix, log: log}
}

func (p *Publisher) Publish(evt ctlapi.Event) error {
	data, err := evt.Encode()
	if err != nil {
		p.log.Error("failed to encode lifecycle event", "type", evt.Type, "error", err)
		return nil
	}
	subject := p.prefix + "." + evt.Subject()
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("failed to publish lifecycle event", "subject", subject, "error", err)
		return nil
	}
	return nil
}
