// Package natsconn is the NATS-backed transport.Conn: a thin adapter
// layering connect/reconnect handling and publish/request/queue-subscribe
// over a *nats.Conn.
package natsconn

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/transport"
)

// Config carries the subset of nats.Options the lattice host cares
// about. Zero-value fields fall back to nats.DefaultURL, a 2s reconnect
// wait, and unlimited reconnects. RequestTimeout is not read: Request
// uses ctx's deadline or DefaultRequestTimeout.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	RequestTimeout time.Duration
}

// DefaultRequestTimeout is used by Request when ctx carries no deadline.
const DefaultRequestTimeout = 2 * time.Second

// Conn adapts a *nats.Conn to transport.Conn.
type Conn struct {
	nc  *nats.Conn
	log hostlog.Logger
}

var _ transport.Conn = (*Conn)(nil)

// Connect dials NATS with sane reconnect defaults, logging disconnects
// and reconnects rather than letting them pass silently.
func Connect(cfg Config, log hostlog.Logger) (*Conn, error) {
	if log == nil {
		log = hostlog.Noop()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(orDefault(cfg.ReconnectWait, 2*time.Second)),
		nats.MaxReconnects(orDefaultInt(cfg.MaxReconnects, -1)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Warn("nats connection closed")
		}),
	}

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Conn{nc: nc, log: log}, nil
}

// Raw exposes the underlying *nats.Conn for callers that need more than
// the transport.Conn seam (hostbuilder's JetStream context for store/jskv
// and its supplemental-config request).
func (c *Conn) Raw() *nats.Conn { return c.nc }

func (c *Conn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *Conn) Request(ctx context.Context, subject string, data []byte) (transport.Msg, error) {
	timeout := DefaultRequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	m, err := c.nc.Request(subject, data, timeout)
	if err != nil {
		return nil, err
	}
	return &natsMsg{m: m}, nil
}

func (c *Conn) Subscribe(subject string, handler transport.Handler) (transport.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, wrap(handler))
	if err != nil {
		return nil, err
	}
	return &subscription{sub: sub}, nil
}

func (c *Conn) QueueSubscribe(subject, group string, handler transport.Handler) (transport.Subscription, error) {
	sub, err := c.nc.QueueSubscribe(subject, group, wrap(handler))
	if err != nil {
		return nil, err
	}
	return &subscription{sub: sub}, nil
}

func (c *Conn) Close() error {
	c.nc.Close()
	return nil
}

func wrap(handler transport.Handler) nats.MsgHandler {
	return func(m *nats.Msg) {
		handler(&natsMsg{m: m})
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

type natsMsg struct {
	m *nats.Msg
}

func (n *natsMsg) Subject() string { return n.m.Subject }
func (n *natsMsg) Data() []byte    { return n.m.Data }
func (n *natsMsg) Reply(data []byte) error {
	if n.m.Reply == "" {
		return nil
	}
	return n.m.Respond(data)
}

type subscription struct {
	sub *nats.Subscription
}

func (s *subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && err != nats.ErrBadSubscription {
		return err
	}
	return nil
}
