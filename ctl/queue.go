package ctl

import (
	"fmt"

	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/transport"
)

// QueueOptions configures which conditional subscriptions CtlQueue opens.
// ComponentAuctions/ProviderAuctions gate the two auction subjects on
// whether this host's labels advertise auction participation.
type QueueOptions struct {
	Prefix            string
	Lattice           string
	HostID            string
	ComponentAuctions bool
	ProviderAuctions  bool
}

// Queue composes per-topic subscribers and queue groups into a single
// ordered message stream. Construction failure is fatal; after
// construction, a message that arrives while the stream is full is
// dropped and logged. The stream channel is never closed: neither Close
// nor the end of the underlying subscribers closes it.
type Queue struct {
	conn transport.Conn
	opts QueueOptions
	log  hostlog.Logger

	subs []transport.Subscription
	msgs chan transport.Msg
}

// NewQueue builds every subscription in the CtlQueue routing table over
// conn. Subscription failure at this stage is returned to the caller
// (the builder) as fatal.
func NewQueue(conn transport.Conn, opts QueueOptions, log hostlog.Logger) (*Queue, error) {
	if log == nil {
		log = hostlog.Noop()
	}
	q := &Queue{
		conn: conn,
		opts: opts,
		log:  hostlog.WithPrefix(log, "ctlqueue"),
		msgs: make(chan transport.Msg, 256),
	}

	p, l, h := opts.Prefix, opts.Lattice, opts.HostID
	handler := transport.Handler(func(m transport.Msg) { q.deliver(m) })

	type sub struct {
		subject string
		group   string // empty means broadcast
	}
	groupName := func(entity string) string { return p + ".v1." + l + "." + entity }
	subs := []sub{
		{subject: ctlapi.Subject(p, l, "registry", "put")},
		{subject: ctlapi.Subject(p, l, "host", "ping")},
		{subject: ctlapi.Subject(p, l, "link", "*"), group: groupName("link")},
		{subject: ctlapi.Subject(p, l, "claims", "get"), group: groupName("claims")},
		{subject: ctlapi.Subject(p, l, "component", "*", h)},
		{subject: ctlapi.Subject(p, l, "provider", "*", h)},
		{subject: ctlapi.Subject(p, l, "label", "*", h)},
		{subject: ctlapi.Subject(p, l, "host", "*", h)},
		{subject: p + ".v1." + l + ".config.>", group: groupName("config")},
	}
	if opts.ComponentAuctions {
		subs = append(subs, sub{subject: ctlapi.Subject(p, l, "component", "auction")})
	}
	if opts.ProviderAuctions {
		subs = append(subs, sub{subject: ctlapi.Subject(p, l, "provider", "auction")})
	}

	for _, s := range subs {
		var (
			subscription transport.Subscription
			err          error
		)
		if s.group != "" {
			subscription, err = conn.QueueSubscribe(s.subject, s.group, handler)
		} else {
			subscription, err = conn.Subscribe(s.subject, handler)
		}
		if err != nil {
			for _, existing := range q.subs {
				existing.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
		q.subs = append(q.subs, subscription)
	}

	return q, nil
}

func (q *Queue) deliver(m transport.Msg) {
	select {
	case q.msgs <- m:
	default:
		q.log.Warn("ctl queue full, dropping message", "subject", m.Subject())
	}
}

// Messages returns the merged, fair stream of delivered messages. Order
// across subjects is not guaranteed; order within a subject reflects the
// transport's delivery order.
func (q *Queue) Messages() <-chan transport.Msg {
	return q.msgs
}

// Close unsubscribes every underlying subscription.
func (q *Queue) Close() error {
	var firstErr error
	for _, s := range q.subs {
		if err := s.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
