// Package memconn is an in-process transport.Conn used by tests and by
// embedders that don't want a live NATS server: a mutex-guarded
// subscriber list, an atomic subscription-id counter, and round-robin
// delivery for queue groups.
package memconn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/latticehost/hostcore/transport"
)

// ErrRequestTimeout is returned by Request when ctx is done before a
// reply arrives.
var ErrRequestTimeout = errors.New("memconn: request timed out")

type msg struct {
	subject string
	data    []byte
	replyFn func([]byte) error
}

func (m *msg) Subject() string { return m.subject }
func (m *msg) Data() []byte    { return m.data }
func (m *msg) Reply(data []byte) error {
	if m.replyFn == nil {
		return nil
	}
	return m.replyFn(data)
}

type subscriberEntry struct {
	id      uint64
	group   string // empty for broadcast subscriptions
	handler transport.Handler
}

// Conn is an in-memory transport.Conn. The zero value is not usable; use
// New.
type Conn struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriberEntry // subject -> entries
	nextID      atomic.Uint64
	groupCursor map[string]int // "subject\x00group" -> round-robin cursor
}

// New returns a ready-to-use in-memory Conn.
func New() *Conn {
	return &Conn{
		subscribers: make(map[string][]*subscriberEntry),
		groupCursor: make(map[string]int),
	}
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) Publish(subject string, data []byte) error {
	return c.deliver(subject, data, nil)
}

func (c *Conn) Request(ctx context.Context, subject string, data []byte) (transport.Msg, error) {
	replyCh := make(chan []byte, 1)
	replyFn := func(reply []byte) error {
		select {
		case replyCh <- reply:
		default:
		}
		return nil
	}
	if err := c.deliver(subject, data, replyFn); err != nil {
		return nil, err
	}
	select {
	case reply := <-replyCh:
		return &msg{subject: subject, data: reply}, nil
	case <-ctx.Done():
		return nil, ErrRequestTimeout
	}
}

func (c *Conn) Subscribe(subject string, handler transport.Handler) (transport.Subscription, error) {
	return c.subscribe(subject, "", handler)
}

func (c *Conn) QueueSubscribe(subject, group string, handler transport.Handler) (transport.Subscription, error) {
	return c.subscribe(subject, group, handler)
}

func (c *Conn) subscribe(subject, group string, handler transport.Handler) (transport.Subscription, error) {
	entry := &subscriberEntry{id: c.nextID.Add(1), group: group, handler: handler}

	c.mu.Lock()
	c.subscribers[subject] = append(c.subscribers[subject], entry)
	c.mu.Unlock()

	return &subscription{conn: c, subject: subject, id: entry.id}, nil
}

func (c *Conn) unsubscribe(subject string, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.subscribers[subject]
	for i, e := range entries {
		if e.id == id {
			c.subscribers[subject] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// deliver fans a message out to every broadcast subscriber whose pattern
// matches subject, and round-robins among each distinct queue group
// matching it. Patterns support NATS-style "*" (one token) and ">"
// (trailing tokens) wildcards, since CtlQueue subscribes using them
// (e.g. "...link.*", "...config.>").
func (c *Conn) deliver(subject string, data []byte, replyFn func([]byte) error) error {
	c.mu.RLock()
	var entries []*subscriberEntry
	for pattern, subs := range c.subscribers {
		if subjectMatches(pattern, subject) {
			entries = append(entries, subs...)
		}
	}
	c.mu.RUnlock()

	groups := make(map[string][]*subscriberEntry)
	for _, e := range entries {
		if e.group == "" {
			go e.handler(&msg{subject: subject, data: data, replyFn: replyFn})
			continue
		}
		groups[e.group] = append(groups[e.group], e)
	}

	for group, members := range groups {
		key := subject + "\x00" + group
		c.mu.Lock()
		idx := c.groupCursor[key] % len(members)
		c.groupCursor[key] = idx + 1
		c.mu.Unlock()
		chosen := members[idx]
		go chosen.handler(&msg{subject: subject, data: data, replyFn: replyFn})
	}
	return nil
}

// subjectMatches reports whether subject satisfies pattern, supporting
// the NATS wildcard tokens "*" (exactly one token) and ">" (one or more
// trailing tokens, only valid as the final token).
func subjectMatches(pattern, subject string) bool {
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, pt := range pTokens {
		if pt == ">" {
			return i < len(sTokens)
		}
		if i >= len(sTokens) {
			return false
		}
		if pt != "*" && pt != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = make(map[string][]*subscriberEntry)
	return nil
}

type subscription struct {
	conn    *Conn
	subject string
	id      uint64
}

func (s *subscription) Unsubscribe() error {
	return s.conn.unsubscribe(s.subject, s.id)
}
