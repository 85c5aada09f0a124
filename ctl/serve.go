package ctl

import (
	"context"

	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/transport"
)

// Serve drains queue, dispatching each message through d and sending its
// reply (when SendReply) back to the message's reply inbox. Each message
// is handled in its own goroutine — handler invocations are spawned per
// message, bounded only by inflight message arrival, so a suspended
// handler (a StoreManager call, a PolicyManager consultation, a bus
// publish) never blocks the next queued message from being read and
// dispatched. Serve returns when ctx is done, or if the queue's message
// channel is closed, which Queue itself never does; in-flight handler
// goroutines are not waited on.
func Serve(ctx context.Context, queue *Queue, d *Dispatcher, log hostlog.Logger) {
	if log == nil {
		log = hostlog.Noop()
	}
	for {
		select {
		case m, ok := <-queue.Messages():
			if !ok {
				return
			}
			go handleOne(ctx, d, m, log)
		case <-ctx.Done():
			return
		}
	}
}

func handleOne(ctx context.Context, d *Dispatcher, m transport.Msg, log hostlog.Logger) {
	result := d.Dispatch(ctx, m.Subject(), m.Data())
	if !result.SendReply {
		return
	}
	if err := m.Reply(result.Reply); err != nil {
		// Transport error publishing a reply is logged, not surfaced —
		// the client simply times out.
		log.Warn("failed to send reply", "subject", m.Subject(), "error", err)
	}
}
