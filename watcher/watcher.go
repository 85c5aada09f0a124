// Package watcher implements DataWatcher: the reconciliation loop that
// drains the lattice StoreManager's watch-all stream and applies each
// entry to Host's in-memory projection, replaying current state silently
// at startup before switching to live event emission.
package watcher

import (
	"context"
	"fmt"

	"github.com/latticehost/hostcore/host"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/store"
	"github.com/latticehost/hostcore/telemetry"
)

// Host is the subset of host.Host the watcher depends on, kept narrow so
// tests can exercise the watcher against a fake.
type Host interface {
	ProcessEntry(key string, value []byte, op latticedata.Op, emitEvents bool)
	Stop() *host.StopSignal
}

// DataWatcher drains a StoreManager's watch-all stream into a Host's
// projection, replaying current state silently at startup and then
// emitting events for every live transition.
type DataWatcher struct {
	mgr  store.Manager
	host Host
	log  hostlog.Logger
}

// New builds a DataWatcher over mgr (the lattice-data StoreManager) and
// host (the projection it updates).
func New(mgr store.Manager, host Host, log hostlog.Logger) *DataWatcher {
	if log == nil {
		log = hostlog.Noop()
	}
	return &DataWatcher{mgr: mgr, host: host, log: hostlog.WithPrefix(log, "watcher")}
}

// Run executes the watch-all/list-replay/live-mode sequence until ctx is
// canceled or the host's stop signal fires. Any termination other than an
// explicit stop is treated as fatal: Run returns a non-nil error and the
// caller (HostBuilder) is expected to trigger host stop.
func (w *DataWatcher) Run(ctx context.Context) error {
	stream, err := w.mgr.WatchAll(ctx)
	if err != nil {
		return fmt.Errorf("open watch-all stream: %w", err)
	}
	defer stream.Close()

	keys, err := w.mgr.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list keys for replay: %w", err)
	}
	for _, key := range keys {
		value, ok, err := w.mgr.Get(ctx, key)
		if err != nil {
			w.log.Warn("replay: failed to fetch key", "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		w.applyEntry(key, value, latticedata.OpPut, false)
	}

	stopC := w.host.Stop().C()
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watch-all stream ended unexpectedly")
			}
			w.applyEntry(ev.Key, ev.Value, ev.Op, true)
		case <-stopC:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *DataWatcher) applyEntry(key string, value []byte, op latticedata.Op, emitEvents bool) {
	prefix, _, ok := latticedata.SplitKey(key)
	status := "applied"
	if !ok {
		status = "discarded"
		prefix = "unknown"
	} else if prefix == latticedata.PrefixLinkdef || prefix == latticedata.PrefixRefmap {
		status = "ignored"
	} else if prefix != latticedata.PrefixComponent && prefix != latticedata.PrefixClaims {
		status = "discarded"
	}
	telemetry.RecordWatcherEntry(prefix, op.String(), status)

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("panic processing lattice entry", "key", key, "panic", r)
		}
	}()
	w.host.ProcessEntry(key, value, op, emitEvents)
}
