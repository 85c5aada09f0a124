// Package jskv is a JetStream Key-Value backed store.Manager, the
// production StoreManager behind NatsHostBuilder. Bucket setup follows an
// idempotent "describe, else create" idiom adapted from JetStream stream
// provisioning to the JetStream Key-Value surface.
package jskv

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/latticehost/hostcore/store"
)

// Config configures the JetStream KV bucket backing a Store.
type Config struct {
	Bucket      string
	Description string
	// History is the number of revisions JetStream retains per key.
	// Zero uses the NATS client default.
	History uint8
}

// Store adapts a NATS JetStream KeyValue bucket to store.Manager.
type Store struct {
	kv nats.KeyValue
}

var _ store.Manager = (*Store)(nil)

// Open binds to an existing bucket, creating it if absent — an
// idempotent "describe, else create" step applied to KV buckets.
func Open(js nats.JetStreamContext, cfg Config) (*Store, error) {
	kv, err := js.KeyValue(cfg.Bucket)
	if err == nil {
		return &Store{kv: kv}, nil
	}
	if err != nats.ErrBucketNotFound {
		return nil, fmt.Errorf("lookup bucket %s: %w", cfg.Bucket, err)
	}

	history := cfg.History
	if history == 0 {
		history = 1
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: cfg.Description,
		History:     history,
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
	}
	return &Store{kv: kv}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(key)
	if err == nats.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value(), true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	_, err := s.kv.Put(key, value)
	return err
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.kv.Delete(key)
	if err == nats.ErrKeyNotFound {
		return nil
	}
	return err
}

func (s *Store) ListKeys(_ context.Context) ([]string, error) {
	keys, err := s.kv.Keys()
	if err == nats.ErrNoKeysFound {
		return nil, nil
	}
	return keys, err
}

// WatchAll streams live changes only: callers replay pre-existing state
// themselves through ListKeys+Get, so historical values must not leak
// into the update channel as if they were fresh writes.
func (s *Store) WatchAll(ctx context.Context) (store.WatchStream, error) {
	w, err := s.kv.WatchAll(nats.UpdatesOnly())
	if err != nil {
		return nil, err
	}
	return newWatchStream(ctx, w), nil
}

func (s *Store) Watch(ctx context.Context, key string) (store.WatchStream, error) {
	w, err := s.kv.Watch(key, nats.UpdatesOnly())
	if err != nil {
		return nil, err
	}
	return newWatchStream(ctx, w), nil
}

type watchStream struct {
	w      nats.KeyWatcher
	events chan store.WatchEvent
	cancel context.CancelFunc
}

// newWatchStream pumps nats.KeyWatcher updates into a store.WatchEvent
// channel, dropping the nil "caught up" marker entry the NATS client
// sends before switching to live updates.
func newWatchStream(ctx context.Context, w nats.KeyWatcher) *watchStream {
	ctx, cancel := context.WithCancel(ctx)
	ws := &watchStream{w: w, events: make(chan store.WatchEvent, 64), cancel: cancel}

	go func() {
		defer close(ws.events)
		for {
			select {
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				op := store.OpPut
				if entry.Operation() == nats.KeyValueDelete || entry.Operation() == nats.KeyValuePurge {
					op = store.OpDelete
				}
				select {
				case ws.events <- store.WatchEvent{Key: entry.Key(), Value: entry.Value(), Op: op}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ws
}

func (ws *watchStream) Events() <-chan store.WatchEvent { return ws.events }

func (ws *watchStream) Close() error {
	ws.cancel()
	return ws.w.Stop()
}
