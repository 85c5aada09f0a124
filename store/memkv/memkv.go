// Package memkv is an in-memory store.Manager used as the default
// StoreManager when HostBuilder is not given one, and by tests: a
// mutex-guarded map plus a list of channel-based watchers fanned out on
// every write.
package memkv

import (
	"context"
	"sync"

	"github.com/latticehost/hostcore/store"
)

type watcher struct {
	key string // empty means watch-all
	ch  chan store.WatchEvent
}

// Store is an in-memory store.Manager.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers []*watcher
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

var _ store.Manager = (*Store)(nil)

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.data[key] = stored
	watchers := append([]*watcher(nil), s.watchers...)
	s.mu.Unlock()

	s.notify(watchers, store.WatchEvent{Key: key, Value: stored, Op: store.OpPut})
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	watchers := append([]*watcher(nil), s.watchers...)
	s.mu.Unlock()

	s.notify(watchers, store.WatchEvent{Key: key, Op: store.OpDelete})
	return nil
}

func (s *Store) ListKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) WatchAll(ctx context.Context) (store.WatchStream, error) {
	return s.addWatcher(ctx, "")
}

func (s *Store) Watch(ctx context.Context, key string) (store.WatchStream, error) {
	return s.addWatcher(ctx, key)
}

func (s *Store) addWatcher(ctx context.Context, key string) (store.WatchStream, error) {
	w := &watcher{key: key, ch: make(chan store.WatchEvent, 64)}

	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	stream := &watchStream{store: s, w: w}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	return stream, nil
}

func (s *Store) removeWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.watchers {
		if existing == w {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

func (s *Store) notify(watchers []*watcher, ev store.WatchEvent) {
	for _, w := range watchers {
		if w.key != "" && w.key != ev.Key {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			// slow watcher: drop rather than block writers.
		}
	}
}

type watchStream struct {
	store *Store
	w     *watcher
	once  sync.Once
}

func (ws *watchStream) Events() <-chan store.WatchEvent { return ws.w.ch }

func (ws *watchStream) Close() error {
	ws.once.Do(func() {
		ws.store.removeWatcher(ws.w)
		close(ws.w.ch)
	})
	return nil
}
