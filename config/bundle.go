// Package config implements ConfigBundleGenerator: a live, merge-watched
// view over an ordered list of config-bucket keys. Bundles use a
// Default/FromMap/ToMap map-shape idiom, and changes are broadcast to
// listeners send-if-modified so unchanged bundles never wake a waiter.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/store"
	"github.com/latticehost/hostcore/telemetry"
)

// Generator builds Bundles over a StoreManager bound to the config
// bucket. One Generator per host backs every Bundle a caller requests;
// the config.get/put/del handlers use the config StoreManager directly.
type Generator struct {
	mgr store.Manager
	log hostlog.Logger
}

// NewGenerator builds a Generator over mgr, the config-bucket StoreManager.
func NewGenerator(mgr store.Manager, log hostlog.Logger) *Generator {
	if log == nil {
		log = hostlog.Noop()
	}
	return &Generator{mgr: mgr, log: log}
}

// Bundle is a live merged view over an ordered list of config names.
// Later names in the list override earlier ones on key conflicts.
type Bundle struct {
	names []string
	label string

	mu      sync.RWMutex
	partial map[string]map[string]string // name -> decoded JSON map
	merged  map[string]string

	listenersMu sync.Mutex
	listeners   []chan map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// Generate resolves every name to its current value, starts one
// per-key watcher per name, and returns a live Bundle. Setup errors
// surface synchronously before Generate returns.
func (g *Generator) Generate(ctx context.Context, names []string) (*Bundle, error) {
	bctx, cancel := context.WithCancel(context.Background())
	b := &Bundle{
		names:   append([]string(nil), names...),
		label:   strings.Join(names, ","),
		partial: make(map[string]map[string]string, len(names)),
		merged:  make(map[string]string),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	type resolved struct {
		name string
		m    map[string]string
		err  error
	}
	results := make(chan resolved, len(names))
	for _, name := range names {
		name := name
		go func() {
			val, ok, err := g.mgr.Get(ctx, name)
			if err != nil {
				results <- resolved{name: name, err: err}
				return
			}
			if !ok {
				results <- resolved{name: name, m: map[string]string{}}
				return
			}
			m, err := decodeConfigValue(val)
			if err != nil {
				results <- resolved{name: name, err: fmt.Errorf("decode config %q: %w", name, err)}
				return
			}
			results <- resolved{name: name, m: m}
		}()
	}
	for range names {
		r := <-results
		if r.err != nil {
			cancel()
			return nil, r.err
		}
		b.partial[r.name] = r.m
	}
	b.recompute(false)

	watchers := make([]store.WatchStream, 0, len(names))
	for _, name := range names {
		ws, err := g.mgr.Watch(bctx, name)
		if err != nil {
			cancel()
			for _, w := range watchers {
				w.Close()
			}
			return nil, fmt.Errorf("watch config %q: %w", name, err)
		}
		watchers = append(watchers, ws)
		go b.pump(name, ws, g.log)
	}

	go func() {
		<-bctx.Done()
		for _, w := range watchers {
			w.Close()
		}
		close(b.done)
	}()

	return b, nil
}

func (b *Bundle) pump(name string, ws store.WatchStream, log hostlog.Logger) {
	for ev := range ws.Events() {
		b.mu.Lock()
		switch ev.Op {
		case store.OpDelete:
			b.partial[name] = map[string]string{}
		default:
			m, err := decodeConfigValue(ev.Value)
			if err != nil {
				log.Warn("discarding malformed config entry", "name", name, "error", err)
				b.mu.Unlock()
				continue
			}
			b.partial[name] = m
		}
		b.mu.Unlock()
		b.recompute(true)
	}
}

// recompute rebuilds the merged map under lock and, if emit is true,
// broadcasts the new map to subscribers only when it changed byte-for-byte.
func (b *Bundle) recompute(emit bool) {
	b.mu.Lock()
	next := make(map[string]string)
	for _, name := range b.names {
		maps.Copy(next, b.partial[name])
	}
	changed := !maps.Equal(next, b.merged)
	b.merged = next
	snapshot := maps.Clone(next)
	b.mu.Unlock()

	if emit && changed {
		telemetry.RecordConfigBundleChange(b.label)
		b.broadcast(snapshot)
	}
}

// Current returns a snapshot of the current merged map.
func (b *Bundle) Current() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.merged)
}

// Subscribe returns a channel receiving every subsequent merged-map
// change. The channel is never closed, not even by Bundle.Close.
func (b *Bundle) Subscribe() <-chan map[string]string {
	ch := make(chan map[string]string, 4)
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, ch)
	b.listenersMu.Unlock()
	return ch
}

func (b *Bundle) broadcast(snapshot map[string]string) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	for _, ch := range b.listeners {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Close stops every per-key watcher backing this bundle.
func (b *Bundle) Close() {
	b.cancel()
	<-b.done
}

func decodeConfigValue(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
