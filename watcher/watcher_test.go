package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehost/hostcore/host"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/store/memkv"
)

// fakeHost records every ProcessEntry call for assertions without pulling
// in the full host.Host projection.
type fakeHost struct {
	mu      sync.Mutex
	applied []applied
	stop    *host.StopSignal
}

type applied struct {
	key        string
	op         latticedata.Op
	emitEvents bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{stop: host.NewStopSignal()}
}

func (f *fakeHost) ProcessEntry(key string, value []byte, op latticedata.Op, emitEvents bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, applied{key: key, op: op, emitEvents: emitEvents})
}

func (f *fakeHost) Stop() *host.StopSignal { return f.stop }

func (f *fakeHost) snapshot() []applied {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]applied(nil), f.applied...)
}

var _ Host = (*fakeHost)(nil)

func TestRun_ReplaysExistingKeysSilentlyThenLive(t *testing.T) {
	mgr := memkv.New()
	ctx := context.Background()
	require.NoError(t, mgr.Put(ctx, "COMPONENT_c1", []byte(`{"component_id":"c1"}`)))

	fh := newFakeHost()
	w := New(mgr, fh, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		for _, a := range fh.snapshot() {
			if a.key == "COMPONENT_c1" && !a.emitEvents {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "expected replay entry with emitEvents=false")

	require.NoError(t, mgr.Put(ctx, "COMPONENT_c2", []byte(`{"component_id":"c2"}`)))
	require.Eventually(t, func() bool {
		for _, a := range fh.snapshot() {
			if a.key == "COMPONENT_c2" && a.emitEvents {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "expected live entry with emitEvents=true")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_StopsCleanlyOnHostStop(t *testing.T) {
	mgr := memkv.New()
	fh := newFakeHost()
	w := New(mgr, fh, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	// Give Run a moment to reach the live-mode select before firing stop.
	time.Sleep(10 * time.Millisecond)
	fh.Stop().Fire(time.Now())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after host stop fired")
	}
}
