package memkv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehost/hostcore/store"
)

func TestPutGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "COMPONENT_c1", []byte(`{"component_id":"c1"}`)))
	value, ok, err := s.Get(ctx, "COMPONENT_c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"component_id":"c1"}`, string(value))
}

func TestGet_MissingKey(t *testing.T) {
	s := New()
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", []byte("1")))
	require.NoError(t, s.Put(ctx, "b", []byte("2")))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestWatchAll_ReceivesPutAndDelete(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := s.WatchAll(ctx)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, s.Put(context.Background(), "COMPONENT_c1", []byte("v1")))
	ev := recvEvent(t, stream)
	assert.Equal(t, "COMPONENT_c1", ev.Key)
	assert.Equal(t, store.OpPut, ev.Op)

	require.NoError(t, s.Delete(context.Background(), "COMPONENT_c1"))
	ev = recvEvent(t, stream)
	assert.Equal(t, store.OpDelete, ev.Op)
}

func TestWatch_IgnoresOtherKeys(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := s.Watch(ctx, "CONFIGDATA_foo")
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, s.Put(context.Background(), "CONFIGDATA_bar", []byte("ignored")))
	require.NoError(t, s.Put(context.Background(), "CONFIGDATA_foo", []byte("seen")))

	ev := recvEvent(t, stream)
	assert.Equal(t, "CONFIGDATA_foo", ev.Key)
	assert.Equal(t, "seen", string(ev.Value))
}

func TestWatchStream_CloseIsIdempotent(t *testing.T) {
	s := New()
	stream, err := s.WatchAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func recvEvent(t *testing.T, stream store.WatchStream) store.WatchEvent {
	t.Helper()
	select {
	case ev := <-stream.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
		return store.WatchEvent{}
	}
}
