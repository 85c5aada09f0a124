package ctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/transport/memconn"
)

func TestNewQueue_RoutesBroadcastAndQueueGroupSubjects(t *testing.T) {
	conn := memconn.New()
	defer conn.Close()

	q, err := NewQueue(conn, QueueOptions{Prefix: "wasmbus.ctl", Lattice: "default", HostID: "Nhost1"}, hostlog.Noop())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, conn.Publish("wasmbus.ctl.v1.default.host.ping", []byte("ping")))

	select {
	case m := <-q.Messages():
		assert.Equal(t, "wasmbus.ctl.v1.default.host.ping", m.Subject())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed message")
	}
}

func TestNewQueue_AuctionSubjectsAreConditional(t *testing.T) {
	conn := memconn.New()
	defer conn.Close()

	q, err := NewQueue(conn, QueueOptions{Prefix: "wasmbus.ctl", Lattice: "default", HostID: "Nhost1"}, hostlog.Noop())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, conn.Publish("wasmbus.ctl.v1.default.component.auction", []byte("bid?")))

	select {
	case <-q.Messages():
		t.Fatal("did not expect component.auction delivery without ComponentAuctions enabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewQueue_AuctionSubjectsDeliverWhenEnabled(t *testing.T) {
	conn := memconn.New()
	defer conn.Close()

	q, err := NewQueue(conn, QueueOptions{
		Prefix: "wasmbus.ctl", Lattice: "default", HostID: "Nhost1",
		ComponentAuctions: true,
	}, hostlog.Noop())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, conn.Publish("wasmbus.ctl.v1.default.component.auction", []byte("bid?")))

	select {
	case m := <-q.Messages():
		assert.Equal(t, "wasmbus.ctl.v1.default.component.auction", m.Subject())
	case <-time.After(time.Second):
		t.Fatal("expected component.auction delivery with ComponentAuctions enabled")
	}
}

func TestNewQueue_LinkWildcardDeliversPutAndDel(t *testing.T) {
	conn := memconn.New()
	defer conn.Close()

	q, err := NewQueue(conn, QueueOptions{Prefix: "wasmbus.ctl", Lattice: "default", HostID: "Nhost1"}, hostlog.Noop())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, conn.Publish("wasmbus.ctl.v1.default.link.put", []byte("link")))
	select {
	case m := <-q.Messages():
		assert.Equal(t, "wasmbus.ctl.v1.default.link.put", m.Subject())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for link.put delivery via link.* queue group")
	}
}

func TestQueue_Close_UnsubscribesEverything(t *testing.T) {
	conn := memconn.New()
	defer conn.Close()

	q, err := NewQueue(conn, QueueOptions{Prefix: "wasmbus.ctl", Lattice: "default", HostID: "Nhost1"}, hostlog.Noop())
	require.NoError(t, err)
	require.NoError(t, q.Close())

	require.NoError(t, conn.Publish("wasmbus.ctl.v1.default.host.ping", []byte("ping")))

	select {
	case m, ok := <-q.Messages():
		if ok {
			t.Fatalf("expected no delivery after Close, got %v", m)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
