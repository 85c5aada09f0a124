package natspub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/transport"
	"github.com/latticehost/hostcore/transport/memconn"
)

func TestPublish_EncodesAndPublishesUnderPrefix(t *testing.T) {
	conn := memconn.New()
	defer conn.Close()

	received := make(chan string, 1)
	sub, err := conn.Subscribe("wasmbus.ctl.lifecycle.component_scaled", func(m transport.Msg) {
		received <- string(m.Data())
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	pub := New(conn, "wasmbus.ctl", hostlog.Noop())
	evt := ctlapi.NewEvent("Nhost1", "component_scaled", map[string]string{"component_id": "c1"})
	require.NoError(t, pub.Publish(evt))

	select {
	case data := <-received:
		assert.Contains(t, data, `"component_id":"c1"`)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
