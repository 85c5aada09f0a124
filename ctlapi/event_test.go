package ctlapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	evt := NewEvent("Nhost1", "component_scaled", map[string]string{"component_id": "c1"})
	assert.Equal(t, EventSpecVersion, evt.SpecVersion)
	assert.Equal(t, "Nhost1", evt.Source)
	assert.Equal(t, "com.wasmcloud.lattice.component_scaled", evt.Type)
	assert.Equal(t, "application/json", evt.DataContentType)
}

func TestEvent_Subject(t *testing.T) {
	evt := NewEvent("Nhost1", "component_scaled", nil)
	assert.Equal(t, "lifecycle.component_scaled", evt.Subject())
}

func TestEvent_Encode(t *testing.T) {
	evt := NewEvent("Nhost1", "health_check_passed", nil)
	data, err := evt.Encode()
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"specversion":"1.0"`)
}
