package ctlapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK(t *testing.T) {
	r := OK(map[string]string{"component_id": "c1"})
	assert.True(t, r.Success)
	assert.Empty(t, r.Error)

	data, err := r.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Nil(t, decoded["error"])
}

func TestErr(t *testing.T) {
	r := Err("component_id is required")
	assert.False(t, r.Success)
	assert.Equal(t, "component_id is required", r.Error)
	assert.Nil(t, r.Response)
}

func TestErrf(t *testing.T) {
	r := Errf("unknown component %q", "c1")
	assert.Equal(t, `unknown component "c1"`, r.Error)
}
