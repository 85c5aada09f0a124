package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermitAll_AlwaysPermits(t *testing.T) {
	decision, err := PermitAll{}.Evaluate(context.Background(), Request{Action: "scale_component"})
	require.NoError(t, err)
	assert.True(t, decision.Permitted)
}
