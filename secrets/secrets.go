// Package secrets defines SecretsManager, the secret-retrieval seam for
// workload lifecycle operations. The core does not define the secrets
// wire format or encryption protocol — this package only specifies the
// retrieval contract and a default empty implementation.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Manager.Get when name has no secret.
var ErrNotFound = errors.New("secrets: not found")

// Manager retrieves named secrets on behalf of workload lifecycle
// operations. The secret's encoding and transport encryption are outside
// this contract.
type Manager interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Empty is the default Manager: every lookup fails with ErrNotFound.
type Empty struct{}

var _ Manager = Empty{}

func (Empty) Get(context.Context, string) ([]byte, error) {
	return nil, ErrNotFound
}
