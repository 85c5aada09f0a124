// Package policy defines PolicyManager, the authorization seam consulted
// before workload lifecycle operations. The default implementation
// permits everything; another Manager can be supplied through
// HostBuilder.WithPolicyManager. NatsHostBuilder attaches no bus-backed
// Manager, so the hosts it builds use PermitAll unless the caller sets one.
package policy

import "context"

// Request describes one operation a PolicyManager is asked to authorize.
type Request struct {
	// Action names the operation, e.g. "scale_component", "start_provider".
	Action string
	// ComponentID or ProviderID the action targets, when applicable.
	SubjectID string
	// ImageRef is the OCI reference the action would instantiate, when
	// applicable.
	ImageRef string
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Permitted bool
	// Reason is a stable, user-readable message used to build the
	// *_failed event and error reply when Permitted is false.
	Reason string
}

// Manager authorizes workload lifecycle operations.
type Manager interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

// PermitAll is the default Manager: every request is authorized.
type PermitAll struct{}

var _ Manager = PermitAll{}

func (PermitAll) Evaluate(context.Context, Request) (Decision, error) {
	return Decision{Permitted: true}, nil
}
