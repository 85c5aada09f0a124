// Package event defines EventPublisher, the fire-and-forget lifecycle
// event seam Host uses to announce state transitions.
package event

import "github.com/latticehost/hostcore/ctlapi"

// Publisher fires a CloudEvents lifecycle event. Implementations must
// not block the caller on transport backpressure beyond what the
// underlying connection already does; publish failures are logged, not
// surfaced to the handler.
type Publisher interface {
	Publish(evt ctlapi.Event) error
}
