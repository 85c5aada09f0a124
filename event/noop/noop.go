// Package noop is the default EventPublisher HostBuilder falls back to
// when none is configured.
package noop

import (
	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/event"
)

// Publisher discards every event.
type Publisher struct{}

var _ event.Publisher = Publisher{}

// New returns a Publisher that discards all events.
func New() Publisher { return Publisher{} }

func (Publisher) Publish(ctlapi.Event) error { return nil }
