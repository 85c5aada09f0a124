package ctlapi

import (
	"encoding/json"
	"fmt"
)

// EventSpecVersion is the CloudEvents spec version every lattice event
// envelope declares.
const EventSpecVersion = "1.0"

// EventTypePrefix namespaces every lifecycle event's CloudEvents type.
const EventTypePrefix = "com.wasmcloud.lattice."

// Event is a CloudEvents v1.0 JSON envelope: specversion, source (the
// emitting host's id), type (com.wasmcloud.lattice.<name>),
// datacontenttype, and an arbitrary structured payload.
type Event struct {
	SpecVersion     string `json:"specversion"`
	Source          string `json:"source"`
	Type            string `json:"type"`
	DataContentType string `json:"datacontenttype"`
	Data            any    `json:"data"`
}

// NewEvent builds a lifecycle event envelope for the given host id, event
// name (without the com.wasmcloud.lattice. prefix), and payload.
func NewEvent(hostID, name string, data any) Event {
	return Event{
		SpecVersion:     EventSpecVersion,
		Source:          hostID,
		Type:            EventTypePrefix + name,
		DataContentType: "application/json",
		Data:            data,
	}
}

// Subject returns the bus subject this event should publish to, of the
// form "lifecycle.<kind>", where kind is the event name with the
// CloudEvents type prefix stripped.
func (e Event) Subject() string {
	name := e.Type
	if len(name) > len(EventTypePrefix) && name[:len(EventTypePrefix)] == EventTypePrefix {
		name = name[len(EventTypePrefix):]
	}
	return "lifecycle." + name
}

// Encode marshals the event to JSON.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func (e Event) String() string {
	return fmt.Sprintf("Event{type=%s source=%s}", e.Type, e.Source)
}
