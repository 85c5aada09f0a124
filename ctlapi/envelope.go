// Package ctlapi defines the wire envelopes used by the control-interface
// dispatcher and the event publisher: the canonical reply envelope and the
// CloudEvents lifecycle event envelope.
package ctlapi

import (
	"encoding/json"
	"fmt"
)

// Reply is the canonical control-interface reply envelope. Response is
// present iff Success; raw-bytes endpoints (config.get, link.get) bypass
// this envelope entirely and are not modeled here.
type Reply struct {
	Success  bool   `json:"success"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK builds a successful reply envelope.
func OK(response any) Reply {
	return Reply{Success: true, Response: response}
}

// Err builds a failed reply envelope from a message.
func Err(msg string) Reply {
	return Reply{Success: false, Error: msg}
}

// Errf builds a failed reply envelope with a formatted message.
func Errf(format string, args ...any) Reply {
	return Reply{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Encode marshals the reply to JSON. Handlers should prefer this over
// json.Marshal directly so a future envelope revision has one call site.
func (r Reply) Encode() ([]byte, error) {
	return json.Marshal(r)
}
