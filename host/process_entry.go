package host

import (
	"encoding/json"

	"github.com/latticehost/hostcore/latticedata"
)

// ProcessEntry applies one lattice-bucket change to Host's in-memory
// projection, dispatching on the key's "_"-split prefix. emitEvents is
// false during DataWatcher's bootstrap replay (no transitions to
// announce yet) and true once it reaches live mode.
func (h *Host) ProcessEntry(key string, value []byte, op latticedata.Op, emitEvents bool) {
	prefix, id, ok := latticedata.SplitKey(key)
	if !ok {
		h.log.Warn("discarding malformed lattice key", "key", key)
		return
	}

	switch prefix {
	case latticedata.PrefixComponent:
		h.processComponentEntry(id, value, op, emitEvents)
	case latticedata.PrefixClaims:
		h.processClaimsEntry(id, value, op)
	case latticedata.PrefixLinkdef:
		// Deprecated: the watcher ignores LINKDEF entries. Links flow
		// through the link.* queue group instead.
	case latticedata.PrefixRefmap:
		// Reserved, unused.
	default:
		h.log.Warn("discarding unknown lattice key prefix", "prefix", prefix, "key", key)
	}
}

func (h *Host) processComponentEntry(id string, value []byte, op latticedata.Op, emitEvents bool) {
	switch op {
	case latticedata.OpDelete:
		h.componentsMu.Lock()
		delete(h.components, id)
		h.componentsMu.Unlock()
		// No event: removal on delete is silent.
	default:
		var spec latticedata.ComponentSpec
		if err := json.Unmarshal(value, &spec); err != nil {
			h.log.Warn("discarding malformed component spec", "component_id", id, "error", err)
			return
		}
		spec.ComponentID = id

		h.componentsMu.Lock()
		existing, existed := h.components[id]
		var instanceCount uint32
		if existed {
			instanceCount = existing.InstanceCount
		}
		h.components[id] = &componentEntry{Spec: spec, InstanceCount: instanceCount}
		h.componentsMu.Unlock()

		if emitEvents {
			h.publishEvent(h.newComponentScaled(id, spec.ImageRef, spec.MaxInstances))
		}
	}
}

func (h *Host) processClaimsEntry(pubkey string, value []byte, op latticedata.Op) {
	if op == latticedata.OpDelete {
		h.claimsMu.Lock()
		delete(h.claimsMap(pubkey), pubkey)
		h.claimsMu.Unlock()
		return
	}

	var claims latticedata.Claims
	if err := json.Unmarshal(value, &claims); err != nil {
		h.log.Warn("discarding malformed claims", "pubkey", pubkey, "error", err)
		return
	}
	// claims.subject must equal the key suffix.
	if claims.Subject != pubkey {
		h.log.Warn("discarding claims with mismatched subject", "key_pubkey", pubkey, "claims_subject", claims.Subject)
		return
	}

	h.claimsMu.Lock()
	h.claimsMap(pubkey)[pubkey] = &claims
	h.claimsMu.Unlock()
}

// claimsMap picks the component or provider claims map for pubkey based
// on its nkeys role prefix. Callers must hold claimsMu.
func (h *Host) claimsMap(pubkey string) map[string]*latticedata.Claims {
	if latticedata.IsProviderKey(pubkey) {
		return h.claimsProviders
	}
	return h.claimsComponents
}
