package host

import (
	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/latticedata"
)

// Lifecycle event names, matching the payload shapes a wasmCloud-style
// host emits.
const (
	eventComponentScaled      = "component_scaled"
	eventComponentScaleFailed = "component_scale_failed"
	eventProviderStarted      = "provider_started"
	eventProviderStartFailed  = "provider_start_failed"
	eventProviderStopped      = "provider_stopped"
	eventLinkdefSet           = "linkdef_set"
	eventLinkdefSetFailed     = "linkdef_set_failed"
	eventLinkdefDeleted       = "linkdef_deleted"
	eventHealthCheckPassed    = "health_check_passed"
	eventHealthCheckFailed    = "health_check_failed"
)

type componentScaledPayload struct {
	ComponentID  string `json:"component_id"`
	ImageRef     string `json:"image_ref"`
	MaxInstances uint32 `json:"max_instances"`
}

func (h *Host) newComponentScaled(componentID, imageRef string, maxInstances uint32) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventComponentScaled, componentScaledPayload{
		ComponentID:  componentID,
		ImageRef:     imageRef,
		MaxInstances: maxInstances,
	})
}

type componentScaleFailedPayload struct {
	ComponentID string `json:"component_id"`
	Error       string `json:"error"`
}

func (h *Host) newComponentScaleFailed(componentID, reason string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventComponentScaleFailed, componentScaleFailedPayload{
		ComponentID: componentID,
		Error:       reason,
	})
}

type providerStartedPayload struct {
	ProviderID string `json:"provider_id"`
	InstanceID string `json:"instance_id"`
	ImageRef   string `json:"image_ref"`
}

func (h *Host) newProviderStarted(providerID, instanceID, imageRef string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventProviderStarted, providerStartedPayload{
		ProviderID: providerID,
		InstanceID: instanceID,
		ImageRef:   imageRef,
	})
}

type providerStartFailedPayload struct {
	ProviderID string `json:"provider_id"`
	Error      string `json:"error"`
}

func (h *Host) newProviderStartFailed(providerID, reason string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventProviderStartFailed, providerStartFailedPayload{
		ProviderID: providerID,
		Error:      reason,
	})
}

type providerStoppedPayload struct {
	ProviderID string `json:"provider_id"`
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"`
}

func (h *Host) newProviderStopped(providerID, instanceID, reason string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventProviderStopped, providerStoppedPayload{
		ProviderID: providerID,
		InstanceID: instanceID,
		Reason:     reason,
	})
}

type healthCheckPayload struct {
	ProviderID string `json:"provider_id"`
	InstanceID string `json:"instance_id"`
	Message    string `json:"message,omitempty"`
}

func (h *Host) newHealthCheckPassed(providerID, instanceID, message string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventHealthCheckPassed, healthCheckPayload{
		ProviderID: providerID,
		InstanceID: instanceID,
		Message:    message,
	})
}

func (h *Host) newHealthCheckFailed(providerID, instanceID, message string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventHealthCheckFailed, healthCheckPayload{
		ProviderID: providerID,
		InstanceID: instanceID,
		Message:    message,
	})
}

type linkdefPayload struct {
	SourceID     string   `json:"source_id"`
	Target       string   `json:"target,omitempty"`
	Name         string   `json:"name"`
	WitNamespace string   `json:"wit_namespace"`
	WitPackage   string   `json:"wit_package"`
	Interfaces   []string `json:"interfaces,omitempty"`
}

func (h *Host) newLinkdefSet(l latticedata.Link) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventLinkdefSet, linkdefPayload{
		SourceID: l.SourceID, Target: l.Target, Name: l.Name,
		WitNamespace: l.WitNamespace, WitPackage: l.WitPackage, Interfaces: l.Interfaces,
	})
}

type linkdefSetFailedPayload struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

func (h *Host) newLinkdefSetFailed(sourceID, name, reason string) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventLinkdefSetFailed, linkdefSetFailedPayload{
		SourceID: sourceID, Name: name, Error: reason,
	})
}

func (h *Host) newLinkdefDeleted(l latticedata.Link) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventLinkdefDeleted, linkdefPayload{
		SourceID: l.SourceID, Target: l.Target, Name: l.Name,
		WitNamespace: l.WitNamespace, WitPackage: l.WitPackage, Interfaces: l.Interfaces,
	})
}

// newLinkdefDeletedDegraded is emitted when the deleted key tuple was
// never present: only the identifying subset is known, so
// Target/Interfaces are omitted.
func (h *Host) newLinkdefDeletedDegraded(key latticedata.LinkKey) ctlapi.Event {
	return ctlapi.NewEvent(h.id, eventLinkdefDeleted, linkdefPayload{
		SourceID: key.SourceID, Name: key.Name,
		WitNamespace: key.WitNamespace, WitPackage: key.WitPackage,
	})
}
