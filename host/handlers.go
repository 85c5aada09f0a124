package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/policy"
)

// ErrNoBid signals an auction handler declining to respond; the caller
// (ctl.Dispatcher) must suppress any reply when a handler returns this,
// even if the request carried a reply inbox.
var ErrNoBid = errors.New("host: no bid")

// --- scale_component ---------------------------------------------------

type ScaleComponentRequest struct {
	ComponentID  string            `json:"component_id"`
	Reference    string            `json:"reference"`
	MaxInstances uint32            `json:"max_instances"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

type ScaleComponentResponse struct {
	ComponentID string `json:"component_id"`
}

// ScaleComponent decodes and validates a scale request, consults
// PolicyManager, and writes the desired spec to the lattice store. It
// does not mutate in-memory component state directly — convergence
// happens when DataWatcher echoes the write back.
func (h *Host) ScaleComponent(ctx context.Context, payload []byte) (*ScaleComponentResponse, error) {
	var req ScaleComponentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode scale_component: %w", err)
	}
	if req.ComponentID == "" {
		return nil, h.rejectScale(req.ComponentID, "component_id is required")
	}

	if existing, ok := h.getComponentEntry(req.ComponentID); ok {
		if existing.Spec.ImageRef != req.Reference && req.MaxInstances != existing.Spec.MaxInstances {
			return nil, h.rejectScale(req.ComponentID,
				"cannot change reference and max_instances in one scale call; use update_component for reference changes")
		}
	}

	decision, err := h.policyMgr.Evaluate(ctx, policy.Request{
		Action: "scale_component", SubjectID: req.ComponentID, ImageRef: req.Reference,
	})
	if err != nil {
		return nil, h.rejectScale(req.ComponentID, fmt.Sprintf("policy evaluation failed: %v", err))
	}
	if !decision.Permitted {
		reason := decision.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		return nil, h.rejectScale(req.ComponentID, reason)
	}

	spec := latticedata.ComponentSpec{
		ComponentID:  req.ComponentID,
		ImageRef:     req.Reference,
		MaxInstances: req.MaxInstances,
		Annotations:  req.Annotations,
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, h.rejectScale(req.ComponentID, fmt.Sprintf("encode spec: %v", err))
	}
	if err := h.latticeStore.Put(ctx, latticedata.ComponentKey(req.ComponentID), encoded); err != nil {
		return nil, h.rejectScale(req.ComponentID, fmt.Sprintf("store error: %v", err))
	}

	return &ScaleComponentResponse{ComponentID: req.ComponentID}, nil
}

func (h *Host) rejectScale(componentID, reason string) error {
	h.publishEvent(h.newComponentScaleFailed(componentID, reason))
	return errors.New(reason)
}

// --- update_component ----------------------------------------------------

type UpdateComponentRequest struct {
	ComponentID string            `json:"component_id"`
	NewRef      string            `json:"new_reference"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type UpdateComponentResponse struct {
	ComponentID string `json:"component_id"`
	Updated     bool   `json:"updated"`
}

// UpdateComponent performs an atomic reference swap, leaving
// max_instances unchanged. If the new reference matches the current one
// it is a no-op success, idempotent.
func (h *Host) UpdateComponent(ctx context.Context, payload []byte) (*UpdateComponentResponse, error) {
	var req UpdateComponentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode update_component: %w", err)
	}

	existing, ok := h.getComponentEntry(req.ComponentID)
	if !ok {
		return nil, fmt.Errorf("unknown component %q", req.ComponentID)
	}
	if existing.Spec.ImageRef == req.NewRef {
		return &UpdateComponentResponse{ComponentID: req.ComponentID, Updated: false}, nil
	}

	spec := existing.Spec
	spec.ImageRef = req.NewRef
	if req.Annotations != nil {
		spec.Annotations = req.Annotations
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}
	if err := h.latticeStore.Put(ctx, latticedata.ComponentKey(req.ComponentID), encoded); err != nil {
		return nil, fmt.Errorf("store error: %w", err)
	}
	return &UpdateComponentResponse{ComponentID: req.ComponentID, Updated: true}, nil
}

// --- start_provider / stop_provider --------------------------------------

type StartProviderRequest struct {
	ProviderID  string            `json:"provider_id"`
	Reference   string            `json:"reference"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type StartProviderResponse struct {
	ProviderID string `json:"provider_id"`
	InstanceID string `json:"instance_id"`
}

// StartProvider is synchronous with respect to the reply: unlike
// components, provider lifecycle is managed directly here, not by
// DataWatcher. Calling twice for the same provider id is idempotent and
// returns the existing instance.
func (h *Host) StartProvider(ctx context.Context, payload []byte, newInstanceID func() string) (*StartProviderResponse, error) {
	var req StartProviderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode start_provider: %w", err)
	}
	if req.ProviderID == "" {
		return nil, h.rejectProviderStart("", "provider_id is required")
	}

	h.providersMu.Lock()
	if existing, ok := h.providers[req.ProviderID]; ok {
		h.providersMu.Unlock()
		return &StartProviderResponse{ProviderID: req.ProviderID, InstanceID: existing.InstanceID}, nil
	}
	h.providersMu.Unlock()

	decision, err := h.policyMgr.Evaluate(ctx, policy.Request{
		Action: "start_provider", SubjectID: req.ProviderID, ImageRef: req.Reference,
	})
	if err != nil {
		return nil, h.rejectProviderStart(req.ProviderID, fmt.Sprintf("policy evaluation failed: %v", err))
	}
	if !decision.Permitted {
		reason := decision.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		return nil, h.rejectProviderStart(req.ProviderID, reason)
	}

	instanceID := newInstanceID()
	inst := &latticedata.ProviderInstance{
		ProviderID:  req.ProviderID,
		InstanceID:  instanceID,
		ImageRef:    req.Reference,
		Annotations: req.Annotations,
	}

	h.providersMu.Lock()
	h.providers[req.ProviderID] = inst
	h.providersMu.Unlock()

	h.publishEvent(h.newProviderStarted(req.ProviderID, instanceID, req.Reference))
	return &StartProviderResponse{ProviderID: req.ProviderID, InstanceID: instanceID}, nil
}

func (h *Host) rejectProviderStart(providerID, reason string) error {
	h.publishEvent(h.newProviderStartFailed(providerID, reason))
	return errors.New(reason)
}

type StopProviderRequest struct {
	ProviderID string `json:"provider_id"`
	Reason     string `json:"reason,omitempty"`
}

type StopProviderResponse struct {
	ProviderID string `json:"provider_id"`
	Stopped    bool   `json:"stopped"`
}

func (h *Host) StopProvider(_ context.Context, payload []byte) (*StopProviderResponse, error) {
	var req StopProviderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode stop_provider: %w", err)
	}

	h.providersMu.Lock()
	inst, ok := h.providers[req.ProviderID]
	if ok {
		delete(h.providers, req.ProviderID)
	}
	h.providersMu.Unlock()

	if !ok {
		return &StopProviderResponse{ProviderID: req.ProviderID, Stopped: false}, nil
	}
	h.publishEvent(h.newProviderStopped(req.ProviderID, inst.InstanceID, req.Reason))
	return &StopProviderResponse{ProviderID: req.ProviderID, Stopped: true}, nil
}

// ReportProviderHealth is the seam the (out-of-scope) execution runtime
// calls on each health-check tick for a running provider instance; it is
// not reached through CtlDispatcher. It translates the runtime's verdict
// into a health_check_passed/health_check_failed lifecycle event and
// returns an error if providerID names no running instance.
func (h *Host) ReportProviderHealth(providerID string, healthy bool, message string) error {
	h.providersMu.RLock()
	inst, ok := h.providers[providerID]
	h.providersMu.RUnlock()
	if !ok {
		return fmt.Errorf("report health: unknown provider %q", providerID)
	}
	if healthy {
		h.publishEvent(h.newHealthCheckPassed(providerID, inst.InstanceID, message))
	} else {
		h.publishEvent(h.newHealthCheckFailed(providerID, inst.InstanceID, message))
	}
	return nil
}

// --- link.put / link.del / link.get --------------------------------------

type LinkPutRequest = latticedata.Link

type LinkPutResponse struct {
	Key latticedata.LinkKey `json:"key"`
}

// LinkPut overwrites any existing link sharing the same key tuple,
// persists it through the lattice store under LINKDEF_<hash>, and
// publishes linkdef_set on success. Links are additionally held
// in-memory and served via the link.* queue group directly — the
// watcher ignores LINKDEF bucket entries, so the store write here is
// best-effort durability, not the source of cross-host propagation.
func (h *Host) LinkPut(ctx context.Context, payload []byte, hashKey func(latticedata.LinkKey) string) (*LinkPutResponse, error) {
	var link latticedata.Link
	if err := json.Unmarshal(payload, &link); err != nil {
		return nil, fmt.Errorf("decode link.put: %w", err)
	}
	if link.SourceID == "" || link.Name == "" || link.WitNamespace == "" || link.WitPackage == "" {
		err := errors.New("source_id, name, wit_namespace, and wit_package are required")
		h.publishEvent(h.newLinkdefSetFailed(link.SourceID, link.Name, err.Error()))
		return nil, err
	}
	key := link.Key()

	h.linksMu.Lock()
	h.links[key] = link
	h.linksMu.Unlock()

	if h.latticeStore != nil {
		encoded, err := json.Marshal(link)
		if err == nil {
			_ = h.latticeStore.Put(ctx, "LINKDEF_"+hashKey(key), encoded)
		}
	}

	h.publishEvent(h.newLinkdefSet(link))
	return &LinkPutResponse{Key: key}, nil
}

type LinkDelRequest struct {
	SourceID     string `json:"source_id"`
	Name         string `json:"name"`
	WitNamespace string `json:"wit_namespace"`
	WitPackage   string `json:"wit_package"`
}

type LinkDelResponse struct {
	Deleted bool `json:"deleted"`
}

// LinkDel removes a link by key. Deleting a missing key is success,
// idempotent, but the linkdef_deleted event it emits is degraded: only
// the identifying subset is known, so target and interfaces are omitted.
func (h *Host) LinkDel(_ context.Context, payload []byte) (*LinkDelResponse, error) {
	var req LinkDelRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode link.del: %w", err)
	}
	key := latticedata.LinkKey{
		SourceID: req.SourceID, Name: req.Name,
		WitNamespace: req.WitNamespace, WitPackage: req.WitPackage,
	}

	h.linksMu.Lock()
	existing, existed := h.links[key]
	delete(h.links, key)
	h.linksMu.Unlock()

	if existed {
		h.publishEvent(h.newLinkdefDeleted(existing))
	} else {
		h.publishEvent(h.newLinkdefDeletedDegraded(key))
	}
	return &LinkDelResponse{Deleted: existed}, nil
}

type LinkGetResponse struct {
	Links []latticedata.Link `json:"links"`
}

// LinkGet returns every known link. This is a raw-bytes endpoint: the
// ctl.Dispatcher encodes the response body directly rather than
// wrapping it in ctlapi.Reply.
func (h *Host) LinkGet(_ context.Context, _ []byte) (*LinkGetResponse, error) {
	h.linksMu.RLock()
	defer h.linksMu.RUnlock()
	links := make([]latticedata.Link, 0, len(h.links))
	for _, l := range h.links {
		links = append(links, l)
	}
	return &LinkGetResponse{Links: links}, nil
}

// --- label.put / label.del -----------------------------------------------

type LabelPutRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *Host) LabelPut(_ context.Context, payload []byte) (*struct{}, error) {
	var req LabelPutRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode label.put: %w", err)
	}
	if req.Key == "" {
		return nil, errors.New("label key is required")
	}
	h.labelsMu.Lock()
	h.labels[req.Key] = req.Value
	h.labelsMu.Unlock()
	return &struct{}{}, nil
}

type LabelDelRequest struct {
	Key string `json:"key"`
}

func (h *Host) LabelDel(_ context.Context, payload []byte) (*struct{}, error) {
	var req LabelDelRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode label.del: %w", err)
	}
	h.labelsMu.Lock()
	delete(h.labels, req.Key)
	h.labelsMu.Unlock()
	return &struct{}{}, nil
}

// --- host.ping / host.get / host.stop ------------------------------------

type PingResponse struct {
	HostID  string            `json:"host_id"`
	Lattice string            `json:"lattice"`
	Uptime  float64           `json:"uptime_seconds"`
	Version string            `json:"version"`
	Labels  map[string]string `json:"labels"`
}

func (h *Host) Ping(context.Context, []byte) (*PingResponse, error) {
	h.labelsMu.RLock()
	labels := make(map[string]string, len(h.labels))
	for k, v := range h.labels {
		labels[k] = v
	}
	h.labelsMu.RUnlock()

	return &PingResponse{
		HostID:  h.id,
		Lattice: h.lattice,
		Uptime:  time.Since(h.startedAt).Seconds(),
		Version: Version,
		Labels:  labels,
	}, nil
}

type InventoryResponse struct {
	HostID     string                        `json:"host_id"`
	Components []latticedata.ComponentSpec   `json:"components"`
	Providers  []latticedata.ProviderInstance `json:"providers"`
	Labels     map[string]string             `json:"labels"`
}

func (h *Host) Inventory(context.Context, []byte) (*InventoryResponse, error) {
	h.componentsMu.RLock()
	components := make([]latticedata.ComponentSpec, 0, len(h.components))
	for _, c := range h.components {
		components = append(components, c.Spec)
	}
	h.componentsMu.RUnlock()

	h.providersMu.RLock()
	providers := make([]latticedata.ProviderInstance, 0, len(h.providers))
	for _, p := range h.providers {
		providers = append(providers, *p)
	}
	h.providersMu.RUnlock()

	h.labelsMu.RLock()
	labels := make(map[string]string, len(h.labels))
	for k, v := range h.labels {
		labels[k] = v
	}
	h.labelsMu.RUnlock()

	return &InventoryResponse{HostID: h.id, Components: components, Providers: providers, Labels: labels}, nil
}

type StopHostRequest struct {
	TimeoutSeconds uint64 `json:"timeout_seconds"`
}

// StopHost sets the stop deadline on Host.Stop(), which the DataWatcher
// and the builder's run loop observe.
func (h *Host) StopHost(_ context.Context, payload []byte) (*struct{}, error) {
	var req StopHostRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode host.stop: %w", err)
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	h.stop.Fire(time.Now().Add(timeout))
	return &struct{}{}, nil
}

// --- claims.get ------------------------------------------------------------

type ClaimsGetResponse struct {
	Claims []latticedata.Claims `json:"claims"`
}

// ClaimsGet returns the merged list of all component and provider claims
// currently known.
func (h *Host) ClaimsGet(context.Context, []byte) (*ClaimsGetResponse, error) {
	h.claimsMu.RLock()
	defer h.claimsMu.RUnlock()
	all := make([]latticedata.Claims, 0, len(h.claimsComponents)+len(h.claimsProviders))
	for _, c := range h.claimsComponents {
		all = append(all, *c)
	}
	for _, c := range h.claimsProviders {
		all = append(all, *c)
	}
	return &ClaimsGetResponse{Claims: all}, nil
}

// --- config.get / config.put / config.del --------------------------------

// ConfigGet returns the raw bytes for name, bypassing the reply envelope.
func (h *Host) ConfigGet(ctx context.Context, name string) ([]byte, error) {
	val, ok, err := h.configStore.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("unknown config %q", name)
	}
	return val, nil
}

func (h *Host) ConfigPut(ctx context.Context, name string, value []byte) error {
	return h.configStore.Put(ctx, name, value)
}

func (h *Host) ConfigDelete(ctx context.Context, name string) error {
	return h.configStore.Delete(ctx, name)
}

// --- registry.put ------------------------------------------------------------

type RegistriesPutRequest struct {
	Registries []latticedata.RegistryConfig `json:"registries"`
}

func (h *Host) RegistriesPut(_ context.Context, payload []byte) (*struct{}, error) {
	var req RegistriesPutRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode registry.put: %w", err)
	}
	h.SetRegistryConfig(req.Registries)
	return &struct{}{}, nil
}

// --- auctions ----------------------------------------------------------

type ComponentAuctionRequest struct {
	Constraints map[string]string `json:"constraints"`
}

type AuctionResponse struct {
	HostID string `json:"host_id"`
}

// AuctionComponent self-selects whether to bid by checking every
// constraint against this host's labels. Returns ErrNoBid when any
// constraint is unmet.
func (h *Host) AuctionComponent(_ context.Context, payload []byte) (*AuctionResponse, error) {
	var req ComponentAuctionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode component.auction: %w", err)
	}
	if !h.satisfiesConstraints(req.Constraints) {
		return nil, ErrNoBid
	}
	return &AuctionResponse{HostID: h.id}, nil
}

type ProviderAuctionRequest struct {
	Constraints map[string]string `json:"constraints"`
}

func (h *Host) AuctionProvider(_ context.Context, payload []byte) (*AuctionResponse, error) {
	var req ProviderAuctionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode provider.auction: %w", err)
	}
	if !h.satisfiesConstraints(req.Constraints) {
		return nil, ErrNoBid
	}
	return &AuctionResponse{HostID: h.id}, nil
}

func (h *Host) satisfiesConstraints(constraints map[string]string) bool {
	h.labelsMu.RLock()
	defer h.labelsMu.RUnlock()
	for k, v := range constraints {
		if h.labels[k] != v {
			return false
		}
	}
	return true
}

// --- shared helpers ------------------------------------------------------

func (h *Host) getComponentEntry(componentID string) (componentEntry, bool) {
	h.componentsMu.RLock()
	defer h.componentsMu.RUnlock()
	e, ok := h.components[componentID]
	if !ok {
		return componentEntry{}, false
	}
	return *e, true
}
