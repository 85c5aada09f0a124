package host

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/event"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/policy"
	"github.com/latticehost/hostcore/secrets"
	"github.com/latticehost/hostcore/store/memkv"
)

// capturingPublisher records every published event for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []ctlapi.Event
}

func (p *capturingPublisher) Publish(evt ctlapi.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var _ event.Publisher = (*capturingPublisher)(nil)

func newTestHost(t *testing.T, pub event.Publisher, pol policy.Manager) *Host {
	t.Helper()
	if pub == nil {
		pub = &capturingPublisher{}
	}
	if pol == nil {
		pol = policy.PermitAll{}
	}
	return New(Config{
		HostID:       "Nhost1",
		Lattice:      "default",
		Labels:       map[string]string{"region": "us-east"},
		LatticeStore: memkv.New(),
		ConfigStore:  memkv.New(),
		Policy:       pol,
		Secrets:      secrets.Empty{},
		Publisher:    pub,
	})
}

func TestScaleComponent_WritesStoreOnly(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(ScaleComponentRequest{ComponentID: "c1", Reference: "file:///a.wasm", MaxInstances: 3})

	resp, err := h.ScaleComponent(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "c1", resp.ComponentID)

	// ScaleComponent must not mutate in-memory state directly; only the
	// watcher's replay does that.
	_, ok := h.getComponentEntry("c1")
	assert.False(t, ok)
}

func TestScaleComponent_RejectsReferenceAndMaxInstancesTogether(t *testing.T) {
	h := newTestHost(t, nil, nil)
	h.components["c1"] = &componentEntry{Spec: latticedata.ComponentSpec{ComponentID: "c1", ImageRef: "file:///a.wasm", MaxInstances: 1}}

	payload, _ := json.Marshal(ScaleComponentRequest{ComponentID: "c1", Reference: "file:///b.wasm", MaxInstances: 2})
	_, err := h.ScaleComponent(context.Background(), payload)
	assert.Error(t, err)
}

func TestScaleComponent_EmitsFailureEventOnPolicyDenial(t *testing.T) {
	pub := &capturingPublisher{}
	h := newTestHost(t, pub, denyAll{})

	payload, _ := json.Marshal(ScaleComponentRequest{ComponentID: "c1", Reference: "file:///a.wasm", MaxInstances: 1})
	_, err := h.ScaleComponent(context.Background(), payload)
	assert.Error(t, err)
	assert.Contains(t, pub.types(), "com.wasmcloud.lattice.component_scale_failed")
}

type denyAll struct{}

func (denyAll) Evaluate(context.Context, policy.Request) (policy.Decision, error) {
	return policy.Decision{Permitted: false, Reason: "denied for test"}, nil
}

func TestUpdateComponent_NoopWhenReferenceUnchanged(t *testing.T) {
	h := newTestHost(t, nil, nil)
	h.components["c1"] = &componentEntry{Spec: latticedata.ComponentSpec{ComponentID: "c1", ImageRef: "file:///a.wasm", MaxInstances: 2}}

	payload, _ := json.Marshal(UpdateComponentRequest{ComponentID: "c1", NewRef: "file:///a.wasm"})
	resp, err := h.UpdateComponent(context.Background(), payload)
	require.NoError(t, err)
	assert.False(t, resp.Updated)
}

func TestUpdateComponent_UnknownComponentErrors(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(UpdateComponentRequest{ComponentID: "missing", NewRef: "file:///a.wasm"})
	_, err := h.UpdateComponent(context.Background(), payload)
	assert.Error(t, err)
}

func TestStartProvider_IdempotentOnDuplicateCall(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(StartProviderRequest{ProviderID: "p1", Reference: "file:///p.wasm"})

	calls := 0
	newID := func() string {
		calls++
		return "instance-1"
	}

	first, err := h.StartProvider(context.Background(), payload, newID)
	require.NoError(t, err)

	second, err := h.StartProvider(context.Background(), payload, newID)
	require.NoError(t, err)
	assert.Equal(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, 1, calls, "second start must not mint a new instance id")
}

func TestStopProvider_UnknownIsNotAnError(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(StopProviderRequest{ProviderID: "missing"})
	resp, err := h.StopProvider(context.Background(), payload)
	require.NoError(t, err)
	assert.False(t, resp.Stopped)
}

func TestStartProvider_EmitsFailureEventOnPolicyDenial(t *testing.T) {
	pub := &capturingPublisher{}
	h := newTestHost(t, pub, denyAll{})

	payload, _ := json.Marshal(StartProviderRequest{ProviderID: "p1", Reference: "file:///p.wasm"})
	_, err := h.StartProvider(context.Background(), payload, func() string { return "instance-1" })
	assert.Error(t, err)
	assert.Contains(t, pub.types(), "com.wasmcloud.lattice.provider_start_failed")
}

func TestReportProviderHealth_EmitsPassedAndFailedEvents(t *testing.T) {
	pub := &capturingPublisher{}
	h := newTestHost(t, pub, nil)
	payload, _ := json.Marshal(StartProviderRequest{ProviderID: "p1", Reference: "file:///p.wasm"})
	_, err := h.StartProvider(context.Background(), payload, func() string { return "instance-1" })
	require.NoError(t, err)

	require.NoError(t, h.ReportProviderHealth("p1", true, "ok"))
	require.NoError(t, h.ReportProviderHealth("p1", false, "timed out"))
	assert.Contains(t, pub.types(), "com.wasmcloud.lattice.health_check_passed")
	assert.Contains(t, pub.types(), "com.wasmcloud.lattice.health_check_failed")
}

func TestReportProviderHealth_UnknownProviderErrors(t *testing.T) {
	h := newTestHost(t, nil, nil)
	assert.Error(t, h.ReportProviderHealth("missing", true, ""))
}

func TestLinkPutThenGet(t *testing.T) {
	h := newTestHost(t, nil, nil)
	link := latticedata.Link{SourceID: "c1", Target: "c2", Name: "default", WitNamespace: "wasi", WitPackage: "keyvalue"}
	payload, _ := json.Marshal(link)

	_, err := h.LinkPut(context.Background(), payload, func(k latticedata.LinkKey) string { return "hash" })
	require.NoError(t, err)

	resp, err := h.LinkGet(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, resp.Links, 1)
	assert.Equal(t, "c2", resp.Links[0].Target)
}

func TestLinkPut_OverwritesSameKey(t *testing.T) {
	h := newTestHost(t, nil, nil)
	hashKey := func(k latticedata.LinkKey) string { return "hash" }

	first, _ := json.Marshal(latticedata.Link{SourceID: "c1", Target: "c2", Name: "default", WitNamespace: "wasi", WitPackage: "keyvalue"})
	_, err := h.LinkPut(context.Background(), first, hashKey)
	require.NoError(t, err)

	second, _ := json.Marshal(latticedata.Link{SourceID: "c1", Target: "c3", Name: "default", WitNamespace: "wasi", WitPackage: "keyvalue"})
	_, err = h.LinkPut(context.Background(), second, hashKey)
	require.NoError(t, err)

	resp, err := h.LinkGet(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, resp.Links, 1)
	assert.Equal(t, "c3", resp.Links[0].Target)
}

func TestLinkDel_IdempotentOnMissingKey(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(LinkDelRequest{SourceID: "none", Name: "default", WitNamespace: "wasi", WitPackage: "keyvalue"})
	resp, err := h.LinkDel(context.Background(), payload)
	require.NoError(t, err)
	assert.False(t, resp.Deleted)
}

func TestLinkPutTwiceThenDel_EmitsTwoSetsAndOneDelete(t *testing.T) {
	pub := &capturingPublisher{}
	h := newTestHost(t, pub, nil)
	hashKey := func(k latticedata.LinkKey) string { return "hash" }

	link, _ := json.Marshal(latticedata.Link{SourceID: "s1", Target: "t1", Name: "default", WitNamespace: "wasi", WitPackage: "http"})
	_, err := h.LinkPut(context.Background(), link, hashKey)
	require.NoError(t, err)
	_, err = h.LinkPut(context.Background(), link, hashKey)
	require.NoError(t, err)

	del, _ := json.Marshal(LinkDelRequest{SourceID: "s1", Name: "default", WitNamespace: "wasi", WitPackage: "http"})
	resp, err := h.LinkDel(context.Background(), del)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)

	sets, dels := 0, 0
	for _, typ := range pub.types() {
		switch typ {
		case "com.wasmcloud.lattice.linkdef_set":
			sets++
		case "com.wasmcloud.lattice.linkdef_deleted":
			dels++
		}
	}
	assert.Equal(t, 2, sets)
	assert.Equal(t, 1, dels)

	links, err := h.LinkGet(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, links.Links)
}

func TestLinkDel_ExistingLinkEventCarriesTarget(t *testing.T) {
	pub := &capturingPublisher{}
	h := newTestHost(t, pub, nil)

	link, _ := json.Marshal(latticedata.Link{SourceID: "s1", Target: "t1", Name: "default", WitNamespace: "wasi", WitPackage: "http", Interfaces: []string{"incoming-handler"}})
	_, err := h.LinkPut(context.Background(), link, func(latticedata.LinkKey) string { return "hash" })
	require.NoError(t, err)

	del, _ := json.Marshal(LinkDelRequest{SourceID: "s1", Name: "default", WitNamespace: "wasi", WitPackage: "http"})
	_, err = h.LinkDel(context.Background(), del)
	require.NoError(t, err)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	var deleted *ctlapi.Event
	for i := range pub.events {
		if pub.events[i].Type == "com.wasmcloud.lattice.linkdef_deleted" {
			deleted = &pub.events[i]
		}
	}
	require.NotNil(t, deleted)
	data, err := json.Marshal(deleted.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"target":"t1"`)
	assert.Contains(t, string(data), `"incoming-handler"`)
}

func TestPing(t *testing.T) {
	h := newTestHost(t, nil, nil)
	resp, err := h.Ping(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Nhost1", resp.HostID)
	assert.Equal(t, "default", resp.Lattice)
	assert.Equal(t, "us-east", resp.Labels["region"])
}

func TestStopHost_FiresStopSignal(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(StopHostRequest{TimeoutSeconds: 1})
	_, err := h.StopHost(context.Background(), payload)
	require.NoError(t, err)

	fired, _ := h.Stop().Fired()
	assert.True(t, fired)
}

func TestAuctionComponent_NoBidWhenConstraintUnmet(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(ComponentAuctionRequest{Constraints: map[string]string{"region": "eu-west"}})
	_, err := h.AuctionComponent(context.Background(), payload)
	assert.ErrorIs(t, err, ErrNoBid)
}

func TestAuctionComponent_BidsWhenConstraintsSatisfied(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(ComponentAuctionRequest{Constraints: map[string]string{"region": "us-east"}})
	resp, err := h.AuctionComponent(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "Nhost1", resp.HostID)
}

func TestClaimsGet_ReturnsSingleMergedList(t *testing.T) {
	h := newTestHost(t, nil, nil)
	h.claimsComponents["Npub1"] = &latticedata.Claims{Issuer: "Nacct", Subject: "Npub1", Name: "comp"}
	h.claimsProviders["Vprov1"] = &latticedata.Claims{Issuer: "Nacct", Subject: "Vprov1", Name: "httpserver"}

	resp, err := h.ClaimsGet(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, resp.Claims, 2)
}

func TestConfigPutGetDelete(t *testing.T) {
	h := newTestHost(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, h.ConfigPut(ctx, "my-config", []byte(`{"k":"v"}`)))

	value, err := h.ConfigGet(ctx, "my-config")
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, string(value))

	require.NoError(t, h.ConfigDelete(ctx, "my-config"))
	_, err = h.ConfigGet(ctx, "my-config")
	assert.Error(t, err)
}

func TestRegistriesPut_LaterEntryWinsOnNameCollision(t *testing.T) {
	h := newTestHost(t, nil, nil)
	payload, _ := json.Marshal(RegistriesPutRequest{Registries: []latticedata.RegistryConfig{
		{Registry: "ghcr.io", Username: "first"},
		{Registry: "ghcr.io", Username: "second"},
	}})
	_, err := h.RegistriesPut(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "second", h.registryConfig["ghcr.io"].Username)
}
