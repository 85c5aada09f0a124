// Package host implements Host, the component that owns live lattice
// state and the handler methods CtlDispatcher routes to. Host state is
// shared by the dispatcher's handlers and by the DataWatcher; the
// required guarantee is per-map read consistency and per-key write
// serialization, met here with one sync.RWMutex per subsystem —
// component, provider, link, label, claims, and registry config each
// behind their own lock.
package host

import (
	"sync"
	"time"

	"github.com/latticehost/hostcore/config"
	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/event"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/policy"
	"github.com/latticehost/hostcore/secrets"
	"github.com/latticehost/hostcore/store"
)

// Version is the control-plane protocol version reported by host.ping.
const Version = "0.1.0"

// Config is the immutable configuration a Host is constructed with.
// HostBuilder is responsible for defaulting the capability seams; Host
// itself requires them all to be non-nil.
type Config struct {
	HostID  string
	Lattice string
	Labels  map[string]string

	// ExperimentalFeatures is the additive feature-flag set the host
	// was built with. Immutable after construction.
	ExperimentalFeatures map[string]bool

	LatticeStore store.Manager
	ConfigStore  store.Manager
	Policy       policy.Manager
	Secrets      secrets.Manager
	Publisher    event.Publisher

	Log hostlog.Logger
}

// componentEntry is the live projection of a ComponentSpec. InstanceCount
// tracks how many running instances the (out-of-scope) runtime reports;
// the core only maintains the desired spec and whatever count the runtime
// collaborator last told it about.
type componentEntry struct {
	Spec          latticedata.ComponentSpec
	InstanceCount uint32
}

// Host owns live component/provider/link/label/claims/registry state and
// implements every handler CtlDispatcher routes to.
type Host struct {
	id       string
	lattice  string
	labels   map[string]string // copied from Config at construction; mutated under labelsMu by label.put/label.del
	features map[string]bool   // immutable after construction
	log      hostlog.Logger

	latticeStore store.Manager
	configStore  store.Manager
	configGen    *config.Generator
	policyMgr    policy.Manager
	secretsMgr   secrets.Manager
	publisher    event.Publisher

	startedAt time.Time
	stop      *StopSignal

	componentsMu sync.RWMutex
	components   map[string]*componentEntry

	providersMu sync.RWMutex
	providers   map[string]*latticedata.ProviderInstance

	linksMu sync.RWMutex
	links   map[latticedata.LinkKey]latticedata.Link

	labelsMu sync.RWMutex

	// Claims are keyed by public key; the key's nkeys role prefix
	// decides which map an entry lands in.
	claimsMu         sync.RWMutex
	claimsComponents map[string]*latticedata.Claims
	claimsProviders  map[string]*latticedata.Claims

	registryMu     sync.RWMutex
	registryConfig map[string]latticedata.RegistryConfig
}

// New constructs a Host in the Initializing state. It does not start any
// background loop; DataWatcher and CtlQueue are driven by HostBuilder.
func New(cfg Config) *Host {
	log := cfg.Log
	if log == nil {
		log = hostlog.Noop()
	}
	labels := make(map[string]string, len(cfg.Labels))
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	features := make(map[string]bool, len(cfg.ExperimentalFeatures))
	for k, v := range cfg.ExperimentalFeatures {
		features[k] = v
	}

	return &Host{
		id:               cfg.HostID,
		lattice:          cfg.Lattice,
		labels:           labels,
		features:         features,
		log:              hostlog.WithPrefix(log, "host"),
		latticeStore:     cfg.LatticeStore,
		configStore:      cfg.ConfigStore,
		configGen:        config.NewGenerator(cfg.ConfigStore, log),
		policyMgr:        cfg.Policy,
		secretsMgr:       cfg.Secrets,
		publisher:        cfg.Publisher,
		startedAt:        time.Now(),
		stop:             NewStopSignal(),
		components:       make(map[string]*componentEntry),
		providers:        make(map[string]*latticedata.ProviderInstance),
		links:            make(map[latticedata.LinkKey]latticedata.Link),
		claimsComponents: make(map[string]*latticedata.Claims),
		claimsProviders:  make(map[string]*latticedata.Claims),
		registryConfig:   make(map[string]latticedata.RegistryConfig),
	}
}

// ID returns the host's public-key identity.
func (h *Host) ID() string { return h.id }

// Lattice returns the lattice name this host is scoped to.
func (h *Host) Lattice() string { return h.lattice }

// Stop returns the host's cooperative-cancellation signal.
func (h *Host) Stop() *StopSignal { return h.stop }

// ExperimentalFeatureEnabled reports whether the named feature flag was
// enabled at build time. Like ReportProviderHealth, this is a seam for
// the out-of-scope execution runtime, which consults it before
// activating optional built-in behaviors; nothing in the control plane
// itself branches on a feature flag.
func (h *Host) ExperimentalFeatureEnabled(name string) bool {
	return h.features[name]
}

// publishEvent fires evt and logs (never surfaces) a publish failure.
func (h *Host) publishEvent(evt ctlapi.Event) {
	if err := h.publisher.Publish(evt); err != nil {
		h.log.Warn("event publish failed", "type", evt.Type, "error", err)
	}
}

// SetRegistryConfig merges locally-provided registry options with any
// supplemental-config RPC result at startup. Later entries with the same
// registry name overwrite earlier ones.
func (h *Host) SetRegistryConfig(entries []latticedata.RegistryConfig) {
	h.registryMu.Lock()
	defer h.registryMu.Unlock()
	for _, rc := range entries {
		h.registryConfig[rc.Registry] = rc
	}
}

// ConfigGenerator exposes the ConfigBundleGenerator built over this
// host's config StoreManager, so callers can build live ConfigBundles
// over arbitrary name lists.
func (h *Host) ConfigGenerator() *config.Generator { return h.configGen }
