// Package hostbuilder implements HostBuilder and NatsHostBuilder, the
// composition root wiring StoreManager, EventPublisher, PolicyManager,
// SecretsManager, CtlQueue, CtlDispatcher, Host, and DataWatcher together.
// Composition order follows construct-the-core-then-the-server-then-wire
// them-together, generalized to this package's pluggable capability
// setters.
package hostbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/latticehost/hostcore/config"
	"github.com/latticehost/hostcore/ctl"
	"github.com/latticehost/hostcore/event"
	"github.com/latticehost/hostcore/event/noop"
	"github.com/latticehost/hostcore/host"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/policy"
	"github.com/latticehost/hostcore/secrets"
	"github.com/latticehost/hostcore/store"
	"github.com/latticehost/hostcore/store/memkv"
	"github.com/latticehost/hostcore/transport"
	"github.com/latticehost/hostcore/watcher"
)

// Builder is infallible up to Build(): every setter just records a value.
// Missing stores default to an in-memory StoreManager; missing policy
// defaults to permit-all; missing secrets to an empty store; missing
// event publisher to a no-op.
type Builder struct {
	hostID  string
	lattice string
	prefix  string
	labels  map[string]string

	conn transport.Conn

	configStore store.Manager
	dataStore   store.Manager
	policyMgr   policy.Manager
	secretsMgr  secrets.Manager
	publisher   event.Publisher

	registryConfig       []latticedata.RegistryConfig
	experimentalFeatures map[string]bool

	componentAuctions bool
	providerAuctions  bool

	log hostlog.Logger
}

// New starts a Builder for hostID within lattice, routing control-plane
// subjects under the given topic prefix (e.g. "wasmbus.ctl") over conn.
func New(conn transport.Conn, prefix, lattice, hostID string) *Builder {
	return &Builder{
		conn:                 conn,
		prefix:               prefix,
		lattice:              lattice,
		hostID:               hostID,
		labels:               make(map[string]string),
		experimentalFeatures: make(map[string]bool),
	}
}

func (b *Builder) WithLabels(labels map[string]string) *Builder {
	for k, v := range labels {
		b.labels[k] = v
	}
	return b
}

func (b *Builder) WithConfigStore(s store.Manager) *Builder      { b.configStore = s; return b }
func (b *Builder) WithDataStore(s store.Manager) *Builder        { b.dataStore = s; return b }
func (b *Builder) WithPolicyManager(p policy.Manager) *Builder   { b.policyMgr = p; return b }
func (b *Builder) WithSecretsManager(s secrets.Manager) *Builder { b.secretsMgr = s; return b }
func (b *Builder) WithEventPublisher(p event.Publisher) *Builder { b.publisher = p; return b }
func (b *Builder) WithRegistryConfig(rc []latticedata.RegistryConfig) *Builder {
	b.registryConfig = rc
	return b
}
func (b *Builder) WithExperimentalFeature(name string, enabled bool) *Builder {
	b.experimentalFeatures[name] = enabled
	return b
}
func (b *Builder) WithAuctionParticipation(component, provider bool) *Builder {
	b.componentAuctions = component
	b.providerAuctions = provider
	return b
}
func (b *Builder) WithLogger(log hostlog.Logger) *Builder { b.log = log; return b }

// Instance is the fully wired, not-yet-running host: Host, its
// CtlQueue/Dispatcher, and its DataWatcher.
type Instance struct {
	Host       *host.Host
	Queue      *ctl.Queue
	Dispatcher *ctl.Dispatcher
	Watcher    *watcher.DataWatcher
	ConfigGen  *config.Generator

	log hostlog.Logger
}

// Build composes every capability seam and the Host/Queue/Dispatcher/
// Watcher it drives. Defaulting happens here, last, so callers that set
// nothing still get a fully-functional in-memory host.
func (b *Builder) Build() (*Instance, error) {
	log := b.log
	if log == nil {
		log = hostlog.Default()
	}

	dataStore := b.dataStore
	if dataStore == nil {
		dataStore = memkv.New()
	}
	configStore := b.configStore
	if configStore == nil {
		configStore = memkv.New()
	}
	policyMgr := b.policyMgr
	if policyMgr == nil {
		policyMgr = policy.PermitAll{}
	}
	secretsMgr := b.secretsMgr
	if secretsMgr == nil {
		secretsMgr = secrets.Empty{}
	}
	publisher := b.publisher
	if publisher == nil {
		publisher = noop.New()
	}

	h := host.New(host.Config{
		HostID:               b.hostID,
		Lattice:              b.lattice,
		Labels:               b.labels,
		ExperimentalFeatures: b.experimentalFeatures,
		LatticeStore:         dataStore,
		ConfigStore:          configStore,
		Policy:               policyMgr,
		Secrets:              secretsMgr,
		Publisher:            publisher,
		Log:                  log,
	})
	h.SetRegistryConfig(b.registryConfig)

	queue, err := ctl.NewQueue(b.conn, ctl.QueueOptions{
		Prefix:            b.prefix,
		Lattice:           b.lattice,
		HostID:            b.hostID,
		ComponentAuctions: b.componentAuctions,
		ProviderAuctions:  b.providerAuctions,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build ctl queue: %w", err)
	}

	dispatcher := ctl.New(b.prefix, b.lattice, b.hostID, h, log)
	watch := watcher.New(dataStore, h, log)

	return &Instance{
		Host:       h,
		Queue:      queue,
		Dispatcher: dispatcher,
		Watcher:    watch,
		ConfigGen:  h.ConfigGenerator(),
		log:        log,
	}, nil
}

// Run serves the CtlQueue and drives the DataWatcher until ctx is done or
// the host's stop signal fires. A DataWatcher termination for any other
// reason is treated as fatal and triggers host stop. When Run returns it
// cancels the context handed to the watcher and the CtlQueue drain.
func (in *Instance) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErrCh := make(chan error, 1)
	go func() {
		watchErrCh <- in.Watcher.Run(ctx)
	}()

	go ctl.Serve(ctx, in.Queue, in.Dispatcher, in.log)

	select {
	case err := <-watchErrCh:
		if err != nil {
			in.log.Error("data watcher terminated unexpectedly, stopping host", "error", err)
			in.Host.Stop().Fire(time.Now())
		}
		return err
	case <-ctx.Done():
		return nil
	case <-in.Host.Stop().C():
		return nil
	}
}
