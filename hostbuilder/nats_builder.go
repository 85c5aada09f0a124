package hostbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/event/natspub"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/store/jskv"
	"github.com/latticehost/hostcore/transport/natsconn"
)

// NatsConfig configures NatsHostBuilder.
type NatsConfig struct {
	HostID  string
	Lattice string
	Prefix  string
	Labels  map[string]string

	NATS natsconn.Config

	// SupplementalConfigSubject, if set, is requested once at startup
	// to fetch additional registry config merged with RegistryConfig
	// below.
	SupplementalConfigSubject string
	RegistryConfig            []latticedata.RegistryConfig

	AttachBusPolicy    bool
	AttachBusSecrets   bool
	AttachBusPublisher bool

	Log hostlog.Logger
}

// NatsHostBuilder composes a bus-backed HostBuilder: it connects to
// NATS, provisions the two JetStream KV buckets (LATTICEDATA_<lattice>,
// CONFIGDATA_<lattice>), optionally resolves supplemental registry
// config, and returns a Builder with the NATS-backed stores/publisher
// already attached.
func NewNatsHostBuilder(cfg NatsConfig) (*Builder, func() error, error) {
	log := cfg.Log
	if log == nil {
		log = hostlog.Default()
	}

	conn, err := natsconn.Connect(cfg.NATS, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	closeFn := conn.Close

	js, err := conn.Raw().JetStream()
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("open jetstream context: %w", err)
	}

	latticeStore, err := jskv.Open(js, jskv.Config{
		Bucket:      latticedata.LatticeDataBucket(cfg.Lattice),
		Description: "lattice host control-plane data for " + cfg.Lattice,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("open lattice data bucket: %w", err)
	}

	configStore, err := jskv.Open(js, jskv.Config{
		Bucket:      latticedata.ConfigDataBucket(cfg.Lattice),
		Description: "lattice host config data for " + cfg.Lattice,
	})
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("open config data bucket: %w", err)
	}

	registryConfig := cfg.RegistryConfig
	if cfg.SupplementalConfigSubject != "" {
		supplemental, err := fetchSupplementalRegistryConfig(conn.Raw(), cfg.SupplementalConfigSubject)
		if err != nil {
			log.Warn("supplemental config request failed, continuing with local registry config only",
				"subject", cfg.SupplementalConfigSubject, "error", err)
		} else {
			registryConfig = mergeRegistryConfig(supplemental, cfg.RegistryConfig)
		}
	}

	b := New(conn, cfg.Prefix, cfg.Lattice, cfg.HostID).
		WithLabels(cfg.Labels).
		WithDataStore(latticeStore).
		WithConfigStore(configStore).
		WithRegistryConfig(registryConfig).
		WithLogger(log)

	if cfg.AttachBusPublisher {
		b = b.WithEventPublisher(natspub.New(conn, cfg.Prefix, log))
	}
	// AttachBusPolicy/AttachBusSecrets are accepted for forward
	// compatibility with a bus-backed policy/secrets RPC protocol; no
	// such protocol is defined here (the core does not define the
	// secrets wire format), so they default through to PermitAll/Empty
	// regardless until one is wired.

	return b, closeFn, nil
}

func fetchSupplementalRegistryConfig(nc *nats.Conn, subject string) ([]latticedata.RegistryConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := nc.RequestWithContext(ctx, subject, nil)
	if err != nil {
		return nil, err
	}

	var reply ctlapi.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode supplemental config reply: %w", err)
	}
	if !reply.Success {
		return nil, fmt.Errorf("supplemental config request failed: %s", reply.Error)
	}

	raw, err := json.Marshal(reply.Response)
	if err != nil {
		return nil, err
	}
	var entries []latticedata.RegistryConfig
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode registry entries: %w", err)
	}
	return entries, nil
}

// mergeRegistryConfig combines a remote-fetched list with locally
// provided options; later entries (local) win on a registry-name
// collision.
func mergeRegistryConfig(remote, local []latticedata.RegistryConfig) []latticedata.RegistryConfig {
	merged := append([]latticedata.RegistryConfig(nil), remote...)
	return append(merged, local...)
}
