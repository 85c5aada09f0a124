// Package latticedata defines the wire and storage types shared by the
// lattice bucket (LATTICEDATA_<lattice>) and the config bucket
// (CONFIGDATA_<lattice>): component specs, provider instances, links,
// claims, and registry configuration.
package latticedata

import (
	"encoding/json"
	"sort"
)

// Key prefixes used in the LATTICEDATA_<lattice> bucket. Entries are
// addressed as "<PREFIX>_<id>"; SplitKey splits that on the first underscore.
const (
	PrefixComponent = "COMPONENT"
	PrefixClaims    = "CLAIMS"
	PrefixLinkdef   = "LINKDEF"
	PrefixRefmap    = "REFMAP"
)

// ComponentSpec is the desired state for a running component, keyed
// COMPONENT_<id> in the lattice bucket. The host converges its live
// instance count toward MaxInstances for ImageRef.
type ComponentSpec struct {
	ComponentID  string            `json:"component_id"`
	ImageRef     string            `json:"image_ref"`
	MaxInstances uint32            `json:"max_instances"`
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// AnnotationsJSON encodes Annotations as a JSON object with keys sorted
// lexically, so two specs with identical content always hash and compare
// identically regardless of Go's randomized map iteration order.
func (c *ComponentSpec) AnnotationsJSON() ([]byte, error) {
	if len(c.Annotations) == 0 {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(c.Annotations))
	for k := range c.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 64)
	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.Annotations[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ProviderInstance describes a running capability provider. Unlike
// ComponentSpec it is not driven by the bucket: it is started by an
// explicit RPC (start_provider) and the host itself maintains the
// authoritative instance record.
type ProviderInstance struct {
	ProviderID  string            `json:"provider_id"`
	InstanceID  string            `json:"instance_id"`
	ImageRef    string            `json:"image_ref"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Claims      *Claims           `json:"claims,omitempty"`
	XKey        string            `json:"xkey,omitempty"`
}

// Link is a directed routing edge from a source component to a target
// capability. The tuple (SourceID, Name, WitNamespace, WitPackage) is the
// unique key; two links may only differ by Target/Interfaces/configs.
type Link struct {
	SourceID     string   `json:"source_id"`
	Target       string   `json:"target"`
	Name         string   `json:"name"`
	WitNamespace string   `json:"wit_namespace"`
	WitPackage   string   `json:"wit_package"`
	Interfaces   []string `json:"interfaces,omitempty"`
	SourceConfig []string `json:"source_config,omitempty"`
	TargetConfig []string `json:"target_config,omitempty"`
}

// Key returns the unique link key tuple as used for equality and map
// indexing.
func (l Link) Key() LinkKey {
	return LinkKey{
		SourceID:     l.SourceID,
		Name:         l.Name,
		WitNamespace: l.WitNamespace,
		WitPackage:   l.WitPackage,
	}
}

// LinkKey is the comparable subset of Link used as a map key.
type LinkKey struct {
	SourceID     string
	Name         string
	WitNamespace string
	WitPackage   string
}

// Claims is the decoded payload of a signed JWT asserting authorship and
// limits for a component or provider. Keyed CLAIMS_<public_key>.
type Claims struct {
	Issuer    string   `json:"issuer"`
	Subject   string   `json:"subject"`
	Name      string   `json:"name,omitempty"`
	Version   string   `json:"version,omitempty"`
	Revision  int64    `json:"revision,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CallAlias string   `json:"call_alias,omitempty"`
	ValidFrom int64    `json:"valid_from,omitempty"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
	// XKey stashes the ephemeral exchange key used by the secrets
	// protocol when nkeys encryption is negotiated. The core has no
	// opinion on the rest of that protocol; it only stores the value.
	XKey string `json:"xkey,omitempty"`
}

// RegistryConfig holds per-registry credentials and policy, merged from a
// supplemental-config RPC result with locally-provided options at startup.
type RegistryConfig struct {
	Registry      string `json:"registry"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	AllowLatest   bool   `json:"allow_latest,omitempty"`
}
