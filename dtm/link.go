package dtm

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"gopkg.in/yaml.v3"
)

// LinkIDKind tags the identifier scheme of a LinkID.
type LinkIDKind string

const (
	// LinkIDLocalISP identifies a link by local link name and ISP name.
	// It is the only kind the DTM core accepts.
	LinkIDLocalISP LinkIDKind = "local-isp"
)

// LinkID identifies one uplink. Comparable, used as a map key throughout.
// Decoding a LinkID without a kind yields LinkIDLocalISP.
type LinkID struct {
	Kind      LinkIDKind `json:"kind" yaml:"kind"`
	LocalName string     `json:"local_name" yaml:"local_name"`
	ISPName   string     `json:"isp_name" yaml:"isp_name"`
}

// NewLinkID returns a local-isp LinkID.
func NewLinkID(localName, ispName string) LinkID {
	return LinkID{Kind: LinkIDLocalISP, LocalName: localName, ISPName: ispName}
}

func (id LinkID) String() string {
	return id.LocalName + "@" + id.ISPName
}

// Validate rejects identifier kinds other than local-isp and empty names.
func (id LinkID) Validate() error {
	if id.Kind != LinkIDLocalISP {
		return fmt.Errorf("%w: kind %q for link %s", ErrUnsupportedLinkID, id.Kind, id)
	}
	if id.LocalName == "" || id.ISPName == "" {
		return fmt.Errorf("%w: link %q has empty local or ISP name", ErrUnsupportedLinkID, id.String())
	}
	return nil
}

type linkIDFields LinkID

// UnmarshalJSON defaults a missing kind to local-isp.
func (id *LinkID) UnmarshalJSON(data []byte) error {
	var f linkIDFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Kind == "" {
		f.Kind = LinkIDLocalISP
	}
	*id = LinkID(f)
	return nil
}

// UnmarshalYAML defaults a missing kind to local-isp.
func (id *LinkID) UnmarshalYAML(node *yaml.Node) error {
	var f linkIDFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	if f.Kind == "" {
		f.Kind = LinkIDLocalISP
	}
	*id = LinkID(f)
	return nil
}

// Router is a border router owning one or more links.
type Router struct {
	Name              string `json:"name" yaml:"name"`
	ManagementAddress string `json:"management_address" yaml:"management_address"`
}

// Link is the directory record of a monitored uplink.
type Link struct {
	ID                LinkID
	Router            Router
	PhysicalInterface string
	// TunnelEndPrefix is the network prefix of the tunnel end reached over this link.
	// Compensation vectors are keyed by it.
	TunnelEndPrefix netip.Prefix
	// PolicerBandwidthLimitFactor scales the policer bandwidth limit; 0 means 1.
	PolicerBandwidthLimitFactor float64
	// AggregateLeakageFactor is the share of the bandwidth limit not granted to premium traffic.
	AggregateLeakageFactor float64
}
