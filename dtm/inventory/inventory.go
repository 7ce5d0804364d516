// Package inventory provides the YAML-backed directory of links, cost
// functions, schedule and control parameters, and peers.
package inventory

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"

	"go4.org/netipx"
	"gopkg.in/yaml.v3"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// File is the on-disk inventory layout.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type File struct {
	Schedule dtm.TimeScheduleParameters  `yaml:"schedule"`
	Control  dtm.SystemControlParameters `yaml:"control"`
	Links    []LinkSpec                  `yaml:"links"`
	Peers    []PeerSpec                  `yaml:"peers"`
}

// LinkSpec describes one uplink and its cost function.
type LinkSpec struct {
	ID                          dtm.LinkID    `yaml:"id"`
	Router                      dtm.Router    `yaml:"router"`
	PhysicalInterface           string        `yaml:"physical_interface"`
	TunnelEndPrefix             string        `yaml:"tunnel_end_prefix"`
	PolicerBandwidthLimitFactor float64       `yaml:"policer_bandwidth_limit_factor"`
	AggregateLeakageFactor      float64       `yaml:"aggregate_leakage_factor"`
	CostFunction                []SegmentSpec `yaml:"cost_function"`
}

// SegmentSpec is one cost segment. An omitted right_border runs to the
// next segment's left border, or to infinity for the last segment.
type SegmentSpec struct {
	LeftBorder  int64   `yaml:"left_border"`
	RightBorder *int64  `yaml:"right_border,omitempty"`
	A           float64 `yaml:"a"`
	B           float64 `yaml:"b"`
}

// PeerSpec is one remote DTM endpoint serving an AS.
type PeerSpec struct {
	AS   uint32 `yaml:"as"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Inventory is an immutable dtm.Directory built from a File.
type Inventory struct {
	schedule dtm.TimeScheduleParameters
	control  dtm.SystemControlParameters
	order    []dtm.LinkID
	links    map[dtm.LinkID]dtm.Link
	costs    map[dtm.LinkID]dtm.CostFunction
	peers    map[uint32][]dtm.PeerAddress
}

// Load reads, parses and validates an inventory file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return inv, nil
}

// Parse builds an Inventory from YAML.
func Parse(data []byte) (*Inventory, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	return New(f)
}

// New validates f and builds the Inventory.
func New(f File) (*Inventory, error) {
	if err := f.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	if err := f.Control.Validate(); err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	if len(f.Links) < 2 {
		return nil, fmt.Errorf("at least 2 links required, got %d", len(f.Links))
	}

	inv := &Inventory{
		schedule: f.Schedule,
		control:  f.Control,
		links:    make(map[dtm.LinkID]dtm.Link, len(f.Links)),
		costs:    make(map[dtm.LinkID]dtm.CostFunction, len(f.Links)),
		peers:    make(map[uint32][]dtm.PeerAddress),
	}
	var seen netipx.IPSetBuilder
	for i, spec := range f.Links {
		link, cf, err := buildLink(spec, i)
		if err != nil {
			return nil, err
		}
		if _, dup := inv.links[link.ID]; dup {
			return nil, fmt.Errorf("link[%d]: duplicate link %s", i, link.ID)
		}
		if err := checkOverlap(&seen, link.TunnelEndPrefix); err != nil {
			return nil, fmt.Errorf("link[%d]: %w", i, err)
		}
		seen.AddPrefix(link.TunnelEndPrefix)
		inv.order = append(inv.order, link.ID)
		inv.links[link.ID] = link
		inv.costs[link.ID] = cf
	}
	for i, p := range f.Peers {
		if err := validatePeer(p, i); err != nil {
			return nil, err
		}
		inv.peers[p.AS] = append(inv.peers[p.AS], dtm.PeerAddress{Host: p.Host, Port: p.Port})
	}
	return inv, nil
}

func buildLink(spec LinkSpec, idx int) (dtm.Link, dtm.CostFunction, error) {
	prefix := fmt.Sprintf("link[%d]", idx)
	if err := spec.ID.Validate(); err != nil {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: %w", prefix, err)
	}
	if spec.Router.Name == "" {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: router name required", prefix)
	}
	if spec.PhysicalInterface == "" {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: physical_interface required", prefix)
	}
	tunnel, err := netip.ParsePrefix(spec.TunnelEndPrefix)
	if err != nil {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: tunnel_end_prefix: %w", prefix, err)
	}
	if spec.PolicerBandwidthLimitFactor < 0 {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: policer_bandwidth_limit_factor must be non-negative, got %f",
			prefix, spec.PolicerBandwidthLimitFactor)
	}
	if spec.AggregateLeakageFactor < 0 || spec.AggregateLeakageFactor > 1 {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: aggregate_leakage_factor must be in [0, 1], got %f",
			prefix, spec.AggregateLeakageFactor)
	}
	cf := dtm.CostFunction{Link: spec.ID, Segments: buildSegments(spec.CostFunction)}
	if err := cf.Validate(); err != nil {
		return dtm.Link{}, dtm.CostFunction{}, fmt.Errorf("%s: %w", prefix, err)
	}
	return dtm.Link{
		ID:                          spec.ID,
		Router:                      spec.Router,
		PhysicalInterface:           spec.PhysicalInterface,
		TunnelEndPrefix:             tunnel.Masked(),
		PolicerBandwidthLimitFactor: spec.PolicerBandwidthLimitFactor,
		AggregateLeakageFactor:      spec.AggregateLeakageFactor,
	}, cf, nil
}

func buildSegments(specs []SegmentSpec) []dtm.Segment {
	out := make([]dtm.Segment, 0, len(specs))
	for i, s := range specs {
		right := dtm.InfiniteBorder
		switch {
		case s.RightBorder != nil:
			right = *s.RightBorder
		case i+1 < len(specs):
			right = specs[i+1].LeftBorder
		}
		out = append(out, dtm.Segment{LeftBorder: s.LeftBorder, RightBorder: right, A: s.A, B: s.B})
	}
	return out
}

// checkOverlap rejects a prefix sharing addresses with those already added.
func checkOverlap(seen *netipx.IPSetBuilder, p netip.Prefix) error {
	set, err := seen.IPSet()
	if err != nil {
		return err
	}
	if set.OverlapsPrefix(p) {
		return fmt.Errorf("tunnel_end_prefix %s overlaps another link's prefix", p)
	}
	return nil
}

func validatePeer(p PeerSpec, idx int) error {
	prefix := fmt.Sprintf("peer[%d]", idx)
	if p.AS == 0 {
		return fmt.Errorf("%s: as must be set", prefix)
	}
	if p.Host == "" {
		return fmt.Errorf("%s: host required", prefix)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("%s: port must be in [1, 65535], got %d", prefix, p.Port)
	}
	return nil
}

func (inv *Inventory) Link(id dtm.LinkID) (dtm.Link, error) {
	l, ok := inv.links[id]
	if !ok {
		return dtm.Link{}, fmt.Errorf("link %s: %w", id, dtm.ErrNotFound)
	}
	return l, nil
}

func (inv *Inventory) CostFunction(id dtm.LinkID) (dtm.CostFunction, error) {
	cf, ok := inv.costs[id]
	if !ok {
		return dtm.CostFunction{}, fmt.Errorf("cost function %s: %w", id, dtm.ErrNotFound)
	}
	return cf, nil
}

func (inv *Inventory) TimeSchedule() (dtm.TimeScheduleParameters, error) {
	return inv.schedule, nil
}

func (inv *Inventory) SystemControl() (dtm.SystemControlParameters, error) {
	return inv.control, nil
}

func (inv *Inventory) Peers(as uint32) ([]dtm.PeerAddress, error) {
	peers, ok := inv.peers[as]
	if !ok {
		return nil, fmt.Errorf("peers of AS %d: %w", as, dtm.ErrNotFound)
	}
	return append([]dtm.PeerAddress(nil), peers...), nil
}

// LinkIDs returns the configured links in file order.
func (inv *Inventory) LinkIDs() []dtm.LinkID {
	return append([]dtm.LinkID(nil), inv.order...)
}
