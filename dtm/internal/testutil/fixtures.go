// Package testutil provides shared test fixtures and assertion helpers
// used across the dtm/ test packages.
package testutil

import (
	"fmt"
	"math"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// Link1 and Link2 are the two uplinks of the fixture site.
var (
	Link1 = dtm.NewLinkID("link1", "isp-a")
	Link2 = dtm.NewLinkID("link2", "isp-b")
)

// CostFunction returns the three-segment cost function used by the
// reference-vector scenarios: flat 1 up to 20, then 20·x+0.5 up to 100,
// then 20·x+2.
func CostFunction(link dtm.LinkID) dtm.CostFunction {
	return dtm.CostFunction{
		Link: link,
		Segments: []dtm.Segment{
			{LeftBorder: 0, RightBorder: 20, A: 0, B: 1},
			{LeftBorder: 20, RightBorder: 100, A: 20, B: 0.5},
			{LeftBorder: 100, RightBorder: dtm.InfiniteBorder, A: 20, B: 2},
		},
	}
}

// Links returns link records for Link1 and Link2 with tunnel prefixes
// 10.1.0.0/16 and 10.2.0.0/16.
func Links() []dtm.Link {
	return []dtm.Link{
		{
			ID:                Link1,
			Router:            dtm.Router{Name: "br1", ManagementAddress: "192.0.2.1"},
			PhysicalInterface: "ge-0/0/1",
			TunnelEndPrefix:   netip.MustParsePrefix("10.1.0.0/16"),
		},
		{
			ID:                Link2,
			Router:            dtm.Router{Name: "br2", ManagementAddress: "192.0.2.2"},
			PhysicalInterface: "ge-0/0/2",
			TunnelEndPrefix:   netip.MustParsePrefix("10.2.0.0/16"),
		},
	}
}

// Schedule returns a schedule with 4 EA reports per accounting period,
// forced compensation every 3 DTM reports and a 2-report sampling window.
func Schedule() dtm.TimeScheduleParameters {
	return dtm.TimeScheduleParameters{
		AccountingPeriod:   4 * time.Minute,
		ReportPeriodEA:     time.Minute,
		ReportPeriodDTM:    30 * time.Second,
		CompensationPeriod: 90 * time.Second,
		SamplingPeriod:     time.Minute,
		Tol1:               1,
		Tol2:               1,
	}
}

// StaticDirectory is an in-memory dtm.Directory. Fields may be changed
// before the directory is handed to the code under test.
type StaticDirectory struct {
	Schedule  dtm.TimeScheduleParameters
	Control   dtm.SystemControlParameters
	LinkList  []dtm.Link
	Costs     []dtm.CostFunction
	PeerLists map[uint32][]dtm.PeerAddress

	mu      sync.Mutex
	lookups int
}

// NewStaticDirectory returns the fixture directory under volume charging.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		Schedule: Schedule(),
		Control: dtm.SystemControlParameters{
			ChargingRule:          dtm.ChargingVolume,
			CompensationThreshold: 0.1,
		},
		LinkList: Links(),
		Costs:    []dtm.CostFunction{CostFunction(Link1), CostFunction(Link2)},
		PeerLists: map[uint32][]dtm.PeerAddress{
			100: {{Host: "198.51.100.10", Port: 9000}},
		},
	}
}

// Lookups returns the number of cost-function lookups served.
func (d *StaticDirectory) Lookups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups
}

func (d *StaticDirectory) Link(id dtm.LinkID) (dtm.Link, error) {
	for _, l := range d.LinkList {
		if l.ID == id {
			return l, nil
		}
	}
	return dtm.Link{}, fmt.Errorf("link %s: %w", id, dtm.ErrNotFound)
}

func (d *StaticDirectory) CostFunction(id dtm.LinkID) (dtm.CostFunction, error) {
	d.mu.Lock()
	d.lookups++
	d.mu.Unlock()
	for _, cf := range d.Costs {
		if cf.Link == id {
			return cf, nil
		}
	}
	return dtm.CostFunction{}, fmt.Errorf("cost function %s: %w", id, dtm.ErrNotFound)
}

func (d *StaticDirectory) TimeSchedule() (dtm.TimeScheduleParameters, error) {
	return d.Schedule, nil
}

func (d *StaticDirectory) SystemControl() (dtm.SystemControlParameters, error) {
	return d.Control, nil
}

func (d *StaticDirectory) Peers(as uint32) ([]dtm.PeerAddress, error) {
	peers, ok := d.PeerLists[as]
	if !ok {
		return nil, fmt.Errorf("peers of AS %d: %w", as, dtm.ErrNotFound)
	}
	return peers, nil
}

// XVector builds an X vector over Link1 and Link2.
func XVector(as uint32, v1, v2 int64) dtm.XVector {
	return dtm.XVector{SourceAS: as, Values: []dtm.LocalValue{{Link: Link1, Value: v1}, {Link: Link2, Value: v2}}}
}

// ZVector builds a Z vector over Link1 and Link2.
func ZVector(v1, v2 int64) dtm.ZVector {
	return dtm.ZVector{Values: []dtm.LocalValue{{Link: Link1, Value: v1}, {Link: Link2, Value: v2}}}
}

// ReferenceVector builds a reference vector over Link1 and Link2.
func ReferenceVector(as uint32, v1, v2 int64) dtm.ReferenceVector {
	return dtm.ReferenceVector{SourceAS: as, Values: []dtm.LocalValue{{Link: Link1, Value: v1}, {Link: Link2, Value: v2}}}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
