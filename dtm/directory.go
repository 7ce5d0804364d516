package dtm

import (
	"context"
	"net"
	"strconv"
)

// LinkDirectory resolves link records.
type LinkDirectory interface {
	Link(id LinkID) (Link, error)
}

// CostDirectory resolves the cost function of a link.
type CostDirectory interface {
	CostFunction(id LinkID) (CostFunction, error)
}

// Directory is the configuration and directory lookup collaborator.
// Lookups of unknown entries return errors wrapping ErrNotFound.
type Directory interface {
	LinkDirectory
	CostDirectory
	TimeSchedule() (TimeScheduleParameters, error)
	SystemControl() (SystemControlParameters, error)
	Peers(as uint32) ([]PeerAddress, error)
}

// PeerAddress is a remote peer's DTM endpoint.
type PeerAddress struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

func (a PeerAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// PeerSender delivers a compensation vector, and optionally the reference
// vector it was derived from, to a remote peer.
type PeerSender interface {
	Send(ctx context.Context, addr PeerAddress, c CompensationVector, r *ReferenceVector) error
}

// DeviceConfigurator changes policer and filter settings on a border router.
// Calls are not retried.
type DeviceConfigurator interface {
	ApplyPolicer(ctx context.Context, router Router, iface string, p Policer) error
	SetFilter(ctx context.Context, router Router, iface string, active bool) error
}
