// Package device holds DeviceConfigurator implementations.
package device

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// Op names a device operation.
type Op string

const (
	OpApplyPolicer Op = "apply-policer"
	OpSetFilter    Op = "set-filter"
)

// Change is one configuration request seen by DryRun.
type Change struct {
	Op        Op
	Router    string
	Interface string
	Policer   dtm.Policer // set for OpApplyPolicer
	Active    bool        // set for OpSetFilter
}

// DryRun logs configuration requests instead of pushing them to a router.
// It keeps the requests so they can be inspected.
type DryRun struct {
	mu      sync.Mutex
	changes []Change
}

// NewDryRun creates an empty DryRun configurator.
func NewDryRun() *DryRun {
	return &DryRun{}
}

// ApplyPolicer implements dtm.DeviceConfigurator.
func (d *DryRun) ApplyPolicer(ctx context.Context, router dtm.Router, iface string, p dtm.Policer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"router": router.Name, "interface": iface}).
		Infof("policer: limit=%.0f bps premium=%.0f bps", p.BandwidthLimit, p.PremiumLimit)
	d.record(Change{Op: OpApplyPolicer, Router: router.Name, Interface: iface, Policer: p})
	return nil
}

// SetFilter implements dtm.DeviceConfigurator.
func (d *DryRun) SetFilter(ctx context.Context, router dtm.Router, iface string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"router": router.Name, "interface": iface}).
		Infof("filter active=%t", active)
	d.record(Change{Op: OpSetFilter, Router: router.Name, Interface: iface, Active: active})
	return nil
}

func (d *DryRun) record(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, c)
}

// Changes returns the requests seen so far, oldest first.
func (d *DryRun) Changes() []Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Change(nil), d.changes...)
}
