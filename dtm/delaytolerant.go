package dtm

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Policer is the rate limit applied to a link's delay-tolerant traffic,
// in bits per second.
type Policer struct {
	BandwidthLimit float64
	PremiumLimit   float64
}

// PolicerFor derives the policer of link from its reference value (bytes per
// sampling period).
func PolicerFor(link Link, value int64, samplingPeriod time.Duration) Policer {
	factor := link.PolicerBandwidthLimitFactor
	if factor == 0 {
		factor = 1
	}
	seconds := samplingPeriod.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	limit := float64(value) * 8 / seconds * factor
	return Policer{
		BandwidthLimit: limit,
		PremiumLimit:   (1 - link.AggregateLeakageFactor) * limit,
	}
}

// DelayTolerantPolicy shapes delay-tolerant traffic on the border routers
// according to the reference vector, and lifts the filters of links whose
// reference is already achieved.
type DelayTolerantPolicy struct {
	links          LinkDirectory
	device         DeviceConfigurator
	samplingPeriod time.Duration
	metrics        *Metrics

	mu          sync.Mutex
	deactivated map[LinkID]bool
}

// NewDelayTolerantPolicy creates the policy.
func NewDelayTolerantPolicy(links LinkDirectory, device DeviceConfigurator, samplingPeriod time.Duration, m *Metrics) *DelayTolerantPolicy {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &DelayTolerantPolicy{
		links:          links,
		device:         device,
		samplingPeriod: samplingPeriod,
		metrics:        m,
		deactivated:    make(map[LinkID]bool),
	}
}

// ApplyReference configures one policer per link of r.
func (p *DelayTolerantPolicy) ApplyReference(ctx context.Context, r ReferenceVector) {
	for _, v := range r.Values {
		link, err := p.links.Link(v.Link)
		if err != nil {
			logrus.Errorf("delay-tolerant policy: %v", err)
			continue
		}
		policer := PolicerFor(link, v.Value, p.samplingPeriod)
		if err := p.device.ApplyPolicer(ctx, link.Router, link.PhysicalInterface, policer); err != nil {
			p.metrics.DeviceFailures.WithLabelValues("apply_policer").Inc()
			logrus.WithFields(logrus.Fields{"link": v.Link.String(), "router": link.Router.Name}).
				Warnf("applying policer failed: %v", err)
			continue
		}
		logrus.Debugf("policer on %s: limit=%.0fbps premium=%.0fbps", v.Link, policer.BandwidthLimit, policer.PremiumLimit)
	}
}

// DeactivateFilters turns off the filters of links. Links already
// deactivated are skipped.
func (p *DelayTolerantPolicy) DeactivateFilters(ctx context.Context, links []LinkID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range links {
		if p.deactivated[id] {
			continue
		}
		link, err := p.links.Link(id)
		if err != nil {
			logrus.Errorf("delay-tolerant policy: %v", err)
			continue
		}
		if err := p.device.SetFilter(ctx, link.Router, link.PhysicalInterface, false); err != nil {
			p.metrics.DeviceFailures.WithLabelValues("deactivate_filter").Inc()
			logrus.WithField("link", id.String()).Warnf("deactivating filter failed: %v", err)
			continue
		}
		p.deactivated[id] = true
	}
}

// ReactivateFilters turns the filters of all deactivated links back on and
// clears the set. Called at every new accounting period.
func (p *DelayTolerantPolicy) ReactivateFilters(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.deactivated {
		link, err := p.links.Link(id)
		if err != nil {
			logrus.Errorf("delay-tolerant policy: %v", err)
			continue
		}
		if err := p.device.SetFilter(ctx, link.Router, link.PhysicalInterface, true); err != nil {
			p.metrics.DeviceFailures.WithLabelValues("activate_filter").Inc()
			logrus.WithField("link", id.String()).Warnf("reactivating filter failed: %v", err)
		}
	}
	p.deactivated = make(map[LinkID]bool)
}

// Deactivated returns the links whose filters are currently off.
func (p *DelayTolerantPolicy) Deactivated() []LinkID {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]LinkID, 0, len(p.deactivated))
	for id := range p.deactivated {
		out = append(out, id)
	}
	return out
}
