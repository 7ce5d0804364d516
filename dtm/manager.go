package dtm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartenit-eu/smartenit-sub001/dtm/trace"
)

// TrafficManager is the traffic-manager facade. It keeps the per-AS X/R
// state, and every time an AS becomes or stays ready it queues one
// compensation task on the Dispatcher.
//
// Per AS the state moves between empty, X-only, R-only and ready. X
// reports of one AS are expected from a single producer, in order.
type TrafficManager struct {
	dir        Directory
	sender     PeerSender
	dispatcher *Dispatcher
	state      *VectorStateContainer
	controller *CompensationUpdateController
	policy     *DelayTolerantPolicy
	schedule   TimeScheduleParameters
	control    SystemControlParameters
	metrics    *Metrics
	trace      *trace.DecisionTrace

	mu      sync.Mutex
	reports map[uint32]int // X reports per AS since its last reference vector
}

// TrafficManagerOption customizes a TrafficManager.
type TrafficManagerOption func(*TrafficManager)

// WithMetrics sets the prometheus instruments.
func WithMetrics(m *Metrics) TrafficManagerOption {
	return func(tm *TrafficManager) { tm.metrics = m }
}

// WithTrace records every decision into t.
func WithTrace(t *trace.DecisionTrace) TrafficManagerOption {
	return func(tm *TrafficManager) { tm.trace = t }
}

// NewTrafficManager loads schedule and control parameters from dir and
// builds the manager. device may be nil unless delay-tolerant management is
// enabled.
func NewTrafficManager(dir Directory, sender PeerSender, device DeviceConfigurator, d *Dispatcher,
	opts ...TrafficManagerOption) (*TrafficManager, error) {
	schedule, err := dir.TimeSchedule()
	if err != nil {
		return nil, fmt.Errorf("loading time schedule: %w", err)
	}
	control, err := dir.SystemControl()
	if err != nil {
		return nil, fmt.Errorf("loading system control parameters: %w", err)
	}
	if err := control.Validate(); err != nil {
		return nil, err
	}
	tm := &TrafficManager{
		dir:        dir,
		sender:     sender,
		dispatcher: d,
		state:      NewVectorStateContainer(),
		schedule:   schedule,
		control:    control,
		reports:    make(map[uint32]int),
	}
	for _, opt := range opts {
		opt(tm)
	}
	if tm.metrics == nil {
		tm.metrics = NewMetrics(nil)
	}
	tm.controller = NewCompensationUpdateController(control.SuppressUpdates, control.CompensationThreshold,
		schedule.CompensationEvery())
	if control.DelayTolerant {
		if device == nil {
			return nil, fmt.Errorf("delay-tolerant management enabled without a device configurator")
		}
		tm.policy = NewDelayTolerantPolicy(dir, device, schedule.SamplingPeriod, tm.metrics)
	}
	return tm, nil
}

// Controller returns the update controller.
func (tm *TrafficManager) Controller() *CompensationUpdateController {
	return tm.controller
}

// Policy returns the delay-tolerant policy, nil when disabled.
func (tm *TrafficManager) Policy() *DelayTolerantPolicy {
	return tm.policy
}

// Pair returns the current X/R pair of as.
func (tm *TrafficManager) Pair(as uint32) (XRVectorPair, bool) {
	return tm.state.Pair(as)
}

// UpdateXVector accumulates a measured X vector. Under 95th-percentile
// charging the stored X is zeroed at sampling-window boundaries, before or
// after the accumulation depending on ResetXBeforeAccumulate. If the AS is
// ready, a compensation task is queued.
func (tm *TrafficManager) UpdateXVector(x XVector) error {
	if err := x.Validate(); err != nil {
		return err
	}
	as := x.SourceAS
	if err := tm.checkPartner(as, x.Values); err != nil {
		return err
	}
	percentile := tm.control.ChargingRule == Charging95thPercentile
	window := tm.schedule.SamplingWindowReports()

	tm.mu.Lock()
	tm.reports[as]++
	n := tm.reports[as]
	tm.mu.Unlock()

	if percentile && tm.control.ResetXBeforeAccumulate && (n-1)%window == 0 {
		tm.state.ResetX(as)
	}
	pair := tm.state.AccumulateX(x)
	if pair.Ready() {
		r := *pair.R
		if percentile {
			r = tm.controller.PrepareCVector(as, r)
		}
		tm.submit(*pair.X, r, nil)
	}
	if percentile && !tm.control.ResetXBeforeAccumulate && n%window == 0 {
		tm.state.ResetX(as)
	}
	return nil
}

// UpdateRVector installs a new reference vector and starts a new accounting
// period for its AS: the stored X is zeroed, the update controller is reset
// and, with delay-tolerant management, filters are reactivated and policers
// reconfigured. If the AS is ready, its compensation is sent together with r.
func (tm *TrafficManager) UpdateRVector(ctx context.Context, r ReferenceVector) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return tm.installReference(ctx, r, "economic-analyzer")
}

func (tm *TrafficManager) installReference(ctx context.Context, r ReferenceVector, source string) error {
	as := r.SourceAS
	if err := tm.checkPartner(as, r.Values); err != nil {
		return err
	}
	tm.state.ResetX(as)
	tm.controller.Reset()
	tm.mu.Lock()
	delete(tm.reports, as)
	tm.mu.Unlock()

	tm.metrics.ReferenceVectors.Inc()
	tm.trace.RecordReference(trace.ReferenceRecord{SourceAS: as, Values: linkValues(r.Values), Source: source})
	logrus.WithField("as", as).Infof("reference vector from %s: %v", source, linkValues(r.Values))

	if tm.policy != nil {
		tm.policy.ReactivateFilters(ctx)
		tm.policy.ApplyReference(ctx, r)
	}
	pair := tm.state.StoreR(r)
	if pair.Ready() {
		tm.submit(*pair.X, *pair.R, pair.R)
	}
	return nil
}

// checkPartner rejects values whose links differ from those of the vectors
// already stored for as.
func (tm *TrafficManager) checkPartner(as uint32, values []LocalValue) error {
	pair, ok := tm.state.Pair(as)
	if !ok {
		return nil
	}
	if pair.X != nil && !SameLinks(values, pair.X.Values) {
		return fmt.Errorf("%w: AS %d stores X over %v, got %v", ErrMismatchedLinks, as,
			linkNames(linksOf(pair.X.Values)), linkNames(linksOf(values)))
	}
	if pair.R != nil && !SameLinks(values, pair.R.Values) {
		return fmt.Errorf("%w: AS %d stores a reference over %v, got %v", ErrMismatchedLinks, as,
			linkNames(linksOf(pair.R.Values)), linkNames(linksOf(values)))
	}
	return nil
}

// UpdateLinksWithRVectorAchieved records links of as whose 95th-percentile
// reference is already achieved and, with delay-tolerant management, lifts
// their filters.
func (tm *TrafficManager) UpdateLinksWithRVectorAchieved(ctx context.Context, as uint32, links []LinkID) error {
	if as == 0 {
		return fmt.Errorf("%w: achieved links without AS number", ErrInvalidVector)
	}
	for _, l := range links {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	newly := tm.controller.UpdateAchievedLinks(as, links)
	tm.trace.RecordAchievement(trace.AchievementRecord{SourceAS: as, Links: linkNames(links), Newly: linkNames(newly)})
	if len(newly) > 0 {
		logrus.WithField("as", as).Infof("reference achieved on %v", linkNames(newly))
	}
	if tm.policy != nil && len(newly) > 0 {
		tm.policy.DeactivateFilters(ctx, newly)
	}
	return nil
}

// submit queues the compensation of x against r. A non-nil ref is sent
// along and bypasses the update controller.
func (tm *TrafficManager) submit(x XVector, r ReferenceVector, ref *ReferenceVector) {
	name := fmt.Sprintf("compensation as=%d", x.SourceAS)
	err := tm.dispatcher.Submit(name, func(ctx context.Context) error {
		return tm.dispatch(ctx, x, r, ref)
	})
	if err != nil {
		logrus.WithField("as", x.SourceAS).Warnf("compensation not queued: %v", err)
	}
}

func (tm *TrafficManager) dispatch(ctx context.Context, x XVector, r ReferenceVector, ref *ReferenceVector) error {
	c, err := ConstructCompensation(tm.dir, x, r)
	if err != nil {
		return fmt.Errorf("compensation for AS %d: %w", x.SourceAS, err)
	}
	if !tm.controller.UpdateRequired(c) && ref == nil {
		tm.metrics.CompensationSuppressed.Inc()
		tm.trace.RecordSuppression(trace.SuppressionRecord{SourceAS: c.SourceAS, Values: prefixValues(c.Values)})
		logrus.WithField("as", c.SourceAS).Debugf("compensation suppressed: %v", prefixValues(c.Values))
		return nil
	}
	peers, err := tm.dir.Peers(c.SourceAS)
	if err != nil {
		return fmt.Errorf("peers of AS %d: %w", c.SourceAS, err)
	}
	failed := 0
	for _, p := range peers {
		if err := tm.sender.Send(ctx, p, c, ref); err != nil {
			failed++
			tm.metrics.PeerSendFailures.Inc()
			logrus.WithFields(logrus.Fields{"as": c.SourceAS, "peer": p.String()}).Warnf("sending compensation failed: %v", err)
		}
	}
	tm.metrics.CompensationDispatched.Inc()
	tm.trace.RecordDispatch(trace.DispatchRecord{
		SourceAS:      c.SourceAS,
		Values:        prefixValues(c.Values),
		WithReference: ref != nil,
		Peers:         len(peers),
		Failed:        failed,
	})
	return nil
}

func linkValues(values []LocalValue) map[string]int64 {
	out := make(map[string]int64, len(values))
	for _, v := range values {
		out[v.Link.String()] = v.Value
	}
	return out
}

func prefixValues(values []PrefixValue) map[string]int64 {
	out := make(map[string]int64, len(values))
	for _, v := range values {
		out[v.Prefix.String()] = v.Value
	}
	return out
}

func linksOf(values []LocalValue) []LinkID {
	out := make([]LinkID, 0, len(values))
	for _, v := range values {
		out = append(out, v.Link)
	}
	return out
}

func linkNames(links []LinkID) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.String())
	}
	return out
}
