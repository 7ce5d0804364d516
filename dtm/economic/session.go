package economic

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// ReferenceSink receives the outputs of an economic analyzer session.
// dtm.TrafficManager implements it.
type ReferenceSink interface {
	UpdateRVector(ctx context.Context, r dtm.ReferenceVector) error
	UpdateLinksWithRVectorAchieved(ctx context.Context, as uint32, links []dtm.LinkID) error
}

// AuditSink persists the raw samples of closed 95th-percentile periods.
type AuditSink interface {
	RecordPeriod(key PairKey, period int, samples PeriodSamples) error
}

// PairKey identifies an unordered pair of links. A sorts before B by
// string form, so both orders of the same links give the same key.
type PairKey struct {
	A, B dtm.LinkID
}

// NewPairKey returns the canonical key of l1 and l2.
func NewPairKey(l1, l2 dtm.LinkID) PairKey {
	if l2.String() < l1.String() {
		l1, l2 = l2, l1
	}
	return PairKey{A: l1, B: l2}
}

func (k PairKey) String() string {
	return k.A.String() + "|" + k.B.String()
}

// Session is the economic analyzer of one link pair. It aggregates the
// reports of an accounting period and, when the period closes, computes the
// reference vector and hands it to the sink. Link 1 is key.A, link 2 key.B.
type Session struct {
	key              PairKey
	rule             dtm.ChargingRule
	costs            []dtm.CostFunction
	calculator       *ReferenceVectorCalculator
	reportsPerPeriod int
	sink             ReferenceSink
	audit            AuditSink

	mu         sync.Mutex
	aggregator Aggregator
	reports    int
	period     int
}

// NewSession loads the schedule, charging rule and both cost functions from
// dir and builds the session for key. audit may be nil.
func NewSession(dir dtm.Directory, key PairKey, sink ReferenceSink, audit AuditSink) (*Session, error) {
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
	cf1, err := dir.CostFunction(key.A)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", key, err)
	}
	cf2, err := dir.CostFunction(key.B)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", key, err)
	}
	// Tol1 belongs to key.A whatever order the links were given in.
	calc, err := NewReferenceVectorCalculator(key.A, key.B, cf1, cf2, schedule.Tol1, schedule.Tol2)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", key, err)
	}
	n := schedule.ReportsPerAccountingPeriod()
	return &Session{
		key:              key,
		rule:             control.ChargingRule,
		costs:            []dtm.CostFunction{cf1, cf2},
		calculator:       calc,
		reportsPerPeriod: n,
		sink:             sink,
		audit:            audit,
		aggregator:       NewAggregator(control.ChargingRule, n),
	}, nil
}

// Key returns the link pair of the session.
func (s *Session) Key() PairKey {
	return s.key
}

// UpdateXZVectors stores one report. Only the first Z vector is used.
// x must carry exactly the two links of the session and zs may only
// reference them; otherwise nothing is stored.
func (s *Session) UpdateXZVectors(ctx context.Context, x dtm.XVector, zs []dtm.ZVector) error {
	xs, zv, err := s.split(x, zs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.aggregator.Store(xs, zv)
	s.reports++

	var achieved []dtm.LinkID
	perc, percentile := s.aggregator.(*Percentile95)
	if percentile && perc.Changed() {
		flags := perc.Achieved()
		for i, link := range []dtm.LinkID{s.key.A, s.key.B} {
			if flags[i] {
				achieved = append(achieved, link)
			}
		}
	}

	var r *dtm.ReferenceVector
	if s.reports >= s.reportsPerPeriod {
		rv := s.closePeriod(x.SourceAS, perc)
		r = &rv
	}
	s.mu.Unlock()

	if len(achieved) > 0 {
		if err := s.sink.UpdateLinksWithRVectorAchieved(ctx, x.SourceAS, achieved); err != nil {
			return fmt.Errorf("session %s: forwarding achieved links: %w", s.key, err)
		}
	}
	if r != nil {
		if err := s.sink.UpdateRVector(ctx, *r); err != nil {
			return fmt.Errorf("session %s: forwarding reference vector: %w", s.key, err)
		}
	}
	return nil
}

// SeedReference sets the reference the 95th-percentile achievement check
// uses before the first period of the session closes. It is a no-op under
// volume charging.
func (s *Session) SeedReference(r dtm.ReferenceVector) error {
	if err := r.Validate(); err != nil {
		return err
	}
	links := [2]dtm.LinkID{s.key.A, s.key.B}
	expected := []dtm.LocalValue{{Link: links[0]}, {Link: links[1]}}
	if !dtm.SameLinks(r.Values, expected) {
		return fmt.Errorf("%w: reference vector of AS %d does not match session %s", dtm.ErrMismatchedLinks, r.SourceAS, s.key)
	}
	var values [2]int64
	for i, link := range links {
		values[i], _ = dtm.ValueOf(r.Values, link)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if perc, ok := s.aggregator.(*Percentile95); ok {
		perc.SetReference(values)
	}
	return nil
}

// closePeriod computes the reference vector and starts the next period.
// perc is nil under volume charging. Caller holds s.mu.
func (s *Session) closePeriod(as uint32, perc *Percentile95) dtm.ReferenceVector {
	r := s.calculator.Calculate(s.aggregator.LinkTotals(), s.aggregator.TunnelTotals(), as)
	s.aggregator.Reset()
	s.reports = 0
	s.period++

	if perc != nil {
		if s.audit != nil {
			if last, ok := perc.LastPeriod(); ok {
				if err := s.audit.RecordPeriod(s.key, s.period, last); err != nil {
					logrus.WithField("session", s.key.String()).Warnf("recording period %d failed: %v", s.period, err)
				}
			}
		}
		perc.SetReference([2]int64{r.Values[0].Value, r.Values[1].Value})
	}

	fields := logrus.Fields{"session": s.key.String(), "as": as, "period": s.period}
	if cost, err := VectorCost(s.costs, r); err == nil {
		logrus.WithFields(fields).Infof("reference vector (%d, %d), expected cost %s",
			r.Values[0].Value, r.Values[1].Value, cost.StringFixed(2))
	} else {
		logrus.WithFields(fields).Errorf("pricing reference vector: %v", err)
	}
	return r
}

// split validates a report and maps it onto the session's link order.
func (s *Session) split(x dtm.XVector, zs []dtm.ZVector) ([2]int64, [2]int64, error) {
	var xs, zv [2]int64
	if err := x.Validate(); err != nil {
		return xs, zv, err
	}
	for i := range zs {
		if err := zs[i].Validate(); err != nil {
			return xs, zv, err
		}
	}
	links := [2]dtm.LinkID{s.key.A, s.key.B}
	expected := []dtm.LocalValue{{Link: links[0]}, {Link: links[1]}}
	if !dtm.SameLinks(x.Values, expected) {
		return xs, zv, fmt.Errorf("%w: X vector of AS %d does not match session %s", dtm.ErrMismatchedLinks, x.SourceAS, s.key)
	}
	for i, link := range links {
		xs[i], _ = dtm.ValueOf(x.Values, link)
	}
	if len(zs) == 0 {
		return xs, zv, nil
	}
	for _, v := range zs[0].Values {
		switch v.Link {
		case links[0]:
			zv[0] += v.Value
		case links[1]:
			zv[1] += v.Value
		default:
			return xs, zv, fmt.Errorf("%w: Z vector references %s outside session %s", dtm.ErrMismatchedLinks, v.Link, s.key)
		}
	}
	return xs, zv, nil
}
