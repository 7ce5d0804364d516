package economic

import (
	"cmp"
	"slices"
)

// historyDepth is the number of closed periods Percentile95 keeps in memory.
const historyDepth = 12

// TrafficSample is one report's value, tagged with its position in the
// accounting period.
type TrafficSample struct {
	Seq   int   `json:"seq"`
	Value int64 `json:"value"`
}

// PeriodSamples is the raw sample record of one closed accounting period.
type PeriodSamples struct {
	Links   [2][]TrafficSample `json:"links"`
	Tunnels [2][]TrafficSample `json:"tunnels"`
}

// Percentile95 charges the 95th percentile of the period's samples.
// Given a reference, it also tracks per link whether enough samples of the
// period stayed at or below the reference for it to be met regardless of
// the remaining samples.
type Percentile95 struct {
	expected int
	seq      int
	links    [2][]TrafficSample
	tunnels  [2][]TrafficSample

	reference    [2]int64
	hasReference bool
	achieved     [2]bool
	changed      bool

	history []PeriodSamples
}

// NewPercentile95 creates an aggregator expecting expectedSamples reports
// per accounting period.
func NewPercentile95(expectedSamples int) *Percentile95 {
	return &Percentile95{expected: max(1, expectedSamples)}
}

// PercentileIndex is the 0-based position of the 95th percentile among n
// ascending samples.
func PercentileIndex(n int) int {
	return max(95*n/100-1, 0)
}

// Percentile returns the 95th-percentile value of samples, 0 when empty.
func Percentile(samples []TrafficSample) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b TrafficSample) int {
		return cmp.Compare(a.Value, b.Value)
	})
	return sorted[PercentileIndex(len(sorted))].Value
}

func (p *Percentile95) Store(x, z [2]int64) {
	p.seq++
	for i := range 2 {
		p.links[i] = append(p.links[i], TrafficSample{Seq: p.seq, Value: x[i]})
		p.tunnels[i] = append(p.tunnels[i], TrafficSample{Seq: p.seq, Value: z[i]})
	}
	p.updateAchieved()
}

// updateAchieved marks links whose count of samples at or below the
// reference has reached 95% of the expected sample count.
func (p *Percentile95) updateAchieved() {
	if !p.hasReference {
		return
	}
	need := max(1, 95*p.expected/100)
	for i := range 2 {
		if p.achieved[i] {
			continue
		}
		below := 0
		for _, s := range p.links[i] {
			if s.Value <= p.reference[i] {
				below++
			}
		}
		if below >= need {
			p.achieved[i] = true
			p.changed = true
		}
	}
}

// Reset closes the period: its samples move to the history and the
// achievement state is cleared. The reference is kept until replaced.
func (p *Percentile95) Reset() {
	p.history = append(p.history, p.current())
	if len(p.history) > historyDepth {
		p.history = slices.Delete(p.history, 0, len(p.history)-historyDepth)
	}
	p.seq = 0
	p.links = [2][]TrafficSample{}
	p.tunnels = [2][]TrafficSample{}
	p.achieved = [2]bool{}
	p.changed = false
}

func (p *Percentile95) current() PeriodSamples {
	var out PeriodSamples
	for i := range 2 {
		out.Links[i] = slices.Clone(p.links[i])
		out.Tunnels[i] = slices.Clone(p.tunnels[i])
	}
	return out
}

func (p *Percentile95) LinkTotals() [2]int64 {
	return [2]int64{Percentile(p.links[0]), Percentile(p.links[1])}
}

func (p *Percentile95) TunnelTotals() [2]int64 {
	return [2]int64{Percentile(p.tunnels[0]), Percentile(p.tunnels[1])}
}

// SetReference sets the per-link reference the achievement check compares
// samples against.
func (p *Percentile95) SetReference(r [2]int64) {
	p.reference = r
	p.hasReference = true
	p.updateAchieved()
}

// Changed reports whether a link became achieved since the last call.
func (p *Percentile95) Changed() bool {
	c := p.changed
	p.changed = false
	return c
}

// Achieved returns the per-link achievement flags of the current period.
func (p *Percentile95) Achieved() [2]bool {
	return p.achieved
}

// History returns the closed periods still held, oldest first.
func (p *Percentile95) History() []PeriodSamples {
	return slices.Clone(p.history)
}

// LastPeriod returns the most recently closed period.
func (p *Percentile95) LastPeriod() (PeriodSamples, bool) {
	if len(p.history) == 0 {
		return PeriodSamples{}, false
	}
	return p.history[len(p.history)-1], true
}
