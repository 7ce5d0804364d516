package economic

import (
	"fmt"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// Aggregator accumulates the link and tunnel samples of one accounting
// period. Index 0 is link 1 of the session, index 1 link 2.
// Implementations are not goroutine-safe; Session serializes access.
type Aggregator interface {
	Store(x, z [2]int64)
	Reset()
	LinkTotals() [2]int64
	TunnelTotals() [2]int64
}

// NewAggregator creates the aggregator for a charging rule.
// expectedSamples is the number of reports per accounting period.
// Panics on unrecognized rules.
func NewAggregator(rule dtm.ChargingRule, expectedSamples int) Aggregator {
	if !dtm.ValidChargingRules[rule] {
		panic(fmt.Sprintf("unknown charging rule %q", rule))
	}
	switch rule {
	case dtm.ChargingVolume:
		return &TotalVolume{}
	case dtm.Charging95thPercentile:
		return NewPercentile95(expectedSamples)
	default:
		panic(fmt.Sprintf("unhandled charging rule %q", rule))
	}
}

// TotalVolume keeps running sums of link and tunnel traffic.
type TotalVolume struct {
	links   [2]int64
	tunnels [2]int64
}

func (v *TotalVolume) Store(x, z [2]int64) {
	for i := range 2 {
		v.links[i] += x[i]
		v.tunnels[i] += z[i]
	}
}

func (v *TotalVolume) Reset() {
	v.links = [2]int64{}
	v.tunnels = [2]int64{}
}

func (v *TotalVolume) LinkTotals() [2]int64 { return v.links }

func (v *TotalVolume) TunnelTotals() [2]int64 { return v.tunnels }
