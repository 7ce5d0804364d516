package economic

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// EvaluateCost prices volume with the segment of cf that owns it. A volume
// outside every segment (negative) costs zero.
func EvaluateCost(cf dtm.CostFunction, volume int64) decimal.Decimal {
	seg, ok := cf.SegmentAt(float64(volume))
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(seg.A).Mul(decimal.NewFromInt(volume)).Add(decimal.NewFromFloat(seg.B))
}

// VectorCost is the total charge of the per-link values of r.
func VectorCost(costs []dtm.CostFunction, r dtm.ReferenceVector) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, v := range r.Values {
		cf, ok := findCostFunction(costs, v.Link)
		if !ok {
			return decimal.Zero, fmt.Errorf("no cost function for %s: %w", v.Link, dtm.ErrNotFound)
		}
		total = total.Add(EvaluateCost(cf, v.Value))
	}
	return total, nil
}

func findCostFunction(costs []dtm.CostFunction, link dtm.LinkID) (dtm.CostFunction, bool) {
	for _, cf := range costs {
		if cf.Link == link {
			return cf, true
		}
	}
	return dtm.CostFunction{}, false
}
