package economic

import (
	"fmt"
	"math"
	"slices"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

type point [2]float64

// ReferenceVectorCalculator finds the cheapest split of a two-link traffic
// allocation reachable by moving tunnel traffic between the links.
// The breakpoint geometry is built once; Calculate is a pure function of its
// arguments.
type ReferenceVectorCalculator struct {
	links [2]dtm.LinkID
	axes  [2]axis
	tol   [2]float64
}

// NewReferenceVectorCalculator builds the calculator for link1 and link2.
func NewReferenceVectorCalculator(link1, link2 dtm.LinkID, cf1, cf2 dtm.CostFunction, tol1, tol2 float64) (*ReferenceVectorCalculator, error) {
	for _, cf := range []dtm.CostFunction{cf1, cf2} {
		if err := cf.Validate(); err != nil {
			return nil, err
		}
	}
	if tol1 < 0 || tol2 < 0 || math.IsNaN(tol1) || math.IsNaN(tol2) {
		return nil, fmt.Errorf("tolerances must be non-negative, got %f and %f", tol1, tol2)
	}
	return &ReferenceVectorCalculator{
		links: [2]dtm.LinkID{link1, link2},
		axes:  [2]axis{newAxis(cf1), newAxis(cf2)},
		tol:   [2]float64{tol1, tol2},
	}, nil
}

// Calculate returns the reference vector for measured link traffic x and
// tunnel traffic z. The tradeoff segment runs from end1, with z[0]*tol1
// moved from link 1 to link 2, to end2, with z[1]*tol2 moved the other way.
// Candidate areas are evaluated in ascending (I1, I2) order, the end2 side of
// each clipped segment before the end1 side, and only a strictly cheaper
// point replaces the incumbent.
func (c *ReferenceVectorCalculator) Calculate(x, z [2]int64, as uint32) dtm.ReferenceVector {
	origin := point{float64(x[0]), float64(x[1])}
	shift1 := float64(z[0]) * c.tol[0]
	shift2 := float64(z[1]) * c.tol[1]
	end1 := point{origin[0] - shift1, origin[1] + shift1}
	end2 := point{origin[0] + shift2, origin[1] - shift2}

	best, found := origin, false
	bestCost := math.Inf(1)
	try := func(a Area) {
		t0, t1, ok := c.clip(end1, end2, a)
		if !ok {
			return
		}
		for _, t := range []float64{t1, t0} {
			p := along(end1, end2, t)
			if cost := c.cost(a, p); cost < bestCost {
				best, bestCost, found = p, cost, true
			}
		}
	}

	for _, a := range c.candidateAreas(origin, float64(z[0]+z[1])) {
		try(a)
	}
	if !found {
		try(c.areaContaining(origin))
	}

	return dtm.ReferenceVector{
		SourceAS: as,
		Values: []dtm.LocalValue{
			{Link: c.links[0], Value: int64(math.Round(best[0]))},
			{Link: c.links[1], Value: int64(math.Round(best[1]))},
		},
	}
}

// candidateAreas returns the de-duplicated areas around the breakpoints that
// lie within budget s of origin on either axis, pairing each breakpoint's
// intervals with those of its partner value on the other axis, where the
// partner keeps x1+x2 constant.
func (c *ReferenceVectorCalculator) candidateAreas(origin point, s float64) []Area {
	total := origin[0] + origin[1]
	set := make(map[Area]bool)
	for ax := 0; ax < 2; ax++ {
		other := 1 - ax
		for _, k := range c.axes[ax].breakpointsWithin(origin[ax]-s, origin[ax]+s) {
			partner := total - c.axes[ax].alpha[k]
			for _, i := range c.axes[ax].adjacent(k) {
				for _, j := range c.axes[other].intervalsAt(partner) {
					if ax == 0 {
						set[Area{I1: i, I2: j}] = true
					} else {
						set[Area{I1: j, I2: i}] = true
					}
				}
			}
		}
	}
	if len(set) == 0 {
		return []Area{c.areaContaining(origin)}
	}
	areas := make([]Area, 0, len(set))
	for a := range set {
		areas = append(areas, a)
	}
	slices.SortFunc(areas, compareAreas)
	return areas
}

func (c *ReferenceVectorCalculator) areaContaining(p point) Area {
	return Area{I1: c.axes[0].intervalContaining(p[0]), I2: c.axes[1].intervalContaining(p[1])}
}

// cost prices p with the segments that own area a.
func (c *ReferenceVectorCalculator) cost(a Area, p point) float64 {
	return c.axes[0].segments[a.I1].Cost(p[0]) + c.axes[1].segments[a.I2].Cost(p[1])
}

// clip intersects the segment p0-p1 with the rectangle of a and returns the
// parameter range [t0, t1] of the part inside (Liang-Barsky).
func (c *ReferenceVectorCalculator) clip(p0, p1 point, a Area) (float64, float64, bool) {
	t0, t1 := 0.0, 1.0
	bounds := [2]DInterval{c.axes[0].interval(a.I1), c.axes[1].interval(a.I2)}
	for ax := 0; ax < 2; ax++ {
		d := p1[ax] - p0[ax]
		if !clipEdge(-d, p0[ax]-bounds[ax].Lower, &t0, &t1) {
			return 0, 0, false
		}
		if !math.IsInf(bounds[ax].Upper, 1) && !clipEdge(d, bounds[ax].Upper-p0[ax], &t0, &t1) {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

// clipEdge narrows [t0, t1] to the part satisfying p*t <= q.
func clipEdge(p, q float64, t0, t1 *float64) bool {
	if p == 0 {
		return q >= 0
	}
	r := q / p
	if p < 0 {
		if r > *t1 {
			return false
		}
		*t0 = max(*t0, r)
	} else {
		if r < *t0 {
			return false
		}
		*t1 = min(*t1, r)
	}
	return true
}

func along(p0, p1 point, t float64) point {
	if t == 1 {
		return p1
	}
	return point{p0[0] + t*(p1[0]-p0[0]), p0[1] + t*(p1[1]-p0[1])}
}
