package economic

import (
	"math"
	"slices"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// DInterval is the closed interval [Lower, Upper]. Upper may be +Inf.
type DInterval struct {
	Lower, Upper float64
}

// Contains reports whether v lies in the interval.
func (d DInterval) Contains(v float64) bool {
	return v >= d.Lower && v <= d.Upper
}

// Area is a candidate search cell: the I1-th interval of axis 1 crossed with
// the I2-th interval of axis 2. Interval i of an axis spans the i-th cost
// segment of that link.
type Area struct {
	I1, I2 int
}

func compareAreas(a, b Area) int {
	if a.I1 != b.I1 {
		return a.I1 - b.I1
	}
	return a.I2 - b.I2
}

// axis is the breakpoint index of one link's cost function. alpha holds the
// segment left borders in ascending order followed by +Inf, so interval i is
// [alpha[i], alpha[i+1]] and is priced by segments[i].
type axis struct {
	alpha    []float64
	segments []dtm.Segment
}

func newAxis(cf dtm.CostFunction) axis {
	a := axis{
		alpha:    make([]float64, 0, len(cf.Segments)+1),
		segments: slices.Clone(cf.Segments),
	}
	for _, s := range cf.Segments {
		a.alpha = append(a.alpha, float64(s.LeftBorder))
	}
	a.alpha = append(a.alpha, math.Inf(1))
	return a
}

func (a axis) intervals() int {
	return len(a.alpha) - 1
}

func (a axis) interval(i int) DInterval {
	return DInterval{Lower: a.alpha[i], Upper: a.alpha[i+1]}
}

// adjacent returns the intervals bordering breakpoint k.
func (a axis) adjacent(k int) []int {
	switch {
	case k == 0:
		return []int{0}
	case k >= a.intervals():
		return []int{a.intervals() - 1}
	default:
		return []int{k - 1, k}
	}
}

// breakpointsWithin returns the indices of the finite breakpoints in [lo, hi].
func (a axis) breakpointsWithin(lo, hi float64) []int {
	start, _ := slices.BinarySearch(a.alpha, lo)
	var out []int
	for k := start; k < a.intervals() && a.alpha[k] <= hi; k++ {
		out = append(out, k)
	}
	return out
}

// intervalsAt returns the intervals holding v: both neighbours when v is an
// interior breakpoint, none when v is negative.
func (a axis) intervalsAt(v float64) []int {
	if v < 0 || math.IsNaN(v) {
		return nil
	}
	if k, found := slices.BinarySearch(a.alpha, v); found {
		return a.adjacent(k)
	}
	return []int{a.intervalContaining(v)}
}

// intervalContaining returns the interval whose segment owns v. Values below
// the first breakpoint map to interval 0.
func (a axis) intervalContaining(v float64) int {
	k, found := slices.BinarySearch(a.alpha, v)
	if !found {
		k--
	}
	return min(max(k, 0), a.intervals()-1)
}
