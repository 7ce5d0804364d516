package dtm

import (
	"fmt"
	"math"
)

// InfiniteBorder is the RightBorder sentinel of the last segment.
const InfiniteBorder int64 = math.MaxInt64

// Segment is one linear piece of a cost function, valid for
// LeftBorder <= x < RightBorder. A is the per-unit rate and B the fixed
// offset: cost(x) = A*x + B.
type Segment struct {
	LeftBorder  int64   `json:"left_border" yaml:"left_border"`
	RightBorder int64   `json:"right_border" yaml:"right_border"`
	A           float64 `json:"a" yaml:"a"`
	B           float64 `json:"b" yaml:"b"`
}

// Cost evaluates the segment's linear cost at x.
func (s Segment) Cost(x float64) float64 {
	return s.A*x + s.B
}

// Contains reports whether x falls in [LeftBorder, RightBorder).
func (s Segment) Contains(x float64) bool {
	if x < float64(s.LeftBorder) {
		return false
	}
	return s.RightBorder == InfiniteBorder || x < float64(s.RightBorder)
}

// CostFunction is the piecewise-linear charging function of one link.
type CostFunction struct {
	Link     LinkID    `json:"link" yaml:"link"`
	Segments []Segment `json:"segments" yaml:"segments"`
}

// Validate checks that the segments are contiguous, start at 0 and end with
// the infinite sentinel.
func (cf CostFunction) Validate() error {
	if len(cf.Segments) == 0 {
		return fmt.Errorf("cost function for %s has no segments", cf.Link)
	}
	if cf.Segments[0].LeftBorder != 0 {
		return fmt.Errorf("cost function for %s must start at 0, starts at %d", cf.Link, cf.Segments[0].LeftBorder)
	}
	for i, s := range cf.Segments {
		if s.RightBorder <= s.LeftBorder {
			return fmt.Errorf("cost function for %s: segment[%d] is empty [%d, %d)", cf.Link, i, s.LeftBorder, s.RightBorder)
		}
		if i > 0 && cf.Segments[i-1].RightBorder != s.LeftBorder {
			return fmt.Errorf("cost function for %s: segment[%d] starts at %d, previous ends at %d",
				cf.Link, i, s.LeftBorder, cf.Segments[i-1].RightBorder)
		}
		if math.IsNaN(s.A) || math.IsInf(s.A, 0) || math.IsNaN(s.B) || math.IsInf(s.B, 0) {
			return fmt.Errorf("cost function for %s: segment[%d] has non-finite coefficients", cf.Link, i)
		}
	}
	if last := cf.Segments[len(cf.Segments)-1]; last.RightBorder != InfiniteBorder {
		return fmt.Errorf("cost function for %s must be open-ended, last segment ends at %d", cf.Link, last.RightBorder)
	}
	return nil
}

// SegmentAt returns the segment owning x.
func (cf CostFunction) SegmentAt(x float64) (Segment, bool) {
	for _, s := range cf.Segments {
		if s.Contains(x) {
			return s, true
		}
	}
	return Segment{}, false
}
