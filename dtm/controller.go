package dtm

import (
	"math/big"
	"sync"
)

// CompensationUpdateController decides whether a freshly computed
// compensation vector is worth sending and keeps the per-AS bookkeeping of
// links whose 95th-percentile reference is already achieved.
//
// One mutex guards all AS numbers.
type CompensationUpdateController struct {
	mu        sync.Mutex
	active    bool
	threshold float64
	every     int

	counter  int
	lastSent map[uint32]CompensationVector
	achieved map[uint32]map[LinkID]bool
	toggles  map[uint32]int
}

// NewCompensationUpdateController creates a controller. An inactive
// controller lets every vector through.
func NewCompensationUpdateController(active bool, threshold float64, every int) *CompensationUpdateController {
	return &CompensationUpdateController{
		active:    active,
		threshold: threshold,
		every:     max(1, every),
		lastSent:  make(map[uint32]CompensationVector),
		achieved:  make(map[uint32]map[LinkID]bool),
		toggles:   make(map[uint32]int),
	}
}

// UpdateRequired reports whether c should be sent. It is true on every
// every-th call, for the first vector of an AS, and when the relative change
// of the first entry exceeds the threshold. c always becomes the last-sent
// snapshot of its AS.
func (uc *CompensationUpdateController) UpdateRequired(c CompensationVector) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	prev, seen := uc.lastSent[c.SourceAS]
	uc.lastSent[c.SourceAS] = clonePrefixValues(c)
	if !uc.active {
		return true
	}
	uc.counter++
	if uc.counter%uc.every == 0 {
		return true
	}
	if !seen {
		return true
	}
	return uc.thresholdExceeded(prev, c)
}

// thresholdExceeded only looks at the first entry of the vector.
func (uc *CompensationUpdateController) thresholdExceeded(prev, next CompensationVector) bool {
	if len(prev.Values) == 0 || len(next.Values) == 0 {
		return true
	}
	p, n := prev.Values[0].Value, next.Values[0].Value
	if p == 0 {
		return n != 0
	}
	change := -(float64(n)/float64(p) - 1)
	return change > uc.threshold
}

// UpdateAchievedLinks merges links into the achieved set of as and returns
// the ones that were not achieved before.
func (uc *CompensationUpdateController) UpdateAchievedLinks(as uint32, links []LinkID) []LinkID {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	set, ok := uc.achieved[as]
	if !ok {
		set = make(map[LinkID]bool)
		uc.achieved[as] = set
	}
	var added []LinkID
	for _, l := range links {
		if !set[l] {
			set[l] = true
			added = append(added, l)
		}
	}
	return added
}

// AchievedLinks returns the achieved set of as.
func (uc *CompensationUpdateController) AchievedLinks(as uint32) map[LinkID]bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	out := make(map[LinkID]bool, len(uc.achieved[as]))
	for l := range uc.achieved[as] {
		out[l] = true
	}
	return out
}

// PrepareCVector returns the reference vector to compensate against. When
// some but not all links of as are achieved, successive calls alternate
// between placing the whole budget of r on the links still to achieve and
// placing it on the achieved ones, split in proportion to r. Otherwise r is
// returned unchanged.
func (uc *CompensationUpdateController) PrepareCVector(as uint32, r ReferenceVector) ReferenceVector {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	set := uc.achieved[as]
	if len(set) == 0 {
		return *r.Clone()
	}
	var achievedSum, pendingSum int64
	for _, v := range r.Values {
		if set[v.Link] {
			achievedSum += v.Value
		} else {
			pendingSum += v.Value
		}
	}
	if achievedSum == 0 || pendingSum == 0 {
		return *r.Clone()
	}

	onAchieved := uc.toggles[as]%2 == 1
	uc.toggles[as]++

	budget := achievedSum + pendingSum
	share := pendingSum
	if onAchieved {
		share = achievedSum
	}
	out := ReferenceVector{SourceAS: r.SourceAS, Values: make([]LocalValue, 0, len(r.Values))}
	for _, v := range r.Values {
		var value int64
		if set[v.Link] == onAchieved {
			value = scale(v.Value, budget, share)
		}
		out.Values = append(out.Values, LocalValue{Link: v.Link, Value: value})
	}
	return out
}

// Reset clears counters, snapshots and achieved sets at an accounting-period
// boundary.
func (uc *CompensationUpdateController) Reset() {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.counter = 0
	uc.lastSent = make(map[uint32]CompensationVector)
	uc.achieved = make(map[uint32]map[LinkID]bool)
	uc.toggles = make(map[uint32]int)
}

// scale returns v*num/den truncated, without overflowing the product.
func scale(v, num, den int64) int64 {
	p := new(big.Int).Mul(big.NewInt(v), big.NewInt(num))
	return p.Quo(p, big.NewInt(den)).Int64()
}

func clonePrefixValues(c CompensationVector) CompensationVector {
	out := CompensationVector{SourceAS: c.SourceAS, Values: make([]PrefixValue, len(c.Values))}
	copy(out.Values, c.Values)
	return out
}
