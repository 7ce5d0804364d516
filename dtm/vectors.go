package dtm

import (
	"fmt"
	"net/netip"
)

// LocalValue is one per-link traffic value, in bytes per period.
type LocalValue struct {
	Link  LinkID `json:"link" yaml:"link"`
	Value int64  `json:"value" yaml:"value"`
}

// XVector is the measured per-link traffic of one reporting period.
type XVector struct {
	SourceAS uint32       `json:"source_as" yaml:"source_as"`
	Values   []LocalValue `json:"values" yaml:"values"`
}

// ZVector is the per-link aggregated tunnel traffic of one reporting period.
type ZVector struct {
	Values []LocalValue `json:"values" yaml:"values"`
}

// ReferenceVector is the cost-minimising per-link target split for one
// accounting period.
type ReferenceVector struct {
	SourceAS uint32       `json:"source_as" yaml:"source_as"`
	Values   []LocalValue `json:"values" yaml:"values"`
}

// PrefixValue is one compensation entry keyed by tunnel-end network prefix.
type PrefixValue struct {
	Prefix netip.Prefix `json:"prefix"`
	Value  int64        `json:"value"`
}

// CompensationVector is the corrective delta sent to remote peers.
type CompensationVector struct {
	SourceAS uint32        `json:"source_as"`
	Values   []PrefixValue `json:"values"`
}

// Validate checks that x carries an AS number and a non-empty list of
// supported link identifiers.
func (x *XVector) Validate() error {
	if x == nil {
		return fmt.Errorf("%w: nil X vector", ErrInvalidVector)
	}
	return validateValues("X", x.SourceAS, x.Values, 0)
}

// Validate checks that r carries an AS number and at least two values.
func (r *ReferenceVector) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil reference vector", ErrInvalidVector)
	}
	return validateValues("reference", r.SourceAS, r.Values, 2)
}

// Validate checks that every link identifier in z is supported.
func (z *ZVector) Validate() error {
	if z == nil {
		return fmt.Errorf("%w: nil Z vector", ErrInvalidVector)
	}
	for _, v := range z.Values {
		if err := v.Link.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateValues(name string, as uint32, values []LocalValue, minLen int) error {
	if as == 0 {
		return fmt.Errorf("%w: %s vector has no AS number", ErrInvalidVector, name)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: %s vector for AS %d has no values", ErrInvalidVector, name, as)
	}
	if len(values) < minLen {
		return fmt.Errorf("%w: %s vector for AS %d has %d values, need at least %d",
			ErrInvalidVector, name, as, len(values), minLen)
	}
	seen := make(map[LinkID]bool, len(values))
	for _, v := range values {
		if err := v.Link.Validate(); err != nil {
			return err
		}
		if seen[v.Link] {
			return fmt.Errorf("%w: %s vector for AS %d lists link %s twice", ErrInvalidVector, name, as, v.Link)
		}
		seen[v.Link] = true
	}
	return nil
}

// Clone returns a deep copy of x.
func (x *XVector) Clone() *XVector {
	if x == nil {
		return nil
	}
	return &XVector{SourceAS: x.SourceAS, Values: cloneValues(x.Values)}
}

// Clone returns a deep copy of r.
func (r *ReferenceVector) Clone() *ReferenceVector {
	if r == nil {
		return nil
	}
	return &ReferenceVector{SourceAS: r.SourceAS, Values: cloneValues(r.Values)}
}

// ValueOf returns the value stored for link.
func ValueOf(values []LocalValue, link LinkID) (int64, bool) {
	for _, v := range values {
		if v.Link == link {
			return v.Value, true
		}
	}
	return 0, false
}

// Sum returns the total of all values.
func Sum(values []LocalValue) int64 {
	var total int64
	for _, v := range values {
		total += v.Value
	}
	return total
}

// SameLinks reports whether a and b reference exactly the same links.
func SameLinks(a, b []LocalValue) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if _, ok := ValueOf(b, v.Link); !ok {
			return false
		}
	}
	return true
}

func cloneValues(values []LocalValue) []LocalValue {
	if values == nil {
		return nil
	}
	out := make([]LocalValue, len(values))
	copy(out, values)
	return out
}
