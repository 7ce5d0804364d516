package dtm

import (
	"fmt"
	"math"
)

// CalculateCompensation returns, per link of x, trunc(factor*r - x) with
// factor = sum(x)/sum(r). Both vectors must reference the same links, at
// least two of them.
func CalculateCompensation(x, r []LocalValue) ([]LocalValue, error) {
	if len(x) < 2 || len(x) != len(r) {
		return nil, fmt.Errorf("%w: compensation needs equally sized vectors of at least 2 links, got %d and %d",
			ErrInvalidVector, len(x), len(r))
	}
	if !SameLinks(x, r) {
		return nil, ErrMismatchedLinks
	}
	sumR := Sum(r)
	if sumR == 0 {
		return nil, fmt.Errorf("%w: reference vector sums to zero", ErrInvalidVector)
	}
	factor := float64(Sum(x)) / float64(sumR)

	out := make([]LocalValue, 0, len(x))
	for _, xv := range x {
		rv, _ := ValueOf(r, xv.Link)
		out = append(out, LocalValue{
			Link:  xv.Link,
			Value: int64(math.Trunc(factor*float64(rv) - float64(xv.Value))),
		})
	}
	return out, nil
}

// ConstructCompensation computes the compensation of x against r and keys
// each value by the link's tunnel-end prefix.
func ConstructCompensation(links LinkDirectory, x XVector, r ReferenceVector) (CompensationVector, error) {
	values, err := CalculateCompensation(x.Values, r.Values)
	if err != nil {
		return CompensationVector{}, err
	}
	c := CompensationVector{SourceAS: x.SourceAS, Values: make([]PrefixValue, 0, len(values))}
	for _, v := range values {
		link, err := links.Link(v.Link)
		if err != nil {
			return CompensationVector{}, fmt.Errorf("resolving tunnel prefix for %s: %w", v.Link, err)
		}
		c.Values = append(c.Values, PrefixValue{Prefix: link.TunnelEndPrefix, Value: v.Value})
	}
	return c, nil
}
