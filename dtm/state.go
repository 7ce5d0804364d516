package dtm

import "sync"

// XRVectorPair is the per-AS pair of accumulated X and current R.
type XRVectorPair struct {
	X *XVector
	R *ReferenceVector
}

// Ready reports whether both vectors are set.
func (p XRVectorPair) Ready() bool {
	return p.X != nil && p.R != nil
}

func (p *XRVectorPair) clone() XRVectorPair {
	return XRVectorPair{X: p.X.Clone(), R: p.R.Clone()}
}

// VectorStateContainer stores one XRVectorPair per AS. Every read-modify-write
// runs under a single mutex, and every returned pair is a deep copy.
type VectorStateContainer struct {
	mu    sync.Mutex
	pairs map[uint32]*XRVectorPair
}

// NewVectorStateContainer returns an empty container.
func NewVectorStateContainer() *VectorStateContainer {
	return &VectorStateContainer{pairs: make(map[uint32]*XRVectorPair)}
}

// AccumulateX adds x onto the stored X of x.SourceAS elementwise by link,
// creating the entry if absent, and returns the resulting pair.
func (c *VectorStateContainer) AccumulateX(x XVector) XRVectorPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, ok := c.pairs[x.SourceAS]
	if !ok {
		pair = &XRVectorPair{}
		c.pairs[x.SourceAS] = pair
	}
	if pair.X == nil {
		pair.X = x.Clone()
		return pair.clone()
	}
	for _, v := range x.Values {
		found := false
		for i := range pair.X.Values {
			if pair.X.Values[i].Link == v.Link {
				pair.X.Values[i].Value += v.Value
				found = true
				break
			}
		}
		if !found {
			pair.X.Values = append(pair.X.Values, v)
		}
	}
	return pair.clone()
}

// ResetX zeroes the stored X values of as in place. No-op if absent.
func (c *VectorStateContainer) ResetX(as uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, ok := c.pairs[as]
	if !ok || pair.X == nil {
		return
	}
	for i := range pair.X.Values {
		pair.X.Values[i].Value = 0
	}
}

// StoreR creates or replaces the reference vector of r.SourceAS and returns
// the resulting pair.
func (c *VectorStateContainer) StoreR(r ReferenceVector) XRVectorPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, ok := c.pairs[r.SourceAS]
	if !ok {
		pair = &XRVectorPair{}
		c.pairs[r.SourceAS] = pair
	}
	pair.R = r.Clone()
	return pair.clone()
}

// Pair returns the current, possibly partial, pair of as.
func (c *VectorStateContainer) Pair(as uint32) (XRVectorPair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pair, ok := c.pairs[as]
	if !ok {
		return XRVectorPair{}, false
	}
	return pair.clone(), true
}
