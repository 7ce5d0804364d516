package economic

import (
	"context"
	"fmt"
	"sync"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
)

// Registry holds one Session per link pair. Sessions are created on first
// use and never evicted.
type Registry struct {
	dir   dtm.Directory
	sink  ReferenceSink
	audit AuditSink

	mu       sync.Mutex
	sessions map[PairKey]*Session
}

// NewRegistry creates an empty registry. audit may be nil.
func NewRegistry(dir dtm.Directory, sink ReferenceSink, audit AuditSink) *Registry {
	return &Registry{
		dir:      dir,
		sink:     sink,
		audit:    audit,
		sessions: make(map[PairKey]*Session),
	}
}

// Session returns the session of l1 and l2, creating it if needed.
func (r *Registry) Session(l1, l2 dtm.LinkID) (*Session, error) {
	for _, l := range []dtm.LinkID{l1, l2} {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	if l1 == l2 {
		return nil, fmt.Errorf("%w: session needs two distinct links, got %s twice", dtm.ErrInvalidVector, l1)
	}
	key := NewPairKey(l1, l2)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	s, err := NewSession(r.dir, key, r.sink, r.audit)
	if err != nil {
		return nil, err
	}
	r.sessions[key] = s
	return s, nil
}

// UpdateXZVectors routes a report to the session of the two links in x.
func (r *Registry) UpdateXZVectors(ctx context.Context, x dtm.XVector, zs []dtm.ZVector) error {
	if err := x.Validate(); err != nil {
		return err
	}
	if len(x.Values) != 2 {
		return fmt.Errorf("%w: economic analyzer reports carry exactly 2 links, got %d", dtm.ErrInvalidVector, len(x.Values))
	}
	s, err := r.Session(x.Values[0].Link, x.Values[1].Link)
	if err != nil {
		return err
	}
	return s.UpdateXZVectors(ctx, x, zs)
}

// SeedReference hands a bootstrap reference vector to the session of its
// two links.
func (r *Registry) SeedReference(rv dtm.ReferenceVector) error {
	if err := rv.Validate(); err != nil {
		return err
	}
	if len(rv.Values) != 2 {
		return fmt.Errorf("%w: economic analyzer references carry exactly 2 links, got %d", dtm.ErrInvalidVector, len(rv.Values))
	}
	s, err := r.Session(rv.Values[0].Link, rv.Values[1].Link)
	if err != nil {
		return err
	}
	return s.SeedReference(rv)
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
