package economic

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/internal/testutil"
)

// TestRegistry_CreatesOnce caches one session per unordered pair.
func TestRegistry_CreatesOnce(t *testing.T) {
	dir := testutil.NewStaticDirectory()
	r := NewRegistry(dir, &recordingSink{}, nil)

	a, err := r.Session(testutil.Link1, testutil.Link2)
	require.NoError(t, err)
	b, err := r.Session(testutil.Link2, testutil.Link1)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, dir.Lookups(), "cost functions are loaded once per session")
}

// TestRegistry_ConcurrentFirstUse creates a single session under contention.
func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	r := NewRegistry(testutil.NewStaticDirectory(), &recordingSink{}, nil)

	sessions := make([]*Session, 16)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Session(testutil.Link1, testutil.Link2)
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
}

// TestRegistry_UpdateXZVectors routes reports and validates at the boundary.
func TestRegistry_UpdateXZVectors(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(testutil.NewStaticDirectory(), sink, nil)
	ctx := context.Background()

	for range 4 {
		require.NoError(t, r.UpdateXZVectors(ctx, testutil.XVector(100, 10, 10), nil))
	}
	require.Len(t, sink.references, 1)

	unsupported := dtm.XVector{SourceAS: 100, Values: []dtm.LocalValue{
		{Link: dtm.LinkID{Kind: "ifindex", LocalName: "1", ISPName: "x"}},
		{Link: testutil.Link2},
	}}
	assert.ErrorIs(t, r.UpdateXZVectors(ctx, unsupported, nil), dtm.ErrUnsupportedLinkID)

	three := dtm.XVector{SourceAS: 100, Values: []dtm.LocalValue{
		{Link: testutil.Link1}, {Link: testutil.Link2}, {Link: dtm.NewLinkID("link3", "isp-c")},
	}}
	assert.ErrorIs(t, r.UpdateXZVectors(ctx, three, nil), dtm.ErrInvalidVector)
	assert.Equal(t, 1, r.Len())
}

// TestRegistry_SeedReference creates the session of the bootstrap links.
func TestRegistry_SeedReference(t *testing.T) {
	r := NewRegistry(testutil.NewStaticDirectory(), &recordingSink{}, nil)

	require.NoError(t, r.SeedReference(testutil.ReferenceVector(100, 15, 21)))
	assert.Equal(t, 1, r.Len())

	three := dtm.ReferenceVector{SourceAS: 100, Values: append(testutil.ReferenceVector(100, 1, 2).Values,
		dtm.LocalValue{Link: dtm.NewLinkID("link3", "isp-c"), Value: 3})}
	assert.ErrorIs(t, r.SeedReference(three), dtm.ErrInvalidVector)
}

// TestRegistry_FailedCreationIsNotCached retries after a directory error.
func TestRegistry_FailedCreationIsNotCached(t *testing.T) {
	dir := testutil.NewStaticDirectory()
	missing := dtm.NewLinkID("link3", "isp-c")
	r := NewRegistry(dir, &recordingSink{}, nil)

	_, err := r.Session(testutil.Link1, missing)
	assert.ErrorIs(t, err, dtm.ErrNotFound)
	assert.Equal(t, 0, r.Len())

	_, err = r.Session(testutil.Link1, testutil.Link1)
	assert.ErrorIs(t, err, dtm.ErrInvalidVector)
}
