package dtm_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/internal/testutil"
	"github.com/smartenit-eu/smartenit-sub001/dtm/trace"
)

// TestTrafficManager_ReferenceThenReports dispatches compensation on every
// ready X report and withholds small changes.
func TestTrafficManager_ReferenceThenReports(t *testing.T) {
	// GIVEN a ready AS with the update controller active
	dir := testutil.NewStaticDirectory()
	dir.Control.SuppressUpdates = true
	f := newManagerFixture(t, dir, nil)
	ctx := context.Background()
	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1500, 2100)))

	// WHEN two X reports arrive
	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 500, 800)))
	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 500, 800)))
	f.drain(t)

	// THEN the first compensation is sent without R and the second is
	// suppressed because the first entry grew
	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]int64{"10.1.0.0/16": 41, "10.2.0.0/16": -41}, prefixValues(sent[0].C))
	assert.Nil(t, sent[0].R)
	assert.Equal(t, dtm.PeerAddress{Host: "198.51.100.10", Port: 9000}, sent[0].Addr)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.CompensationDispatched))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.CompensationSuppressed))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ReferenceVectors))

	pair, ok := f.tm.Pair(100)
	require.True(t, ok)
	assert.Equal(t, int64(2600), dtm.Sum(pair.X.Values))
}

// TestTrafficManager_ReferenceOnReadyAS resets X and always sends C with R.
func TestTrafficManager_ReferenceOnReadyAS(t *testing.T) {
	dir := testutil.NewStaticDirectory()
	dir.Control.SuppressUpdates = true
	f := newManagerFixture(t, dir, nil)
	ctx := context.Background()

	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1500, 2100)))
	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 500, 800)))
	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1000, 1000)))
	f.drain(t)

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	require.NotNil(t, sent[1].R)
	assert.Equal(t, testutil.ReferenceVector(100, 1000, 1000), *sent[1].R)
	assert.Equal(t, map[string]int64{"10.1.0.0/16": 0, "10.2.0.0/16": 0}, prefixValues(sent[1].C),
		"X was reset at the accounting-period boundary")

	pair, _ := f.tm.Pair(100)
	assert.Equal(t, int64(0), dtm.Sum(pair.X.Values))
}

// TestTrafficManager_XBeforeReference keeps the AS in X-only state.
func TestTrafficManager_XBeforeReference(t *testing.T) {
	f := newManagerFixture(t, testutil.NewStaticDirectory(), nil)

	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 5, 5)))
	f.drain(t)

	assert.Empty(t, f.sender.Sent())
	pair, ok := f.tm.Pair(100)
	require.True(t, ok)
	assert.False(t, pair.Ready())
}

// TestTrafficManager_ValidateThenMutate rejects bad input without touching state.
func TestTrafficManager_ValidateThenMutate(t *testing.T) {
	f := newManagerFixture(t, testutil.NewStaticDirectory(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.tm.UpdateXVector(testutil.XVector(0, 1, 1)), dtm.ErrInvalidVector)
	assert.ErrorIs(t, f.tm.UpdateXVector(dtm.XVector{SourceAS: 100}), dtm.ErrInvalidVector)
	assert.ErrorIs(t, f.tm.UpdateRVector(ctx, dtm.ReferenceVector{SourceAS: 100, Values: []dtm.LocalValue{{Link: testutil.Link1, Value: 1}}}),
		dtm.ErrInvalidVector)
	bad := dtm.LinkID{Kind: "ifindex", LocalName: "7", ISPName: "isp"}
	assert.ErrorIs(t, f.tm.UpdateXVector(dtm.XVector{SourceAS: 100, Values: []dtm.LocalValue{{Link: bad}}}), dtm.ErrUnsupportedLinkID)
	assert.ErrorIs(t, f.tm.UpdateLinksWithRVectorAchieved(ctx, 0, nil), dtm.ErrInvalidVector)
	assert.ErrorIs(t, f.tm.UpdateLinksWithRVectorAchieved(ctx, 100, []dtm.LinkID{bad}), dtm.ErrUnsupportedLinkID)

	_, ok := f.tm.Pair(100)
	assert.False(t, ok)
	assert.Empty(t, f.tm.Controller().AchievedLinks(100))
	assert.Equal(t, 0.0, promtest.ToFloat64(f.metrics.ReferenceVectors))
}

// TestTrafficManager_MismatchedLinksRejected keeps the stored vectors when a
// new one covers other links.
func TestTrafficManager_MismatchedLinksRejected(t *testing.T) {
	other := dtm.NewLinkID("link9", "isp-c")
	ctx := context.Background()

	t.Run("x against stored reference", func(t *testing.T) {
		f := newManagerFixture(t, testutil.NewStaticDirectory(), nil)
		require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1500, 2100)))

		// WHEN an X report names a link outside the reference
		x := dtm.XVector{SourceAS: 100, Values: []dtm.LocalValue{{Link: testutil.Link1, Value: 10}, {Link: other, Value: 20}}}
		err := f.tm.UpdateXVector(x)
		f.drain(t)

		// THEN it is rejected and nothing is stored or sent
		assert.ErrorIs(t, err, dtm.ErrMismatchedLinks)
		pair, ok := f.tm.Pair(100)
		require.True(t, ok)
		assert.Nil(t, pair.X)
		assert.Empty(t, f.sender.Sent())
	})

	t.Run("reference against stored x", func(t *testing.T) {
		f := newManagerFixture(t, testutil.NewStaticDirectory(), nil)
		require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 300, 400)))

		// WHEN a reference names a link outside the stored X
		r := dtm.ReferenceVector{SourceAS: 100, Values: []dtm.LocalValue{{Link: testutil.Link1, Value: 1}, {Link: other, Value: 2}}}
		err := f.tm.UpdateRVector(ctx, r)
		f.drain(t)

		// THEN the stored X is kept and no reference is installed
		assert.ErrorIs(t, err, dtm.ErrMismatchedLinks)
		pair, ok := f.tm.Pair(100)
		require.True(t, ok)
		assert.Nil(t, pair.R)
		require.NotNil(t, pair.X)
		assert.Equal(t, testutil.XVector(100, 300, 400).Values, pair.X.Values)
		assert.Equal(t, 0.0, promtest.ToFloat64(f.metrics.ReferenceVectors))
	})
}

// TestTrafficManager_PercentileResetTiming verifies where the stored X is
// zeroed within a 2-report sampling window.
func TestTrafficManager_PercentileResetTiming(t *testing.T) {
	tests := []struct {
		name        string
		resetBefore bool
		wantAfter   []int64 // sum of stored X after each report
	}{
		{name: "reset after the last report of a window", resetBefore: false, wantAfter: []int64{20, 0, 20, 0}},
		{name: "reset before the first report of a window", resetBefore: true, wantAfter: []int64{20, 40, 20, 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.NewStaticDirectory()
			dir.Control.ChargingRule = dtm.Charging95thPercentile
			dir.Control.ResetXBeforeAccumulate = tt.resetBefore
			f := newManagerFixture(t, dir, nil)
			require.NoError(t, f.tm.UpdateRVector(context.Background(), testutil.ReferenceVector(100, 1500, 2100)))

			for i, want := range tt.wantAfter {
				require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 10, 10)))
				pair, _ := f.tm.Pair(100)
				assert.Equal(t, want, dtm.Sum(pair.X.Values), "after report %d", i+1)
			}
			f.drain(t)
			assert.Len(t, f.sender.Sent(), len(tt.wantAfter), "every ready report dispatches")
		})
	}
}

// TestTrafficManager_PercentileUsesAlternatingReference verifies that with
// one link achieved the dispatched compensation targets the whole budget
// at the pending link.
func TestTrafficManager_PercentileUsesAlternatingReference(t *testing.T) {
	dir := testutil.NewStaticDirectory()
	dir.Control.ChargingRule = dtm.Charging95thPercentile
	f := newManagerFixture(t, dir, nil)
	ctx := context.Background()

	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1500, 2100)))
	require.NoError(t, f.tm.UpdateLinksWithRVectorAchieved(ctx, 100, []dtm.LinkID{testutil.Link1}))
	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 900, 900)))
	f.drain(t)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	// factor = 1800/3600; link 1 target 0, link 2 target 3600
	assert.Equal(t, map[string]int64{"10.1.0.0/16": -900, "10.2.0.0/16": 900}, prefixValues(sent[0].C))
}

// TestTrafficManager_PeerFailureIsNotPropagated logs and counts failed sends.
func TestTrafficManager_PeerFailureIsNotPropagated(t *testing.T) {
	decisions := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	f := newManagerFixture(t, testutil.NewStaticDirectory(), nil, dtm.WithTrace(decisions))
	f.sender.err = errors.New("connection refused")
	ctx := context.Background()

	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1500, 2100)))
	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(100, 500, 800)))
	f.drain(t)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.PeerSendFailures))
	assert.Equal(t, 0.0, promtest.ToFloat64(f.metrics.TaskFailures))

	summary := trace.Summarize(decisions)
	assert.Equal(t, 1, summary.References)
	assert.Equal(t, 1, summary.Dispatches)
	assert.Equal(t, 1, summary.PeerFailures)
	assert.Equal(t, 0, summary.PeerDeliveries)
}

// TestTrafficManager_MissingPeersFailsTask aborts only the dispatch task.
func TestTrafficManager_MissingPeersFailsTask(t *testing.T) {
	f := newManagerFixture(t, testutil.NewStaticDirectory(), nil)
	ctx := context.Background()

	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(200, 1500, 2100)))
	require.NoError(t, f.tm.UpdateXVector(testutil.XVector(200, 500, 800)))
	f.drain(t)

	assert.Empty(t, f.sender.Sent())
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TaskFailures))
}

// TestTrafficManager_DelayTolerant drives policers and filters through an
// accounting period.
func TestTrafficManager_DelayTolerant(t *testing.T) {
	dir := testutil.NewStaticDirectory()
	dir.Control.ChargingRule = dtm.Charging95thPercentile
	dir.Control.DelayTolerant = true
	links := testutil.Links()

	device := &mockDevice{}
	device.On("ApplyPolicer", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	device.On("SetFilter", links[0].Router, links[0].PhysicalInterface, false).Return(nil).Once()
	device.On("SetFilter", links[0].Router, links[0].PhysicalInterface, true).Return(nil).Once()

	f := newManagerFixture(t, dir, device)
	ctx := context.Background()

	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1500, 2100)))
	require.NoError(t, f.tm.UpdateLinksWithRVectorAchieved(ctx, 100, []dtm.LinkID{testutil.Link1}))
	require.NoError(t, f.tm.UpdateLinksWithRVectorAchieved(ctx, 100, []dtm.LinkID{testutil.Link1}))
	assert.Equal(t, []dtm.LinkID{testutil.Link1}, f.tm.Policy().Deactivated())

	require.NoError(t, f.tm.UpdateRVector(ctx, testutil.ReferenceVector(100, 1800, 1800)))
	assert.Empty(t, f.tm.Policy().Deactivated())
	assert.Empty(t, f.tm.Controller().AchievedLinks(100))

	device.AssertNumberOfCalls(t, "ApplyPolicer", 4)
	device.AssertExpectations(t)
}

// TestNewTrafficManager_DelayTolerantNeedsDevice rejects a missing configurator.
func TestNewTrafficManager_DelayTolerantNeedsDevice(t *testing.T) {
	dir := testutil.NewStaticDirectory()
	dir.Control.DelayTolerant = true
	d := dtm.NewDispatcher(1, 1, 0, nil)

	_, err := dtm.NewTrafficManager(dir, &recordingSender{}, nil, d)
	assert.Error(t, err)
}

// TestTrafficManager_Bootstrap pre-seeds an AS from a file.
func TestTrafficManager_Bootstrap(t *testing.T) {
	decisions := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	f := newManagerFixture(t, testutil.NewStaticDirectory(), nil, dtm.WithTrace(decisions))

	path := filepath.Join(t.TempDir(), "rvector.yaml")
	content := `source_as: 100
values:
  - link: {local_name: link1, isp_name: isp-a}
    value: 1500
  - link: {local_name: link2, isp_name: isp-b}
    value: 2100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, f.tm.Bootstrap(context.Background(), path))

	pair, ok := f.tm.Pair(100)
	require.True(t, ok)
	require.NotNil(t, pair.R)
	assert.Equal(t, testutil.ReferenceVector(100, 1500, 2100), *pair.R)

	refs := decisions.References()
	require.Len(t, refs, 1)
	assert.Equal(t, "bootstrap", refs[0].Source)
}

// TestLoadReferenceVector_Rejects covers malformed bootstrap files.
func TestLoadReferenceVector_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: "source_as: 1\nvalues: []\nextra: true\n"},
		{name: "too few values", content: "source_as: 1\nvalues:\n  - link: {local_name: a, isp_name: b}\n    value: 1\n"},
		{name: "missing AS", content: "values:\n  - link: {local_name: a, isp_name: b}\n  - link: {local_name: c, isp_name: d}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "r.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := dtm.LoadReferenceVector(path)
			assert.Error(t, err)
		})
	}

	_, err := dtm.LoadReferenceVector(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
