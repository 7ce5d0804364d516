package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/economic"
	"github.com/smartenit-eu/smartenit-sub001/dtm/internal/testutil"
)

var _ economic.AuditSink = (*Store)(nil)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samples() economic.PeriodSamples {
	return economic.PeriodSamples{
		Links: [2][]economic.TrafficSample{
			{{Seq: 1, Value: 14}, {Seq: 2, Value: 16}},
			{{Seq: 1, Value: 22}, {Seq: 2, Value: 20}},
		},
		Tunnels: [2][]economic.TrafficSample{
			{{Seq: 1, Value: 2}, {Seq: 2, Value: 3}},
			{{Seq: 1, Value: 1}, {Seq: 2, Value: 0}},
		},
	}
}

// TestStore_RecordPeriod_RoundTrip verifies that stored samples come back
// per series in sample order.
func TestStore_RecordPeriod_RoundTrip(t *testing.T) {
	s := openMemory(t)
	key := economic.NewPairKey(testutil.Link1, testutil.Link2)

	require.NoError(t, s.RecordPeriod(key, 1, samples()))

	got, ok, err := s.Samples(key, 1)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(samples(), got); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

// TestStore_Samples_UnknownPeriod verifies the not-found result.
func TestStore_Samples_UnknownPeriod(t *testing.T) {
	s := openMemory(t)
	_, ok, err := s.Samples(economic.NewPairKey(testutil.Link1, testutil.Link2), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestStore_RecordPeriod_DuplicateRollsBack verifies that a second record
// of the same period fails without leaving partial rows behind.
func TestStore_RecordPeriod_DuplicateRollsBack(t *testing.T) {
	s := openMemory(t)
	key := economic.NewPairKey(testutil.Link1, testutil.Link2)
	require.NoError(t, s.RecordPeriod(key, 1, samples()))

	extra := samples()
	extra.Links[0] = append(extra.Links[0], economic.TrafficSample{Seq: 3, Value: 99})
	extra.Links[1] = []economic.TrafficSample{{Seq: 9, Value: 1}, {Seq: 1, Value: 22}}
	require.Error(t, s.RecordPeriod(key, 1, extra))

	got, _, err := s.Samples(key, 1)
	require.NoError(t, err)
	assert.Len(t, got.Links[0], 2)
	assert.Len(t, got.Links[1], 2)
}

// TestStore_Periods_PerSession verifies that sessions are kept apart.
func TestStore_Periods_PerSession(t *testing.T) {
	s := openMemory(t)
	a := economic.NewPairKey(testutil.Link1, testutil.Link2)
	b := economic.NewPairKey(testutil.Link1, dtm.NewLinkID("link3", "isp-c"))
	require.NoError(t, s.RecordPeriod(a, 2, samples()))
	require.NoError(t, s.RecordPeriod(a, 1, samples()))
	require.NoError(t, s.RecordPeriod(b, 5, samples()))

	periods, err := s.Periods(a)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, periods)

	periods, err = s.Periods(b)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, periods)
}

// TestOpen_FileCreatesDirectory verifies that a database file survives a
// reopen.
func TestOpen_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	key := economic.NewPairKey(testutil.Link1, testutil.Link2)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordPeriod(key, 1, samples()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, ok, err := s.Samples(key, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

type discardSink struct{}

func (discardSink) UpdateRVector(context.Context, dtm.ReferenceVector) error { return nil }

func (discardSink) UpdateLinksWithRVectorAchieved(context.Context, uint32, []dtm.LinkID) error {
	return nil
}

// TestStore_AuditsPercentileSession verifies the store behind a
// 95th-percentile economic analyzer session.
func TestStore_AuditsPercentileSession(t *testing.T) {
	// GIVEN a percentile session auditing into the store
	dir := testutil.NewStaticDirectory()
	dir.Control.ChargingRule = dtm.Charging95thPercentile
	store := openMemory(t)
	key := economic.NewPairKey(testutil.Link1, testutil.Link2)
	session, err := economic.NewSession(dir, key, discardSink{}, store)
	require.NoError(t, err)

	// WHEN one accounting period of reports arrives
	for range dir.Schedule.ReportsPerAccountingPeriod() {
		require.NoError(t, session.UpdateXZVectors(context.Background(), testutil.XVector(100, 14, 22),
			[]dtm.ZVector{testutil.ZVector(2, 1)}))
	}

	// THEN its samples are stored as period 1
	got, ok, err := store.Samples(key, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Links[0], dir.Schedule.ReportsPerAccountingPeriod())
	for _, smp := range got.Links[1] {
		assert.Equal(t, int64(22), smp.Value)
	}
}
