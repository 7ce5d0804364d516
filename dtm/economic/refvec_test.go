package economic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartenit-eu/smartenit-sub001/dtm"
	"github.com/smartenit-eu/smartenit-sub001/dtm/internal/testutil"
)

func newScenarioCalculator(t *testing.T) *ReferenceVectorCalculator {
	t.Helper()
	c, err := NewReferenceVectorCalculator(testutil.Link1, testutil.Link2,
		testutil.CostFunction(testutil.Link1), testutil.CostFunction(testutil.Link2), 1, 1)
	require.NoError(t, err)
	return c
}

// TestCalculate_Scenarios checks the reference vectors of known inputs.
func TestCalculate_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		x, z [2]int64
		want [2]int64
	}{
		// Only (0,1) intersects the tradeoff segment; link 2 is pushed down to 21.
		{name: "small tunnel budget", x: [2]int64{14, 22}, z: [2]int64{2, 1}, want: [2]int64{15, 21}},
		// Both links fit below the first breakpoint at flat cost.
		{name: "larger tunnel budget", x: [2]int64{14, 22}, z: [2]int64{3, 4}, want: [2]int64{18, 18}},
		// No breakpoint in reach: the area holding X is searched; equal cost keeps end2.
		{name: "no breakpoint in reach", x: [2]int64{50, 60}, z: [2]int64{1, 1}, want: [2]int64{51, 59}},
		{name: "no tunnel traffic", x: [2]int64{14, 22}, z: [2]int64{0, 0}, want: [2]int64{14, 22}},
	}
	c := newScenarioCalculator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Calculate(tt.x, tt.z, 100)
			assert.Equal(t, testutil.ReferenceVector(100, tt.want[0], tt.want[1]), r)
		})
	}
}

// TestCalculate_IsPure verifies identical inputs give identical outputs.
func TestCalculate_IsPure(t *testing.T) {
	c := newScenarioCalculator(t)
	first := c.Calculate([2]int64{14, 22}, [2]int64{3, 4}, 7)
	for range 10 {
		assert.Equal(t, first, c.Calculate([2]int64{14, 22}, [2]int64{3, 4}, 7))
	}
	// Interleaving other inputs does not change the answer.
	c.Calculate([2]int64{500, 1}, [2]int64{40, 40}, 7)
	assert.Equal(t, first, c.Calculate([2]int64{14, 22}, [2]int64{3, 4}, 7))
}

// TestCalculate_PrefersCheaperLink moves tunnel traffic onto the cheaper link.
func TestCalculate_PrefersCheaperLink(t *testing.T) {
	expensive := dtm.CostFunction{Link: testutil.Link1, Segments: []dtm.Segment{{LeftBorder: 0, RightBorder: dtm.InfiniteBorder, A: 10}}}
	cheap := dtm.CostFunction{Link: testutil.Link2, Segments: []dtm.Segment{{LeftBorder: 0, RightBorder: dtm.InfiniteBorder, A: 1}}}
	c, err := NewReferenceVectorCalculator(testutil.Link1, testutil.Link2, expensive, cheap, 1, 1)
	require.NoError(t, err)

	r := c.Calculate([2]int64{50, 50}, [2]int64{10, 10}, 1)
	assert.Equal(t, testutil.ReferenceVector(1, 40, 60), r)
}

// TestCalculate_ToleranceLimitsShift verifies only tol·Z may move.
func TestCalculate_ToleranceLimitsShift(t *testing.T) {
	expensive := dtm.CostFunction{Link: testutil.Link1, Segments: []dtm.Segment{{LeftBorder: 0, RightBorder: dtm.InfiniteBorder, A: 10}}}
	cheap := dtm.CostFunction{Link: testutil.Link2, Segments: []dtm.Segment{{LeftBorder: 0, RightBorder: dtm.InfiniteBorder, A: 1}}}
	c, err := NewReferenceVectorCalculator(testutil.Link1, testutil.Link2, expensive, cheap, 0.5, 0.5)
	require.NoError(t, err)

	r := c.Calculate([2]int64{50, 50}, [2]int64{10, 10}, 1)
	assert.Equal(t, testutil.ReferenceVector(1, 45, 55), r)
}

// TestCandidateAreas_DeduplicatedAndOrdered checks the search cells of the larger-budget scenario.
func TestCandidateAreas_DeduplicatedAndOrdered(t *testing.T) {
	c := newScenarioCalculator(t)
	assert.Equal(t, []Area{{0, 0}, {0, 1}, {1, 0}}, c.candidateAreas(point{14, 22}, 7))
	assert.Equal(t, []Area{{0, 0}, {0, 1}}, c.candidateAreas(point{14, 22}, 3))
	assert.Equal(t, []Area{{1, 1}}, c.candidateAreas(point{50, 60}, 2), "fallback to the area holding X")
}

// TestClip covers inside, partial and disjoint segments.
func TestClip(t *testing.T) {
	c := newScenarioCalculator(t)
	end1, end2 := point{11, 25}, point{18, 18}

	t0, t1, ok := c.clip(end1, end2, Area{0, 0})
	require.True(t, ok)
	testutil.AssertFloat64Equal(t, "t0", 5.0/7, t0, 1e-12)
	testutil.AssertFloat64Equal(t, "t1", 1, t1, 1e-12)

	_, _, ok = c.clip(end1, end2, Area{1, 0})
	assert.False(t, ok)

	t0, t1, ok = c.clip(point{30, 30}, point{40, 20}, Area{1, 1})
	require.True(t, ok)
	assert.Equal(t, 0.0, t0)
	assert.Equal(t, 1.0, t1)
}

// TestNewReferenceVectorCalculator_Rejects invalid configuration.
func TestNewReferenceVectorCalculator_Rejects(t *testing.T) {
	good := testutil.CostFunction(testutil.Link1)
	bad := dtm.CostFunction{Link: testutil.Link2}

	_, err := NewReferenceVectorCalculator(testutil.Link1, testutil.Link2, good, bad, 1, 1)
	assert.Error(t, err)
	_, err = NewReferenceVectorCalculator(testutil.Link1, testutil.Link2, good, good, -1, 1)
	assert.Error(t, err)
}
