package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	References      int
	Dispatches      int
	Suppressed      int
	PeerDeliveries  int
	PeerFailures    int
	SuppressionRate float64
	PerAS           map[uint32]int // source AS → dispatched compensation vectors
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(t *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{PerAS: make(map[uint32]int)}
	if t == nil {
		return summary
	}

	summary.References = len(t.References())
	dispatches := t.Dispatches()
	summary.Dispatches = len(dispatches)
	summary.Suppressed = len(t.Suppressions())
	for _, d := range dispatches {
		summary.PerAS[d.SourceAS]++
		summary.PeerDeliveries += d.Peers - d.Failed
		summary.PeerFailures += d.Failed
	}
	if total := summary.Dispatches + summary.Suppressed; total > 0 {
		summary.SuppressionRate = float64(summary.Suppressed) / float64(total)
	}
	return summary
}
