// Package trace provides decision-trace recording for the DTM control loop.
// It stores plain data types and does not import dtm.
package trace

// ReferenceRecord captures a reference vector accepted for an AS.
type ReferenceRecord struct {
	SourceAS uint32
	Values   map[string]int64 // link → target volume
	Source   string           // "economic-analyzer" or "bootstrap"
}

// DispatchRecord captures one compensation vector handed to the peers of an AS.
type DispatchRecord struct {
	SourceAS      uint32
	Values        map[string]int64 // tunnel-end prefix → delta
	WithReference bool
	Peers         int
	Failed        int
}

// SuppressionRecord captures a compensation vector withheld by the update controller.
type SuppressionRecord struct {
	SourceAS uint32
	Values   map[string]int64
}

// AchievementRecord captures links reported as having achieved their reference.
type AchievementRecord struct {
	SourceAS uint32
	Links    []string
	Newly    []string
}
