package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every reference, dispatch and suppression decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// DecisionTrace collects decision records. Records arrive from dispatcher
// workers, so every method is goroutine-safe.
type DecisionTrace struct {
	Config TraceConfig

	mu           sync.Mutex
	references   []ReferenceRecord
	dispatches   []DispatchRecord
	suppressions []SuppressionRecord
	achievements []AchievementRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(config TraceConfig) *DecisionTrace {
	return &DecisionTrace{Config: config}
}

// Enabled reports whether records are kept. Safe on a nil trace.
func (t *DecisionTrace) Enabled() bool {
	return t != nil && t.Config.Level == TraceLevelDecisions
}

// RecordReference appends a reference record.
func (t *DecisionTrace) RecordReference(r ReferenceRecord) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.references = append(t.references, r)
}

// RecordDispatch appends a dispatch record.
func (t *DecisionTrace) RecordDispatch(r DispatchRecord) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatches = append(t.dispatches, r)
}

// RecordSuppression appends a suppression record.
func (t *DecisionTrace) RecordSuppression(r SuppressionRecord) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suppressions = append(t.suppressions, r)
}

// RecordAchievement appends an achievement record.
func (t *DecisionTrace) RecordAchievement(r AchievementRecord) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.achievements = append(t.achievements, r)
}

// References returns a copy of the reference records.
func (t *DecisionTrace) References() []ReferenceRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ReferenceRecord(nil), t.references...)
}

// Dispatches returns a copy of the dispatch records.
func (t *DecisionTrace) Dispatches() []DispatchRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]DispatchRecord(nil), t.dispatches...)
}

// Suppressions returns a copy of the suppression records.
func (t *DecisionTrace) Suppressions() []SuppressionRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SuppressionRecord(nil), t.suppressions...)
}

// Achievements returns a copy of the achievement records.
func (t *DecisionTrace) Achievements() []AchievementRecord {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]AchievementRecord(nil), t.achievements...)
}
