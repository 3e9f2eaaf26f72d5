package phymuti

import "sync/atomic"

// Metrics tracks operational counters across the five registries of a
// System. All fields are safe for concurrent use.
type Metrics struct {
	// Memory access counters.
	ReadAccesses  atomic.Uint64
	WriteAccesses atomic.Uint64
	ExecAccesses  atomic.Uint64

	// Error counters by offending check.
	OutOfRangeErrors atomic.Uint64
	PermissionErrors atomic.Uint64
	alignmentErrors  atomic.Uint64

	// Monitor counters.
	WatchpointFires  atomic.Uint64
	WatchpointsAdded atomic.Uint64

	// Action counters.
	ActionExecutions atomic.Uint64
	ActionFailures   atomic.Uint64

	// Rule engine counters.
	RuleEvaluations atomic.Uint64
	RuleFires       atomic.Uint64
}

// NewMetrics creates a zeroed Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordAccess records a completed memory access of kind.
func (m *Metrics) RecordAccess(kind AccessKind) {
	switch kind {
	case AccessRead:
		m.ReadAccesses.Add(1)
	case AccessWrite:
		m.WriteAccesses.Add(1)
	case AccessExec:
		m.ExecAccesses.Add(1)
	}
}

// RecordAccessError records a rejected access by which check failed.
func (m *Metrics) RecordAccessError(code ErrorCode) {
	switch code {
	case ErrCodeMemoryAlignment:
		m.alignmentErrors.Add(1)
	case ErrCodeMemoryOutOfRange:
		m.OutOfRangeErrors.Add(1)
	case ErrCodeMemoryPermission:
		m.PermissionErrors.Add(1)
	}
}

// RecordWatchpointFire records one bound action firing from a
// watchpoint match.
func (m *Metrics) RecordWatchpointFire() {
	m.WatchpointFires.Add(1)
}

// RecordAction records one action execution, successful or not.
func (m *Metrics) RecordAction(success bool) {
	m.ActionExecutions.Add(1)
	if !success {
		m.ActionFailures.Add(1)
	}
}

// RecordRuleEvaluation records one predicate run by RuleEngine.Evaluate
// and whether the predicate returned true. Evaluate calls on a disabled
// or condition-less rule are not recorded.
func (m *Metrics) RecordRuleEvaluation(fired bool) {
	m.RuleEvaluations.Add(1)
	if fired {
		m.RuleFires.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics suitable for
// logging or export, since the live Metrics struct's atomic fields
// cannot be copied directly.
type MetricsSnapshot struct {
	ReadAccesses      uint64
	WriteAccesses     uint64
	ExecAccesses      uint64
	AlignmentErrors   uint64
	OutOfRangeErrors  uint64
	PermissionErrors  uint64
	WatchpointFires   uint64
	WatchpointsAdded  uint64
	ActionExecutions  uint64
	ActionFailures    uint64
	RuleEvaluations   uint64
	RuleFires         uint64
}

// Snapshot returns a copy of m. Each counter is loaded separately, so
// the copy is not atomic across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ReadAccesses:     m.ReadAccesses.Load(),
		WriteAccesses:    m.WriteAccesses.Load(),
		ExecAccesses:     m.ExecAccesses.Load(),
		AlignmentErrors:  m.alignmentErrors.Load(),
		OutOfRangeErrors: m.OutOfRangeErrors.Load(),
		PermissionErrors: m.PermissionErrors.Load(),
		WatchpointFires:  m.WatchpointFires.Load(),
		WatchpointsAdded: m.WatchpointsAdded.Load(),
		ActionExecutions: m.ActionExecutions.Load(),
		ActionFailures:   m.ActionFailures.Load(),
		RuleEvaluations:  m.RuleEvaluations.Load(),
		RuleFires:        m.RuleFires.Load(),
	}
}
