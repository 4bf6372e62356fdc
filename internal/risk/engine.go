// Package risk maps violation events to risk deltas and turns the running
// risk score into incident/flag/terminate decisions. Everything here is
// pure: persistence of the resulting increments is the attempt service's
// job, so the rules stay trivially testable.
package risk

import (
	"github.com/edvigil/edvigil-backend/internal/model"
)

// Thresholds applied to an attempt's cumulative risk score.
const (
	// IncidentThreshold: any violation that lands the total above this
	// records an incident even when the event type alone would not.
	IncidentThreshold = 60
	// CriticalThreshold upgrades threshold incidents from HIGH to CRITICAL.
	CriticalThreshold = 80
	// TerminateThreshold hard-terminates the attempt. Checked after every
	// single report against the post-increment total.
	TerminateThreshold = 90
	// FlagThreshold turns a submission into FLAGGED instead of COMPLETED.
	FlagThreshold = 70
	// SubmitCriticalThreshold upgrades the submission incident to CRITICAL.
	SubmitCriticalThreshold = 85
)

const (
	// FastCompletionRatio is the fraction of the nominal duration below
	// which a reported timeSpent is considered implausible.
	FastCompletionRatio = 0.20
	// FastCompletionPenalty is the fixed risk added for implausibly fast
	// submissions.
	FastCompletionPenalty = 25
	// WarnDelta is the smallest single delta that earns the student a
	// visible warning in the report response.
	WarnDelta = 15
	// DefaultDelta scores unrecognized event types. Fail-safe: never zero.
	DefaultDelta = 5
)

// baseDeltas are the per-type risk increments before policy escalation.
var baseDeltas = map[model.ViolationType]int{
	model.ViolationTabSwitch:          10,
	model.ViolationWindowFocusLoss:    5,
	model.ViolationMouseLeftWindow:    5,
	model.ViolationFullscreenExit:     15,
	model.ViolationRightClick:         3,
	model.ViolationCopyPaste:          20,
	model.ViolationSuspiciousKeyboard: 15,
	model.ViolationDeveloperTools:     50,
}

// Assessment is the engine's verdict on a single violation event.
type Assessment struct {
	Delta int
	// ForceIncident records an incident regardless of the running total.
	ForceIncident bool
	// Severity applies only when ForceIncident is set.
	Severity model.IncidentSeverity
}

// Assess computes the risk delta for one violation under the exam's policy.
// priorTabSwitches is the attempt's tab-switch count before this event; the
// snapshot may be slightly stale under concurrent reports, which affects
// only which escalation tier applies, never whether the delta is counted.
func Assess(event model.ViolationType, policy model.ExamPolicy, priorTabSwitches int) Assessment {
	delta, known := baseDeltas[event]
	if !known {
		delta = DefaultDelta
	}

	switch event {
	case model.ViolationTabSwitch:
		if !policy.AllowTabSwitch {
			delta = 25
		} else if priorTabSwitches >= policy.MaxTabSwitches {
			delta = 30
		}
	case model.ViolationFullscreenExit:
		if policy.FullScreenRequired {
			delta = 25
		}
	}

	a := Assessment{Delta: delta}
	switch event {
	case model.ViolationCopyPaste:
		a.ForceIncident = true
		a.Severity = model.SeverityHigh
	case model.ViolationDeveloperTools:
		a.ForceIncident = true
		a.Severity = model.SeverityCritical
	}
	return a
}

// CounterFor returns which attempt counter the event increments, or ""
// when the event type has no dedicated counter.
func CounterFor(event model.ViolationType) string {
	switch event {
	case model.ViolationTabSwitch:
		return "tab_switches"
	case model.ViolationMouseLeftWindow:
		return "mouse_left_count"
	case model.ViolationFullscreenExit:
		return "fullscreen_exits"
	case model.ViolationRightClick:
		return "right_clicks"
	case model.ViolationCopyPaste:
		return "copy_paste_events"
	}
	return ""
}

// IncidentAfter decides whether a non-forced incident must be recorded for
// the post-increment total, and at which severity.
func IncidentAfter(total int) (bool, model.IncidentSeverity) {
	switch {
	case total > CriticalThreshold:
		return true, model.SeverityCritical
	case total > IncidentThreshold:
		return true, model.SeverityHigh
	}
	return false, ""
}

// ShouldTerminate reports whether the post-increment total mandates hard
// termination of the attempt.
func ShouldTerminate(total int) bool {
	return total > TerminateThreshold
}

// SubmitOutcome decides the terminal status of a submitted attempt from its
// final risk, plus the severity of the submission incident when flagged.
func SubmitOutcome(total int) (model.AttemptStatus, model.IncidentSeverity) {
	if total > FlagThreshold {
		if total > SubmitCriticalThreshold {
			return model.AttemptFlagged, model.SeverityCritical
		}
		return model.AttemptFlagged, model.SeverityHigh
	}
	return model.AttemptCompleted, ""
}

// FastCompletion reports whether the client-reported time spent is
// implausibly short for the exam's nominal duration.
func FastCompletion(timeSpentSeconds, durationMinutes int) bool {
	if durationMinutes <= 0 {
		return false
	}
	return float64(timeSpentSeconds) < FastCompletionRatio*float64(durationMinutes*60)
}
