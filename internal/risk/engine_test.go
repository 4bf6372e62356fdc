package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvigil/edvigil-backend/internal/model"
)

func TestAssessBaseDeltas(t *testing.T) {
	policy := model.ExamPolicy{AllowTabSwitch: true, MaxTabSwitches: 3}

	tests := []struct {
		event model.ViolationType
		delta int
	}{
		{model.ViolationTabSwitch, 10},
		{model.ViolationWindowFocusLoss, 5},
		{model.ViolationMouseLeftWindow, 5},
		{model.ViolationFullscreenExit, 15},
		{model.ViolationRightClick, 3},
		{model.ViolationCopyPaste, 20},
		{model.ViolationSuspiciousKeyboard, 15},
		{model.ViolationDeveloperTools, 50},
		{model.ViolationType("SOMETHING_NEW"), 5},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			a := Assess(tt.event, policy, 0)
			assert.Equal(t, tt.delta, a.Delta)
		})
	}
}

func TestAssessTabSwitchEscalation(t *testing.T) {
	t.Run("disallowed overrides quota", func(t *testing.T) {
		policy := model.ExamPolicy{AllowTabSwitch: false, MaxTabSwitches: 3}
		a := Assess(model.ViolationTabSwitch, policy, 10)
		assert.Equal(t, 25, a.Delta)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		policy := model.ExamPolicy{AllowTabSwitch: true, MaxTabSwitches: 3}
		a := Assess(model.ViolationTabSwitch, policy, 3)
		assert.Equal(t, 30, a.Delta)
	})

	t.Run("within quota", func(t *testing.T) {
		policy := model.ExamPolicy{AllowTabSwitch: true, MaxTabSwitches: 3}
		a := Assess(model.ViolationTabSwitch, policy, 2)
		assert.Equal(t, 10, a.Delta)
	})
}

func TestAssessFullscreenEscalation(t *testing.T) {
	a := Assess(model.ViolationFullscreenExit, model.ExamPolicy{FullScreenRequired: true}, 0)
	assert.Equal(t, 25, a.Delta)

	a = Assess(model.ViolationFullscreenExit, model.ExamPolicy{}, 0)
	assert.Equal(t, 15, a.Delta)
}

func TestAssessForcedIncidents(t *testing.T) {
	a := Assess(model.ViolationCopyPaste, model.ExamPolicy{}, 0)
	assert.True(t, a.ForceIncident)
	assert.Equal(t, model.SeverityHigh, a.Severity)

	a = Assess(model.ViolationDeveloperTools, model.ExamPolicy{}, 0)
	assert.True(t, a.ForceIncident)
	assert.Equal(t, model.SeverityCritical, a.Severity)

	a = Assess(model.ViolationTabSwitch, model.ExamPolicy{AllowTabSwitch: true, MaxTabSwitches: 3}, 0)
	assert.False(t, a.ForceIncident)
}

func TestIncidentAfter(t *testing.T) {
	ok, _ := IncidentAfter(60)
	assert.False(t, ok)

	ok, sev := IncidentAfter(61)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityHigh, sev)

	ok, sev = IncidentAfter(80)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityHigh, sev)

	ok, sev = IncidentAfter(81)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityCritical, sev)
}

func TestShouldTerminate(t *testing.T) {
	assert.False(t, ShouldTerminate(90))
	assert.True(t, ShouldTerminate(91))
}

func TestSubmitOutcome(t *testing.T) {
	status, _ := SubmitOutcome(70)
	assert.Equal(t, model.AttemptCompleted, status)

	status, sev := SubmitOutcome(71)
	assert.Equal(t, model.AttemptFlagged, status)
	assert.Equal(t, model.SeverityHigh, sev)

	status, sev = SubmitOutcome(86)
	assert.Equal(t, model.AttemptFlagged, status)
	assert.Equal(t, model.SeverityCritical, sev)
}

func TestFastCompletion(t *testing.T) {
	// 60 minute exam, threshold at 720s.
	assert.True(t, FastCompletion(300, 60))
	assert.True(t, FastCompletion(719, 60))
	assert.False(t, FastCompletion(720, 60))
	assert.False(t, FastCompletion(3000, 60))
	assert.False(t, FastCompletion(0, 0))
}

func TestCounterFor(t *testing.T) {
	assert.Equal(t, "tab_switches", CounterFor(model.ViolationTabSwitch))
	assert.Equal(t, "copy_paste_events", CounterFor(model.ViolationCopyPaste))
	assert.Equal(t, "", CounterFor(model.ViolationDeveloperTools))
	assert.Equal(t, "", CounterFor(model.ViolationWindowFocusLoss))
}
