package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvigil/edvigil-backend/internal/model"
)

func proctoredPolicy() model.ExamPolicy {
	return model.ExamPolicy{
		ProctoringEnabled:  true,
		FullScreenRequired: true,
	}
}

func TestNewDetectors_DisabledPolicyYieldsNone(t *testing.T) {
	assert.Empty(t, NewDetectors(model.ExamPolicy{ProctoringEnabled: false}))
}

func TestNewDetectors_FullscreenOnlyWhenRequired(t *testing.T) {
	withFS := NewDetectors(proctoredPolicy())
	withoutFS := NewDetectors(model.ExamPolicy{ProctoringEnabled: true})
	assert.Len(t, withFS, len(withoutFS)+1)
}

func TestVisibilityDetector(t *testing.T) {
	d := &visibilityDetector{}

	v, ok := d.Handle(VisibilitySignal{Hidden: true, HiddenFor: 3 * time.Second})
	require.True(t, ok)
	assert.Equal(t, model.ViolationTabSwitch, v.Type)
	assert.Equal(t, model.TabSwitchDetails{HiddenMillis: 3000}, v.Details)

	_, ok = d.Handle(VisibilitySignal{Hidden: false})
	assert.False(t, ok, "becoming visible is not a violation")
}

func TestFocusDetector_EmitsOnRegainWithDuration(t *testing.T) {
	d := &focusDetector{}

	_, ok := d.Handle(FocusSignal{Focused: false})
	assert.False(t, ok, "loss edge only records state")

	v, ok := d.Handle(FocusSignal{Focused: true, AwayFor: 1500 * time.Millisecond})
	require.True(t, ok)
	assert.Equal(t, model.ViolationWindowFocusLoss, v.Type)
	assert.Equal(t, model.FocusLossDetails{AwayMillis: 1500}, v.Details)

	_, ok = d.Handle(FocusSignal{Focused: true})
	assert.False(t, ok, "focus without a prior loss is silent")
}

func TestFullscreenDetector_OnlyOnLeavingEdge(t *testing.T) {
	d := &fullscreenDetector{}

	_, ok := d.Handle(FullscreenSignal{Active: false})
	assert.False(t, ok, "never entered fullscreen")

	_, ok = d.Handle(FullscreenSignal{Active: true})
	assert.False(t, ok)

	v, ok := d.Handle(FullscreenSignal{Active: false})
	require.True(t, ok)
	assert.Equal(t, model.ViolationFullscreenExit, v.Type)

	_, ok = d.Handle(FullscreenSignal{Active: false})
	assert.False(t, ok, "staying out fires only once")
}

func TestContextMenuDetector_AlwaysBlocked(t *testing.T) {
	d := &contextMenuDetector{}
	v, ok := d.Handle(ContextMenuSignal{X: 10, Y: 20})
	require.True(t, ok)
	assert.Equal(t, model.ViolationRightClick, v.Type)
	assert.True(t, v.Blocked)
	assert.Equal(t, model.RightClickDetails{X: 10, Y: 20}, v.Details)
}

func TestKeyboardDetector_Classification(t *testing.T) {
	tests := []struct {
		name     string
		sig      KeySignal
		wantType model.ViolationType
		wantHit  bool
	}{
		{"ctrl+c is copy", KeySignal{Key: "c", Ctrl: true}, model.ViolationCopyPaste, true},
		{"cmd+v is paste", KeySignal{Key: "v", Meta: true}, model.ViolationCopyPaste, true},
		{"f12 is devtools", KeySignal{Key: "F12"}, model.ViolationDeveloperTools, true},
		{"ctrl+shift+i is devtools", KeySignal{Key: "i", Ctrl: true, Shift: true}, model.ViolationDeveloperTools, true},
		{"ctrl+shift+c is devtools not copy", KeySignal{Key: "c", Ctrl: true, Shift: true}, model.ViolationDeveloperTools, true},
		{"ctrl+u is suspicious", KeySignal{Key: "u", Ctrl: true}, model.ViolationSuspiciousKeyboard, true},
		{"ctrl+f is suspicious", KeySignal{Key: "f", Ctrl: true}, model.ViolationSuspiciousKeyboard, true},
		{"plain letter passes", KeySignal{Key: "a"}, "", false},
		{"shift alone passes", KeySignal{Key: "b", Shift: true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &keyboardDetector{}
			v, ok := d.Handle(tt.sig)
			require.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.wantType, v.Type)
				assert.True(t, v.Blocked)
			}
		})
	}
}

func TestDevtoolsDetector_DebouncedPerOpenTransition(t *testing.T) {
	d := newDevtoolsDetector()

	closed := WindowMetricsSignal{InnerWidth: 1920, InnerHeight: 1040, OuterWidth: 1920, OuterHeight: 1080}
	open := WindowMetricsSignal{InnerWidth: 1400, InnerHeight: 1040, OuterWidth: 1920, OuterHeight: 1080}

	_, ok := d.Handle(closed)
	assert.False(t, ok)

	v, ok := d.Handle(open)
	require.True(t, ok)
	assert.Equal(t, model.ViolationDeveloperTools, v.Type)
	assert.Equal(t, model.DevtoolsDetails{WidthDelta: 520, HeightDelta: 40}, v.Details)

	_, ok = d.Handle(open)
	assert.False(t, ok, "latched while the panel stays open")

	_, ok = d.Handle(closed)
	assert.False(t, ok)

	_, ok = d.Handle(open)
	assert.True(t, ok, "reopening fires again")
}

func TestDevtoolsDetector_ThresholdBoundary(t *testing.T) {
	d := newDevtoolsDetector()

	at := WindowMetricsSignal{InnerWidth: 1760, InnerHeight: 1080, OuterWidth: 1920, OuterHeight: 1080}
	_, ok := d.Handle(at)
	assert.False(t, ok, "delta of exactly 160 is not an open panel")

	over := WindowMetricsSignal{InnerWidth: 1759, InnerHeight: 1080, OuterWidth: 1920, OuterHeight: 1080}
	_, ok = d.Handle(over)
	assert.True(t, ok)
}
