package proctor

import (
	"strings"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// Violation is one detected rule breach, ready to be reported.
type Violation struct {
	Type    model.ViolationType
	Details any
	// Blocked marks events whose DOM default must be prevented by the
	// embedding application (context menu, clipboard, key combination).
	Blocked bool
}

// Detector observes signals and emits at most one violation per signal.
// Detectors are stateful and not safe for concurrent use; Monitor
// serializes all signal delivery.
type Detector interface {
	Handle(sig Signal) (*Violation, bool)
}

// NewDetectors builds the detector set for an exam policy. Returns nil when
// proctoring is disabled so the whole pipeline degrades to a no-op.
func NewDetectors(policy model.ExamPolicy) []Detector {
	if !policy.ProctoringEnabled {
		return nil
	}
	ds := []Detector{
		&visibilityDetector{},
		&focusDetector{},
		&pointerDetector{},
		&contextMenuDetector{},
		&keyboardDetector{},
		&clipboardDetector{},
		newDevtoolsDetector(),
	}
	if policy.FullScreenRequired {
		ds = append(ds, &fullscreenDetector{})
	}
	return ds
}

// visibilityDetector reports TAB_SWITCH on the hidden edge of a
// visibilitychange. The hidden duration arrives on the visible edge and is
// attached to the next report via HiddenFor when the caller provides it.
type visibilityDetector struct{}

func (d *visibilityDetector) Handle(sig Signal) (*Violation, bool) {
	v, ok := sig.(VisibilitySignal)
	if !ok || !v.Hidden {
		return nil, false
	}
	return &Violation{
		Type:    model.ViolationTabSwitch,
		Details: model.TabSwitchDetails{HiddenMillis: v.HiddenFor.Milliseconds()},
	}, true
}

// focusDetector reports WINDOW_FOCUS_LOSS on the focus edge so the
// time-away duration is known.
type focusDetector struct {
	lost bool
}

func (d *focusDetector) Handle(sig Signal) (*Violation, bool) {
	f, ok := sig.(FocusSignal)
	if !ok {
		return nil, false
	}
	if !f.Focused {
		d.lost = true
		return nil, false
	}
	if !d.lost {
		return nil, false
	}
	d.lost = false
	return &Violation{
		Type:    model.ViolationWindowFocusLoss,
		Details: model.FocusLossDetails{AwayMillis: f.AwayFor.Milliseconds()},
	}, true
}

// fullscreenDetector reports FULLSCREEN_EXIT on the leaving edge. Only
// installed when the policy requires fullscreen.
type fullscreenDetector struct {
	wasActive bool
}

func (d *fullscreenDetector) Handle(sig Signal) (*Violation, bool) {
	f, ok := sig.(FullscreenSignal)
	if !ok {
		return nil, false
	}
	exited := d.wasActive && !f.Active
	d.wasActive = f.Active
	if !exited {
		return nil, false
	}
	return &Violation{
		Type:    model.ViolationFullscreenExit,
		Details: model.FullscreenExitDetails{},
	}, true
}

type pointerDetector struct{}

func (d *pointerDetector) Handle(sig Signal) (*Violation, bool) {
	p, ok := sig.(PointerSignal)
	if !ok || p.InViewport {
		return nil, false
	}
	return &Violation{
		Type:    model.ViolationMouseLeftWindow,
		Details: model.MouseLeftDetails{},
	}, true
}

type contextMenuDetector struct{}

func (d *contextMenuDetector) Handle(sig Signal) (*Violation, bool) {
	m, ok := sig.(ContextMenuSignal)
	if !ok {
		return nil, false
	}
	return &Violation{
		Type:    model.ViolationRightClick,
		Details: model.RightClickDetails{X: m.X, Y: m.Y},
		Blocked: true,
	}, true
}

type clipboardDetector struct{}

func (d *clipboardDetector) Handle(sig Signal) (*Violation, bool) {
	cb, ok := sig.(ClipboardSignal)
	if !ok {
		return nil, false
	}
	return &Violation{
		Type:    model.ViolationCopyPaste,
		Details: model.CopyPasteDetails{Action: cb.Action},
		Blocked: true,
	}, true
}

// keyboardDetector classifies blocked key combinations. Clipboard shortcuts
// become COPY_PASTE, devtools shortcuts become DEVELOPER_TOOLS and the rest
// of the blocklist becomes SUSPICIOUS_KEYBOARD. Every match is prevented
// from reaching the page.
type keyboardDetector struct{}

func (d *keyboardDetector) Handle(sig Signal) (*Violation, bool) {
	k, ok := sig.(KeySignal)
	if !ok {
		return nil, false
	}
	combo := comboString(k)
	key := strings.ToLower(k.Key)

	switch {
	case (k.Ctrl || k.Meta) && !k.Shift && (key == "c" || key == "x" || key == "v"):
		action := map[string]string{"c": "copy", "x": "cut", "v": "paste"}[key]
		return &Violation{
			Type:    model.ViolationCopyPaste,
			Details: model.CopyPasteDetails{Action: action},
			Blocked: true,
		}, true

	case key == "f12",
		k.Ctrl && k.Shift && (key == "i" || key == "j" || key == "c"):
		return &Violation{
			Type:    model.ViolationDeveloperTools,
			Details: model.DevtoolsDetails{Combo: combo},
			Blocked: true,
		}, true

	case (k.Ctrl || k.Meta) && (key == "u" || key == "f" || key == "t" || key == "n" || key == "p" || key == "s" || key == "w" || key == "r"):
		return &Violation{
			Type:    model.ViolationSuspiciousKeyboard,
			Details: model.KeyboardDetails{Combo: combo},
			Blocked: true,
		}, true
	}
	return nil, false
}

func comboString(k KeySignal) string {
	parts := make([]string, 0, 5)
	if k.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if k.Meta {
		parts = append(parts, "Meta")
	}
	if k.Alt {
		parts = append(parts, "Alt")
	}
	if k.Shift {
		parts = append(parts, "Shift")
	}
	parts = append(parts, k.Key)
	return strings.Join(parts, "+")
}
