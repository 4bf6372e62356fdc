package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ViolationType enumerates the behavioral violations the client detector
// can report. The taxonomy is open-ended: unrecognized types are accepted
// and scored with a fail-safe default, never dropped.
type ViolationType string

const (
	ViolationTabSwitch          ViolationType = "TAB_SWITCH"
	ViolationWindowFocusLoss    ViolationType = "WINDOW_FOCUS_LOSS"
	ViolationFullscreenExit     ViolationType = "FULLSCREEN_EXIT"
	ViolationMouseLeftWindow    ViolationType = "MOUSE_LEFT_WINDOW"
	ViolationRightClick         ViolationType = "RIGHT_CLICK"
	ViolationCopyPaste          ViolationType = "COPY_PASTE"
	ViolationSuspiciousKeyboard ViolationType = "SUSPICIOUS_KEYBOARD"
	ViolationDeveloperTools     ViolationType = "DEVELOPER_TOOLS"
)

// ViolationReport is the wire payload of a single violation event sent by
// the client reporter. Details is a tagged union discriminated by EventType.
type ViolationReport struct {
	EventType ViolationType   `json:"event_type" binding:"required"`
	Timestamp time.Time       `json:"timestamp" binding:"required"`
	Details   json.RawMessage `json:"details"`
}

// ViolationOutcome is the server's answer to one violation report.
type ViolationOutcome struct {
	Terminated bool   `json:"terminated"`
	RiskScore  int    `json:"risk_score"`
	Warning    string `json:"warning,omitempty"`
}

// ────────────────────────────────────────────────────────────────────────────
// Detail variants
// ────────────────────────────────────────────────────────────────────────────

// TabSwitchDetails carries the hidden-duration of a visibility change.
type TabSwitchDetails struct {
	HiddenMillis int64 `json:"hidden_ms,omitempty"`
}

// FocusLossDetails records how long the window was without input focus.
type FocusLossDetails struct {
	AwayMillis int64 `json:"away_ms"`
}

// FullscreenExitDetails is currently empty; the type exists so the union
// stays exhaustive as the taxonomy grows.
type FullscreenExitDetails struct{}

// MouseLeftDetails is emitted when the pointer leaves the viewport.
type MouseLeftDetails struct{}

// RightClickDetails records where the context menu was requested.
type RightClickDetails struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CopyPasteDetails names the blocked clipboard action (copy, cut, paste).
type CopyPasteDetails struct {
	Action string `json:"action"`
}

// KeyboardDetails names the blocked key combination.
type KeyboardDetails struct {
	Combo string `json:"combo"`
}

// DevtoolsDetails carries the window-size deltas of the heuristic, or the
// blocked shortcut when detection came from the keyboard.
type DevtoolsDetails struct {
	WidthDelta  int    `json:"width_delta,omitempty"`
	HeightDelta int    `json:"height_delta,omitempty"`
	Combo       string `json:"combo,omitempty"`
}

// DecodeDetails parses the raw details payload into the variant matching
// the event type. Unknown types yield the raw message untouched so the
// evidence trail still captures what the client sent.
func DecodeDetails(t ViolationType, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var (
		out any
		err error
	)
	switch t {
	case ViolationTabSwitch:
		v := TabSwitchDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationWindowFocusLoss:
		v := FocusLossDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationFullscreenExit:
		v := FullscreenExitDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationMouseLeftWindow:
		v := MouseLeftDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationRightClick:
		v := RightClickDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationCopyPaste:
		v := CopyPasteDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationSuspiciousKeyboard:
		v := KeyboardDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	case ViolationDeveloperTools:
		v := DevtoolsDetails{}
		err = json.Unmarshal(raw, &v)
		out = v
	default:
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}
	return out, nil
}
