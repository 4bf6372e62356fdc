package proctor

import "time"

// Signal is a normalized browser event fed into the detector set. The
// embedding application translates raw DOM events into these values and
// passes them to Monitor.Observe.
type Signal interface {
	signal()
}

// VisibilitySignal mirrors a document visibilitychange event.
type VisibilitySignal struct {
	Hidden    bool
	HiddenFor time.Duration // duration of the hidden period, set on the visible edge
}

// FocusSignal mirrors window focus/blur events.
type FocusSignal struct {
	Focused bool
	AwayFor time.Duration // how long focus was lost, set on the focus edge
}

// FullscreenSignal mirrors a fullscreenchange event.
type FullscreenSignal struct {
	Active bool
}

// PointerSignal reports whether the pointer is inside the viewport.
type PointerSignal struct {
	InViewport bool
}

// ContextMenuSignal mirrors a contextmenu event at viewport coordinates.
type ContextMenuSignal struct {
	X, Y int
}

// KeySignal mirrors a keydown event with its modifier state. Key uses the
// DOM KeyboardEvent.Key convention ("c", "F12", ...), lowercased for letters.
type KeySignal struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// ClipboardSignal mirrors a copy, cut or paste event that slipped past the
// keyboard detector (context-menu clipboard actions, for example).
type ClipboardSignal struct {
	Action string // "copy", "cut" or "paste"
}

// WindowMetricsSignal is a periodic sample of the window geometry used by
// the devtools heuristic.
type WindowMetricsSignal struct {
	InnerWidth  int
	InnerHeight int
	OuterWidth  int
	OuterHeight int
}

func (VisibilitySignal) signal()    {}
func (FocusSignal) signal()         {}
func (FullscreenSignal) signal()    {}
func (PointerSignal) signal()       {}
func (ContextMenuSignal) signal()   {}
func (KeySignal) signal()           {}
func (ClipboardSignal) signal()     {}
func (WindowMetricsSignal) signal() {}
