package proctor

import "github.com/edvigil/edvigil-backend/internal/model"

// Docked devtools shrink the inner window while the outer window stays put.
// A delta beyond this many pixels on either axis is treated as an open panel.
const devtoolsDeltaPx = 160

// devtoolsDetector is a polled heuristic over window geometry. It fires once
// per open transition: the flag latches while the panel stays open and
// resets when the deltas drop back under the threshold.
type devtoolsDetector struct {
	open bool
}

func newDevtoolsDetector() *devtoolsDetector {
	return &devtoolsDetector{}
}

func (d *devtoolsDetector) Handle(sig Signal) (*Violation, bool) {
	m, ok := sig.(WindowMetricsSignal)
	if !ok {
		return nil, false
	}

	wd := m.OuterWidth - m.InnerWidth
	hd := m.OuterHeight - m.InnerHeight
	nowOpen := wd > devtoolsDeltaPx || hd > devtoolsDeltaPx

	if !nowOpen {
		d.open = false
		return nil, false
	}
	if d.open {
		return nil, false
	}
	d.open = true
	return &Violation{
		Type:    model.ViolationDeveloperTools,
		Details: model.DevtoolsDetails{WidthDelta: wd, HeightDelta: hd},
	}, true
}
