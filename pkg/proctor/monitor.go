package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// fullscreenRetryDelay is how long to wait before re-requesting fullscreen
// after the student leaves it.
const fullscreenRetryDelay = 2 * time.Second

// queueSize bounds the backlog of unsent reports. A full queue drops the
// report rather than stalling the event path; the server recounts risk on
// every report it does receive, so a dropped one only softens the score.
const queueSize = 64

// Monitor drives the detector set for one session and pushes every hit
// through the reporter. Detection is synchronous so the caller gets its
// block-the-default answer immediately; reporting runs on a background
// goroutine so a slow or dead server never stalls the event path. When
// proctoring is disabled by policy the monitor is a complete no-op that
// still accepts signals.
type Monitor struct {
	sess      Session
	detectors []Detector
	reporter  violationReporter
	log       zerolog.Logger

	// RequestFullscreen asks the host to re-enter fullscreen. A failed
	// request (the fullscreen API needs a user gesture) degrades to a
	// warning instead of blocking the exam.
	RequestFullscreen func() error
	// OnWarning surfaces detector-side notices to the student.
	OnWarning func(msg string)
	// AutoSubmit fires when the local countdown reaches zero. The server
	// stays the authority on attempt state; this only triggers the call.
	AutoSubmit func()

	queue    chan Violation
	done     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	ended     bool
	fsPending bool
}

type violationReporter interface {
	Report(ctx context.Context, v Violation) (*model.ViolationOutcome, error)
}

// NewMonitor wires a monitor for the session and starts its report loop.
// reporter may be nil, in which case detections are logged and dropped
// (useful for local dry runs).
func NewMonitor(sess Session, reporter violationReporter, log zerolog.Logger) *Monitor {
	m := &Monitor{
		sess:      sess,
		detectors: NewDetectors(sess.Policy),
		reporter:  reporter,
		log:       log.With().Str("component", "proctor_monitor").Logger(),
		queue:     make(chan Violation, queueSize),
		done:      make(chan struct{}),
	}
	go m.forward()
	return m
}

// Enabled reports whether any detection is active for this session.
func (m *Monitor) Enabled() bool {
	return len(m.detectors) > 0
}

// Observe feeds one signal through every detector and queues the hits for
// reporting. It returns true when the signal's DOM default must be
// prevented, without waiting on any network round trip.
func (m *Monitor) Observe(sig Signal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return false
	}
	blocked := false
	for _, d := range m.detectors {
		v, ok := d.Handle(sig)
		if !ok {
			continue
		}
		blocked = blocked || v.Blocked
		if v.Type == model.ViolationFullscreenExit {
			m.scheduleFullscreenRetryLocked()
		}
		select {
		case m.queue <- *v:
		default:
			m.log.Warn().Str("event", string(v.Type)).Msg("report queue full, dropping")
		}
	}
	return blocked
}

// forward drains the report queue until End. One goroutine per monitor, so
// reports reach the server in detection order.
func (m *Monitor) forward() {
	for {
		select {
		case <-m.done:
			return
		case v := <-m.queue:
			m.report(v)
		}
	}
}

func (m *Monitor) report(v Violation) {
	if m.reporter == nil {
		m.log.Debug().Str("event", string(v.Type)).Msg("detected, no reporter")
		return
	}
	out, err := m.reporter.Report(context.Background(), v)
	if err != nil {
		m.log.Warn().Err(err).Str("event", string(v.Type)).Msg("report failed")
		return
	}
	if out != nil && out.Terminated {
		m.End()
	}
}

// scheduleFullscreenRetryLocked re-requests fullscreen once per exit, after
// a short delay so the browser has settled. Caller holds mu.
func (m *Monitor) scheduleFullscreenRetryLocked() {
	if m.fsPending || m.RequestFullscreen == nil {
		return
	}
	m.fsPending = true

	time.AfterFunc(fullscreenRetryDelay, func() {
		m.mu.Lock()
		m.fsPending = false
		ended := m.ended
		m.mu.Unlock()
		if ended {
			return
		}
		if err := m.RequestFullscreen(); err != nil {
			m.log.Warn().Err(err).Msg("fullscreen re-request refused")
			if m.OnWarning != nil {
				m.OnWarning("Please return to fullscreen to continue the exam.")
			}
		}
	})
}

// RunCountdown blocks until the session deadline or context cancellation,
// then invokes AutoSubmit. Run it in its own goroutine.
func (m *Monitor) RunCountdown(ctx context.Context) {
	remaining := time.Until(m.sess.EndsAt)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		m.mu.Lock()
		ended := m.ended
		m.mu.Unlock()
		m.End()
		if !ended && m.AutoSubmit != nil {
			m.AutoSubmit()
		}
	}
}

// End stops detection and the report loop, for use after submit or
// termination. Queued reports not yet sent are abandoned.
func (m *Monitor) End() {
	m.mu.Lock()
	m.ended = true
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.done) })
}
