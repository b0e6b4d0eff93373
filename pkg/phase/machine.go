// Package phase implements the animated lifecycle state machine for
// fields that gate visibility of staged UI: overlays, drawers, expanding
// panels. It sits on top of a synchronized field holding the phase string,
// so the server can confirm or correct phases like any other field.
//
// The lifecycle is idle -> entering -> (loading) -> visible -> exiting ->
// idle. The loading stage is only reachable when an async companion field
// is configured and its data has not arrived by the time the enter
// animation completes; companion data arriving mid-enter is swapped in
// place without a phase change, so content is never double-animated.
package phase

import (
	"sync"
	"time"

	fieldsync "github.com/mirageui/mirage/pkg/sync"
)

// Phase is one discrete stage of the lifecycle.
type Phase = string

const (
	Idle     Phase = "idle"
	Entering Phase = "entering"
	Loading  Phase = "loading"
	Visible  Phase = "visible"
	Exiting  Phase = "exiting"
)

// Config mirrors the animated-field declaration.
type Config struct {
	Field                 string
	AsyncCompanion        string
	PreserveDomDuringExit bool
	Duration              time.Duration
}

// TransitionFunc observes phase changes, called outside the machine lock
// in transition order.
type TransitionFunc func(from, to Phase)

// Machine drives one animated field's phase. All inputs (open/close
// requests, companion arrival, timer expiry, early transition-end
// confirmation) funnel through one mutex, so transitions are applied in
// arrival order exactly as the host event loop would serialize them.
type Machine struct {
	cfg   Config
	field *fieldsync.Field[string]
	send  fieldsync.SendFunc

	mu             sync.Mutex
	companionReady bool
	content        any // last rendered content, retained as the exit ghost
	ghost          any
	epoch          uint64 // invalidates timers from superseded transitions
	timer          *time.Timer

	onTransition TransitionFunc
}

// NewMachine creates a machine in the idle phase. send, when non-nil, is
// attached to every optimistic phase change so the server's authoritative
// phase computation confirms them; nil keeps the machine local.
func NewMachine(cfg Config, send fieldsync.SendFunc) *Machine {
	return &Machine{
		cfg:   cfg,
		field: fieldsync.NewField(cfg.Field+"Phase", Idle),
		send:  send,
	}
}

// OnTransition registers the transition observer.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	m.onTransition = fn
	m.mu.Unlock()
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.field.Value()
}

// Field exposes the underlying synchronized phase field, e.g. for binding
// to a sync channel.
func (m *Machine) Field() *fieldsync.Field[string] {
	return m.field
}

// SetContent records the currently rendered content so an exit animation
// has something to show after the host has logically removed it.
func (m *Machine) SetContent(content any) {
	m.mu.Lock()
	m.content = content
	if m.cfg.AsyncCompanion != "" && content != nil {
		m.companionReady = true
	}
	m.mu.Unlock()
}

// Ghost returns the retained content during the exiting phase, nil
// otherwise. Only populated when PreserveDomDuringExit is configured.
func (m *Machine) Ghost() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ghost
}

// Open requests the enter transition. Only effective from idle.
func (m *Machine) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Phase() != Idle {
		return
	}
	// Arm before notifying: a re-entrant Close from the observer must
	// supersede this timer, not be cancelled by it.
	m.armTimer(m.cfg.Duration, m.enterElapsed)
	m.transition(Idle, Entering)
}

// Close requests the exit transition. Effective from visible, and also
// from entering/loading, where the pending enter is abandoned.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.Phase()
	switch from {
	case Visible, Entering, Loading:
	default:
		return
	}
	if m.cfg.PreserveDomDuringExit {
		m.ghost = m.content
	}
	m.armTimer(m.cfg.Duration, m.exitElapsed)
	m.transition(from, Exiting)
}

// CompanionArrived signals that the async companion field's data is
// present. During entering this swaps content in place with no phase
// change, so the running animation is not restarted; during loading it
// completes the open.
func (m *Machine) CompanionArrived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companionReady = true
	if m.Phase() == Loading {
		m.epoch++ // no timer is pending, but invalidate defensively
		m.transition(Loading, Visible)
	}
}

// TransitionEnd is the optional early completion signal from DOM layout.
// The nominal duration timer remains authoritative; this only lets an
// animation that finished early advance sooner.
func (m *Machine) TransitionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.Phase() {
	case Entering:
		m.epoch++
		m.finishEnterLocked()
	case Exiting:
		m.epoch++
		m.finishExitLocked()
	}
}

// enterElapsed fires when the enter animation's nominal duration passes.
func (m *Machine) enterElapsed(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.Phase() != Entering {
		return
	}
	m.finishEnterLocked()
}

func (m *Machine) finishEnterLocked() {
	if m.cfg.AsyncCompanion != "" && !m.companionReady {
		m.transition(Entering, Loading)
		return
	}
	m.transition(Entering, Visible)
}

func (m *Machine) exitElapsed(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.Phase() != Exiting {
		return
	}
	m.finishExitLocked()
}

func (m *Machine) finishExitLocked() {
	m.ghost = nil
	if m.cfg.AsyncCompanion != "" {
		m.companionReady = false
	}
	m.transition(Exiting, Idle)
}

// transition applies a phase change and notifies. Caller holds the lock;
// the observer runs after the phase field is updated.
func (m *Machine) transition(from, to Phase) {
	m.field.SetOptimistic(to, m.send)
	if fn := m.onTransition; fn != nil {
		// Release the lock for the observer: it may re-enter the machine.
		m.mu.Unlock()
		fn(from, to)
		m.mu.Lock()
	}
}

// armTimer schedules fn after d under a fresh epoch, cancelling any
// previous pending timer.
func (m *Machine) armTimer(d time.Duration, fn func(epoch uint64)) {
	m.epoch++
	epoch := m.epoch
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, func() { fn(epoch) })
}
