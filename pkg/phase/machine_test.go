package phase

import (
	"sync"
	"testing"
	"time"
)

// recorder collects transitions in order.
type recorder struct {
	mu    sync.Mutex
	trans []string
}

func (r *recorder) observe(from, to Phase) {
	r.mu.Lock()
	r.trans = append(r.trans, from+"->"+to)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.trans))
	copy(out, r.trans)
	return out
}

func newTestMachine(cfg Config) (*Machine, *recorder) {
	if cfg.Field == "" {
		cfg.Field = "open"
	}
	if cfg.Duration == 0 {
		cfg.Duration = 20 * time.Millisecond
	}
	m := NewMachine(cfg, nil)
	r := &recorder{}
	m.OnTransition(r.observe)
	return m, r
}

// waitPhase polls until the machine reaches want or the deadline passes.
func waitPhase(t *testing.T, m *Machine, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Phase() != want {
		if time.Now().After(deadline) {
			t.Fatalf("machine stuck in %q, want %q", m.Phase(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOpenWithoutCompanionSkipsLoading(t *testing.T) {
	m, r := newTestMachine(Config{})

	if m.Phase() != Idle {
		t.Fatalf("initial phase = %q, want idle", m.Phase())
	}

	m.Open()
	if m.Phase() != Entering {
		t.Fatalf("phase after Open = %q, want entering", m.Phase())
	}

	waitPhase(t, m, Visible)

	want := []string{"idle->entering", "entering->visible"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestOpenWithSlowCompanionEntersLoading(t *testing.T) {
	m, r := newTestMachine(Config{AsyncCompanion: "details"})

	m.Open()
	waitPhase(t, m, Loading)

	m.CompanionArrived()
	if m.Phase() != Visible {
		t.Fatalf("phase after CompanionArrived = %q, want visible", m.Phase())
	}

	want := []string{"idle->entering", "entering->loading", "loading->visible"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestCompanionDuringEnterSwapsWithoutPhaseChange(t *testing.T) {
	m, r := newTestMachine(Config{AsyncCompanion: "details", Duration: 50 * time.Millisecond})

	m.Open()
	if m.Phase() != Entering {
		t.Fatalf("phase after Open = %q, want entering", m.Phase())
	}

	// Data lands while the enter animation is still running: recorded,
	// no transition.
	m.CompanionArrived()
	if m.Phase() != Entering {
		t.Fatalf("phase after mid-enter CompanionArrived = %q, want entering", m.Phase())
	}

	// The enter completes straight to visible, never via loading.
	waitPhase(t, m, Visible)

	want := []string{"idle->entering", "entering->visible"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestCloseFromVisible(t *testing.T) {
	m, r := newTestMachine(Config{})
	m.Open()
	waitPhase(t, m, Visible)

	m.Close()
	if m.Phase() != Exiting {
		t.Fatalf("phase after Close = %q, want exiting", m.Phase())
	}
	waitPhase(t, m, Idle)

	want := []string{
		"idle->entering", "entering->visible",
		"visible->exiting", "exiting->idle",
	}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestCloseDuringEnterAbandonsEnter(t *testing.T) {
	m, r := newTestMachine(Config{Duration: 50 * time.Millisecond})

	m.Open()
	m.Close()
	if m.Phase() != Exiting {
		t.Fatalf("phase after Close mid-enter = %q, want exiting", m.Phase())
	}
	waitPhase(t, m, Idle)

	// The abandoned enter's timer must not fire a late entering->visible.
	time.Sleep(80 * time.Millisecond)
	if m.Phase() != Idle {
		t.Errorf("phase = %q after settling, want idle", m.Phase())
	}
	want := []string{"idle->entering", "entering->exiting", "exiting->idle"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestObserverCloseDuringOpenStillCompletesExit(t *testing.T) {
	// An observer reacting to idle->entering may immediately request a
	// close. The exit timer it arms must survive the open that is still
	// unwinding, so the machine settles back to idle.
	m, r := newTestMachine(Config{Duration: 20 * time.Millisecond})
	var once sync.Once
	m.OnTransition(func(from, to Phase) {
		r.observe(from, to)
		if from == Idle && to == Entering {
			once.Do(m.Close)
		}
	})

	m.Open()
	waitPhase(t, m, Idle)

	want := []string{"idle->entering", "entering->exiting", "exiting->idle"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestGhostRetainedDuringExit(t *testing.T) {
	m, _ := newTestMachine(Config{PreserveDomDuringExit: true, Duration: 50 * time.Millisecond})
	m.Open()
	waitPhase(t, m, Visible)
	m.SetContent("panel body")

	m.Close()
	if got := m.Ghost(); got != "panel body" {
		t.Errorf("Ghost() during exit = %v, want retained content", got)
	}

	waitPhase(t, m, Idle)
	if got := m.Ghost(); got != nil {
		t.Errorf("Ghost() after exit = %v, want nil", got)
	}
}

func TestNoGhostWithoutPreserveDom(t *testing.T) {
	m, _ := newTestMachine(Config{Duration: 50 * time.Millisecond})
	m.Open()
	waitPhase(t, m, Visible)
	m.SetContent("panel body")

	m.Close()
	if got := m.Ghost(); got != nil {
		t.Errorf("Ghost() = %v, want nil when DOM is not preserved", got)
	}
}

func TestTransitionEndCompletesEarly(t *testing.T) {
	m, _ := newTestMachine(Config{Duration: 5 * time.Second})

	m.Open()
	m.TransitionEnd()
	if m.Phase() != Visible {
		t.Fatalf("phase after early TransitionEnd = %q, want visible", m.Phase())
	}

	m.Close()
	m.TransitionEnd()
	if m.Phase() != Idle {
		t.Fatalf("phase after early exit TransitionEnd = %q, want idle", m.Phase())
	}
}

func TestTransitionEndIgnoredInSteadyStates(t *testing.T) {
	m, r := newTestMachine(Config{})

	m.TransitionEnd() // idle: no-op
	m.Open()
	waitPhase(t, m, Visible)
	m.TransitionEnd() // visible: no-op
	if m.Phase() != Visible {
		t.Errorf("phase = %q, want visible", m.Phase())
	}
	want := []string{"idle->entering", "entering->visible"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestOpenOnlyFromIdle(t *testing.T) {
	m, r := newTestMachine(Config{Duration: 50 * time.Millisecond})
	m.Open()
	m.Open() // entering: ignored
	waitPhase(t, m, Visible)
	m.Open() // visible: ignored

	want := []string{"idle->entering", "entering->visible"}
	if got := r.list(); !equalStrings(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestCloseFromIdleIgnored(t *testing.T) {
	m, r := newTestMachine(Config{})
	m.Close()
	if m.Phase() != Idle {
		t.Errorf("phase = %q, want idle", m.Phase())
	}
	if got := r.list(); len(got) != 0 {
		t.Errorf("transitions = %v, want none", got)
	}
}

func TestCompanionResetAfterClose(t *testing.T) {
	// A second open after a full cycle must wait for fresh companion data.
	m, _ := newTestMachine(Config{AsyncCompanion: "details"})

	m.Open()
	waitPhase(t, m, Loading)
	m.CompanionArrived()
	waitPhase(t, m, Visible)

	m.Close()
	waitPhase(t, m, Idle)

	m.Open()
	waitPhase(t, m, Loading)
	m.CompanionArrived()
	waitPhase(t, m, Visible)
}

func TestPhaseFieldNamedAfterField(t *testing.T) {
	m, _ := newTestMachine(Config{Field: "drawer"})
	if got := m.Field().Name(); got != "drawerPhase" {
		t.Errorf("phase field name = %q, want %q", got, "drawerPhase")
	}
	if got := m.Field().Value(); got != Idle {
		t.Errorf("phase field value = %q, want idle", got)
	}
}
