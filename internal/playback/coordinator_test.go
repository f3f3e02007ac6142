package playback

import (
	"sync"
	"testing"
)

// recordingOutput tracks its own playing/muted state and asserts, via the
// shared tracker, that two outputs are never simultaneously unmuted.
type recordingOutput struct {
	id      string
	tracker *invariantTracker

	mu      sync.Mutex
	playing bool
	muted   bool
}

type invariantTracker struct {
	mu       sync.Mutex
	unmuted  map[string]bool
	violated bool
}

func newTracker() *invariantTracker {
	return &invariantTracker{unmuted: map[string]bool{}}
}

func (tr *invariantTracker) set(id string, unmuted bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.unmuted[id] = unmuted
	n := 0
	for _, u := range tr.unmuted {
		if u {
			n++
		}
	}
	if n > 1 {
		tr.violated = true
	}
}

func newOutput(id string, tr *invariantTracker) *recordingOutput {
	return &recordingOutput{id: id, tracker: tr, muted: true}
}

func (o *recordingOutput) Activate(muted bool) {
	o.mu.Lock()
	o.playing = true
	o.muted = muted
	o.mu.Unlock()
	o.tracker.set(o.id, !muted)
}

func (o *recordingOutput) Deactivate() {
	o.mu.Lock()
	o.playing = false
	o.muted = true
	o.mu.Unlock()
	o.tracker.set(o.id, false)
}

func (o *recordingOutput) state() (playing, muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playing, o.muted
}

func TestSingleHolderAcrossVisibilitySequence(t *testing.T) {
	tr := newTracker()
	c := NewCoordinator()
	c.SetMuted(false)

	outs := map[string]*recordingOutput{}
	for _, id := range []string{"p1", "p2", "p3"} {
		outs[id] = newOutput(id, tr)
		c.Register(id, outs[id])
	}

	steps := []struct {
		id    string
		ratio float64
		want  string
	}{
		{"p1", 0.9, "p1"},
		{"p2", 0.3, "p1"},
		{"p1", 0.5, ""},   // holder fell under threshold, nobody qualifies
		{"p2", 0.8, "p2"}, // new candidate takes the token
		{"p3", 0.95, "p3"},
		{"p3", 0.1, "p2"}, // falls back to the best remaining candidate
	}
	for i, s := range steps {
		c.ReportVisibility(s.id, s.ratio)
		got, _ := c.Active()
		if got != s.want {
			t.Fatalf("step %d: active = %q, want %q", i, got, s.want)
		}
	}
	if tr.violated {
		t.Error("two elements were unmuted at the same instant")
	}
	for id, out := range outs {
		playing, muted := out.state()
		if active, _ := c.Active(); id == active {
			if !playing || muted {
				t.Errorf("%s: active but playing=%v muted=%v", id, playing, muted)
			}
		} else if playing || !muted {
			t.Errorf("%s: inactive but playing=%v muted=%v", id, playing, muted)
		}
	}
}

func TestMostVisibleWinsWithinOneTick(t *testing.T) {
	tr := newTracker()
	c := NewCoordinator()
	p1, p2 := newOutput("p1", tr), newOutput("p2", tr)
	c.Register("p1", p1)
	c.Register("p2", p2)

	// Both cross the threshold in the same tick; the more visible one must
	// end up holding the token regardless of map order.
	c.ReportVisibilityBatch(map[string]float64{"p1": 0.7, "p2": 0.9})

	if got, _ := c.Active(); got != "p2" {
		t.Fatalf("active = %q, want p2", got)
	}
	if playing, muted := p1.state(); playing || !muted {
		t.Errorf("p1 playing=%v muted=%v, want paused and muted", playing, muted)
	}
	if playing, _ := p2.state(); !playing {
		t.Error("p2 should be playing")
	}
	if tr.violated {
		t.Error("single-unmuted invariant violated")
	}
}

func TestMutePreferenceLifecycle(t *testing.T) {
	tr := newTracker()
	c := NewCoordinator()
	p1 := newOutput("p1", tr)
	c.Register("p1", p1)

	// Default is muted.
	c.ReportVisibility("p1", 0.9)
	if _, muted := p1.state(); !muted {
		t.Fatal("default preference must be muted")
	}

	// Explicit unmute applies to the holder and persists.
	c.SetMuted(false)
	if _, muted := p1.state(); muted {
		t.Fatal("holder should be unmuted after preference change")
	}

	// Losing the token force-mutes regardless of preference.
	p2 := newOutput("p2", tr)
	c.Register("p2", p2)
	c.ReportVisibility("p2", 0.95)
	if playing, muted := p1.state(); playing || !muted {
		t.Fatalf("p1 playing=%v muted=%v after losing token", playing, muted)
	}

	// The preference is re-applied when the element regains the token.
	if _, muted := p2.state(); muted {
		t.Error("p2 should inherit the unmuted preference")
	}
	c.ReportVisibility("p2", 0.1)
	c.ReportVisibility("p1", 0.9)
	if _, muted := p1.state(); muted {
		t.Error("p1 should regain the unmuted preference")
	}
}

func TestUnregisterReleasesToken(t *testing.T) {
	tr := newTracker()
	c := NewCoordinator()
	p1, p2 := newOutput("p1", tr), newOutput("p2", tr)
	c.Register("p1", p1)
	c.Register("p2", p2)

	c.ReportVisibilityBatch(map[string]float64{"p1": 0.9, "p2": 0.7})
	if got, _ := c.Active(); got != "p1" {
		t.Fatalf("active = %q, want p1", got)
	}

	c.Unregister("p1")
	if got, _ := c.Active(); got != "p2" {
		t.Errorf("active = %q, want p2 after unregister", got)
	}
}

func TestNoCandidateClearsToken(t *testing.T) {
	tr := newTracker()
	c := NewCoordinator()
	p1 := newOutput("p1", tr)
	c.Register("p1", p1)

	c.ReportVisibility("p1", 0.9)
	c.ReportVisibility("p1", 0.2)
	if _, ok := c.Active(); ok {
		t.Error("token should be cleared when nothing is majority-visible")
	}
	if playing, muted := p1.state(); playing || !muted {
		t.Errorf("p1 playing=%v muted=%v, want paused and muted", playing, muted)
	}
}
