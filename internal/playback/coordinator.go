// Package playback elects the single feed item allowed to play audibly.
// Every token transition goes through one guarded function; no other
// component may set the active item, so at no instant can two elements be
// unmuted at once.
package playback

import (
	"log/slog"
	"sync"
)

// DefaultThreshold is the visible-ratio a media element must exceed to
// become a candidate for the active token (majority of the viewport).
const DefaultThreshold = 0.6

// Output is the media sink controlled by the coordinator. Activate carries
// the session's current mute preference; Deactivate means pause plus forced
// mute regardless of preference. Implementations must not call back into the
// coordinator.
type Output interface {
	Activate(muted bool)
	Deactivate()
}

// Coordinator owns the Active-Media Token for one feed session.
type Coordinator struct {
	threshold float64
	log       *slog.Logger

	mu      sync.Mutex
	outputs map[string]Output
	ratios  map[string]float64
	holder  string
	muted   bool
}

// NewCoordinator creates a Coordinator with the default threshold and the
// default-muted preference.
func NewCoordinator() *Coordinator {
	return NewCoordinatorWithThreshold(DefaultThreshold)
}

// NewCoordinatorWithThreshold creates a Coordinator with a custom activation
// threshold.
func NewCoordinatorWithThreshold(threshold float64) *Coordinator {
	return &Coordinator{
		threshold: threshold,
		log:       slog.Default().With("component", "playback"),
		outputs:   map[string]Output{},
		ratios:    map[string]float64{},
		muted:     true,
	}
}

// Register adds a media element to the election. Its ratio starts at zero.
func (c *Coordinator) Register(id string, out Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[id] = out
	c.ratios[id] = 0
	c.electLocked()
}

// Unregister removes an element; if it held the token, the token moves on or
// clears.
func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outputs, id)
	delete(c.ratios, id)
	if c.holder == id {
		// The holder is gone; no Deactivate call is possible or needed.
		c.holder = ""
	}
	c.electLocked()
}

// ReportVisibility records an intersection measurement and re-runs the
// election. Handoffs deactivate the previous holder within the same critical
// section that activates the next one.
func (c *Coordinator) ReportVisibility(id string, ratio float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.outputs[id]; !ok {
		return
	}
	c.ratios[id] = ratio
	c.electLocked()
}

// ReportVisibilityBatch applies one tick's worth of measurements atomically,
// then elects once. Among several elements over the threshold in the same
// tick, the most visible one wins.
func (c *Coordinator) ReportVisibilityBatch(ratios map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ratio := range ratios {
		if _, ok := c.outputs[id]; ok {
			c.ratios[id] = ratio
		}
	}
	c.electLocked()
}

// Active returns the current token holder, if any.
func (c *Coordinator) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder, c.holder != ""
}

// SetMuted records the session's mute preference and re-applies it to the
// current holder. Non-active elements stay force-muted no matter what.
func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	if c.holder != "" {
		c.outputs[c.holder].Activate(muted)
	}
}

// Muted reports the session's mute preference.
func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// electLocked is the single transition function for the token. Caller holds
// the mutex.
func (c *Coordinator) electLocked() {
	best := ""
	bestRatio := 0.0
	for id, ratio := range c.ratios {
		if ratio < c.threshold {
			continue
		}
		if ratio > bestRatio || (ratio == bestRatio && id == c.holder) {
			best, bestRatio = id, ratio
		}
	}

	if best == c.holder {
		return
	}

	// Deactivate strictly before activating the successor so two unmuted
	// elements are never observable.
	if c.holder != "" {
		if out, ok := c.outputs[c.holder]; ok {
			out.Deactivate()
		}
	}
	c.holder = best
	if best != "" {
		c.outputs[best].Activate(c.muted)
	}
}
