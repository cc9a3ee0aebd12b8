// Package scene implements SceneTracker (spec.md §4.5): tracking which
// recorded channel snapshots are still in force, and Sequencer, a
// cue-list-style chase player built on the same primitives (SPEC_FULL.md
// supplemented feature, grounded on the teacher's services/playback.Service).
package scene

import (
	"sync"

	"github.com/lacylights/dmxcore/internal/universe"
)

// ChannelKey identifies one channel within one universe for snapshot maps.
type ChannelKey struct {
	UniverseKey string
	Channel     universe.ChannelId
}

// Snapshot is a recorded set of channel values, keyed by universe+channel.
type Snapshot map[ChannelKey]universe.ChannelValue

// InvalidationListener is notified when a tracked scene leaves the active
// set. Invoked synchronously; must not block.
type InvalidationListener func(sceneID string)

// Tracker records scene snapshots and invalidates them the instant any
// snapshotted channel diverges from its captured value (spec.md §4.5).
type Tracker struct {
	mu sync.RWMutex

	active map[string]Snapshot
	chases map[string]bool

	listeners []InvalidationListener
}

// NewTracker creates an empty SceneTracker.
func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]Snapshot),
		chases: make(map[string]bool),
	}
}

// Subscribe registers a listener for scene invalidation events.
func (t *Tracker) Subscribe(l InvalidationListener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Record registers a scene as active with its captured snapshot. An empty
// snapshot removes the scene from the active set (spec.md §4.5).
func (t *Tracker) Record(sceneID string, captured Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(captured) == 0 {
		delete(t.active, sceneID)
		return
	}
	t.active[sceneID] = captured
}

// IsActive reports whether a scene is currently in force.
func (t *Tracker) IsActive(sceneID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.active[sceneID]
	return ok
}

// RecordChaseStart marks a chase id as active. Chases use a separate
// boolean flag and are never invalidated by channel divergence.
func (t *Tracker) RecordChaseStart(id string) {
	t.mu.Lock()
	t.chases[id] = true
	t.mu.Unlock()
}

// RecordChaseStop marks a chase id inactive.
func (t *Tracker) RecordChaseStop(id string) {
	t.mu.Lock()
	delete(t.chases, id)
	t.mu.Unlock()
}

// IsChaseActive reports whether a chase id is currently playing.
func (t *Tracker) IsChaseActive(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chases[id]
}

// OnChannelsChanged is wired to a UniverseController's subscribe callback.
// For every active scene whose snapshot contains a changed channel, it
// compares the emitted value against the captured value; on divergence
// the scene is removed from the active set and listeners are notified
// (spec.md §4.5, testable property 10).
func (t *Tracker) OnChannelsChanged(universeKey string, diff universe.ChannelDiff) {
	t.mu.Lock()

	var invalidated []string
	for sceneID, snapshot := range t.active {
		for channel, emitted := range diff {
			key := ChannelKey{UniverseKey: universeKey, Channel: channel}
			captured, tracked := snapshot[key]
			if !tracked {
				continue
			}
			if captured != emitted {
				delete(t.active, sceneID)
				invalidated = append(invalidated, sceneID)
				break
			}
		}
	}
	listeners := append([]InvalidationListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, sceneID := range invalidated {
		for _, l := range listeners {
			l(sceneID)
		}
	}
}
