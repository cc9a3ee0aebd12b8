// Package clock implements MasterClock, the tempo source that drives
// tempo-synchronized effects and sequencer playback (spec.md §4.3).
package clock

import (
	"sync"
	"time"
)

// TicksPerBeat is the resolution of one beat. 24 matches MIDI clock
// resolution, the natural choice for a lighting tempo source that may one
// day sync to external MIDI/Ableton Link sources.
const TicksPerBeat = 24

// MinBPM and MaxBPM bound the accepted tempo range (spec.md §4.3).
const (
	MinBPM = 20.0
	MaxBPM = 300.0
)

// tapHistorySize and tapWindow implement spec.md §4.3's tap-tempo rule
// verbatim: keep a ring of the last 8 taps; estimate BPM from whichever of
// those fall within the last 3s of the current tap, once at least 2 do.
const tapHistorySize = 8
const tapWindow = 3 * time.Second

// Tick describes one 1/24-beat pulse.
type Tick struct {
	Number     int64   // effective tick count since start, excluding paused ticks
	Beat       int     // whole beats elapsed since start/reset
	TickInBeat int     // 0..23, position within the current beat
	Phase      float64 // 0..1 fractional position within the current beat
	BPM        float64
	At         time.Time
}

// PhaseForDivisionAt returns phaseForDivision for a tick already received,
// letting a subscriber (e.g. FxEngine) compute phase from the exact tick
// it was handed rather than re-querying the clock's live, possibly
// advanced, state (spec.md §4.4: "the engine uses the latest tick, never
// replays missed ticks").
func (t Tick) PhaseForDivisionAt(ticksPerDivision int) float64 {
	if ticksPerDivision <= 0 {
		return 0
	}
	pos := t.Number % int64(ticksPerDivision)
	return float64(pos) / float64(ticksPerDivision)
}

// Listener receives each tick. Invoked synchronously; must not block.
type Listener func(Tick)

// MasterClock generates a steady stream of ticks at TicksPerBeat * bpm / 60
// Hz, supporting tap-tempo estimation and pause/resume without a phase
// discontinuity (spec.md §4.3 invariant).
type MasterClock struct {
	mu        sync.Mutex
	bpm       float64
	running   bool
	paused    bool
	listeners []Listener

	tickCount    int64 // total timer ticks since the clock was created, paused ones included
	pausedTicks  int64 // ticks "banked" so resume doesn't jump phase

	tapTimes []time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a MasterClock at the given starting BPM (clamped to range).
func New(bpm float64) *MasterClock {
	return &MasterClock{
		bpm: clampBPM(bpm),
	}
}

func clampBPM(bpm float64) float64 {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// BPM returns the current tempo.
func (c *MasterClock) BPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// SetBPM changes the tempo, clamped to [MinBPM, MaxBPM]. Takes effect on
// the next tick; does not reset phase.
func (c *MasterClock) SetBPM(bpm float64) {
	c.mu.Lock()
	c.bpm = clampBPM(bpm)
	c.mu.Unlock()
}

// Subscribe registers a tick listener.
func (c *MasterClock) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Start begins emitting ticks on a background goroutine.
func (c *MasterClock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.run()
}

// Stop halts tick emission.
func (c *MasterClock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Pause suspends tick emission. The current phase is preserved: Resume
// continues from the same TickInBeat rather than restarting the beat.
func (c *MasterClock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume continues tick emission from the paused phase.
func (c *MasterClock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// IsPaused reports whether the clock is currently paused.
func (c *MasterClock) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *MasterClock) run() {
	defer close(c.doneCh)

	for {
		c.mu.Lock()
		interval := tickInterval(c.bpm)
		c.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-c.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.paused {
			// Bank the tick so the beat/phase doesn't advance while paused;
			// Resume will pick up exactly where it left off.
			c.tickCount++
			c.pausedTicks++
			c.mu.Unlock()
			continue
		}
		c.tickCount++
		effective := c.tickCount - c.pausedTicks
		bpm := c.bpm
		listeners := append([]Listener(nil), c.listeners...)
		c.mu.Unlock()

		beat := int(effective / TicksPerBeat)
		tickInBeat := int(effective % TicksPerBeat)
		tick := Tick{
			Number:     effective,
			Beat:       beat,
			TickInBeat: tickInBeat,
			Phase:      float64(tickInBeat) / float64(TicksPerBeat),
			BPM:        bpm,
			At:         time.Now(),
		}

		for _, l := range listeners {
			l(tick)
		}
	}
}

func tickInterval(bpm float64) time.Duration {
	beatsPerSecond := bpm / 60.0
	ticksPerSecond := beatsPerSecond * TicksPerBeat
	return time.Duration(float64(time.Second) / ticksPerSecond)
}

// Tap records a tap-tempo pulse against an 8-tap ring and, if at least 2
// of those taps fall within the last 3s, updates BPM to the average
// interval between them (spec.md §4.3 tap-tempo). Returns the estimated
// BPM, or 0 if not yet enough recent data.
func (c *MasterClock) Tap() float64 {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tapTimes = append(c.tapTimes, now)
	if len(c.tapTimes) > tapHistorySize {
		c.tapTimes = c.tapTimes[len(c.tapTimes)-tapHistorySize:]
	}

	cutoff := now.Add(-tapWindow)
	var recent []time.Time
	for _, tapped := range c.tapTimes {
		if !tapped.Before(cutoff) {
			recent = append(recent, tapped)
		}
	}
	if len(recent) < 2 {
		return 0
	}

	total := recent[len(recent)-1].Sub(recent[0])
	avg := total / time.Duration(len(recent)-1)
	if avg <= 0 {
		return 0
	}

	bpm := clampBPM(60.0 / avg.Seconds())
	c.bpm = bpm
	return bpm
}

// ResetTaps clears accumulated tap-tempo history.
func (c *MasterClock) ResetTaps() {
	c.mu.Lock()
	c.tapTimes = nil
	c.mu.Unlock()
}

// PhaseForDivision returns the current phase (0..1) within a musical
// division expressed as ticks-per-division (e.g. TicksPerBeat for quarter
// notes, TicksPerBeat*4 for whole notes, TicksPerBeat/4 for sixteenths).
// Used by the fx package to align effect cycles to the beat grid.
func (c *MasterClock) PhaseForDivision(ticksPerDivision int) float64 {
	if ticksPerDivision <= 0 {
		return 0
	}
	c.mu.Lock()
	effective := c.tickCount - c.pausedTicks
	c.mu.Unlock()

	pos := effective % int64(ticksPerDivision)
	return float64(pos) / float64(ticksPerDivision)
}
