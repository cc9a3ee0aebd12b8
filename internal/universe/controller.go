package universe

import (
	"log"
	"sync"
	"time"

	"github.com/lacylights/dmxcore/pkg/artnet"
)

// faderState is the per-channel fade state machine described in spec.md §3.
// A channel collapsed into the universe's single fader-manager (spec.md §9
// design notes) rather than owning its own goroutine.
type faderState struct {
	fading       bool
	startValue   ChannelValue
	targetValue  ChannelValue
	curve        EasingCurve
	behavior     FadeBehavior
	startMono    time.Time
	duration     time.Duration
}

// valueAt returns the channel's visible value at time now, and whether the
// fade has completed by now.
func (f *faderState) valueAt(now time.Time) (ChannelValue, bool) {
	if !f.fading {
		return f.targetValue, true
	}

	elapsed := now.Sub(f.startMono)
	if f.duration <= 0 || elapsed >= f.duration {
		return f.targetValue, true
	}

	progress := float64(elapsed) / float64(f.duration)

	switch f.behavior {
	case FadeBehaviorSnapEnd:
		return f.startValue, false
	default:
		return clampByte(Interpolate(f.startValue, f.targetValue, progress, f.curve)), false
	}
}

// UniverseController owns one universe's channel state and Art-Net output.
// See spec.md §4.1.
type UniverseController struct {
	cfg Config

	mu            sync.Mutex
	faders        [Size]faderState
	currentValues [Size]ChannelValue
	overrides     map[ChannelId]ChannelValue

	listeners []Listener

	lastEmitted  [Size]ChannelValue
	haveEmitted  bool
	sequence     byte
	consecutiveErrs int

	transport Transport

	isInHighRate   bool
	lastChangeTime time.Time

	dirtyCh      chan struct{}
	resetTickCh  chan struct{}
	stopCh       chan struct{}
	doneCh       chan struct{}
	fatalCh      chan error
	running      bool
	fatal        bool

	lastFrameTime  time.Time
	driftLastWarn  time.Time
}

// NewUniverseController creates a controller for one universe. transport
// may be nil (simulation mode): frames are computed and diffed but never
// sent on the wire.
func NewUniverseController(cfg Config, transport Transport) *UniverseController {
	cfg = cfg.withDefaults()
	return &UniverseController{
		cfg:         cfg,
		overrides:   make(map[ChannelId]ChannelValue),
		transport:   transport,
		dirtyCh:     make(chan struct{}, 1),
		resetTickCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		fatalCh:     make(chan error, 1),
	}
}

// Address returns the universe's (subnet, universe) address.
func (c *UniverseController) Address() artnet.Address {
	return c.cfg.Address
}

// Start launches the fader-manager and sender loops.
func (c *UniverseController) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.faderLoop()
	go c.senderLoop()
}

// Stop signals the fader and sender loops to exit, waits for the sender
// loop to finish, then emits one final frame reflecting current state and
// closes the transport (spec.md §5 cancellation semantics).
func (c *UniverseController) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	<-c.doneCh

	c.emitFrame(true)
	if c.transport != nil {
		_ = c.transport.Close()
	}
}

// FatalErrors returns a channel that receives at most one error when the
// sender aborts after more than MaxConsecutiveSendErrs consecutive
// transport failures.
func (c *UniverseController) FatalErrors() <-chan error {
	return c.fatalCh
}

// CurrentValue returns the authoritative value of a channel. Out-of-range
// channels return 0 and never error (spec.md §4.1).
func (c *UniverseController) CurrentValue(channel ChannelId) ChannelValue {
	if !channel.InRange() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentValues[channel-1]
}

// ScheduleChange enqueues a write to one channel. No-ops for out-of-range
// channels. Returns promptly without blocking on I/O (spec.md §4.1).
func (c *UniverseController) ScheduleChange(channel ChannelId, change ChannelChange) {
	if !channel.InRange() {
		return
	}
	c.mu.Lock()
	c.applyChangeLocked(channel, change)
	c.mu.Unlock()
	c.markDirty()
}

// ScheduleBatch applies a list of changes atomically with respect to the
// next emitted frame: either all are visible in the next frame or none are
// (spec.md §4.1). Out-of-range channels in the batch are silently skipped.
func (c *UniverseController) ScheduleBatch(changes map[ChannelId]ChannelChange) {
	if len(changes) == 0 {
		return
	}
	c.mu.Lock()
	for channel, change := range changes {
		if !channel.InRange() {
			continue
		}
		c.applyChangeLocked(channel, change)
	}
	c.mu.Unlock()
	c.markDirty()
}

// applyChangeLocked must be called with c.mu held.
func (c *UniverseController) applyChangeLocked(channel ChannelId, change ChannelChange) {
	idx := channel - 1
	now := time.Now()

	if change.FadeMs == 0 || change.FadeBehavior == FadeBehaviorSnap {
		c.faders[idx] = faderState{fading: false, targetValue: change.Target}
		c.currentValues[idx] = change.Target
		return
	}

	// Restart-from-current-value semantics (spec.md §3 FaderState invariant,
	// scenario S3): the new fade starts from whatever is currently visible,
	// not from the previous fade's start value.
	currentVisible, _ := c.faders[idx].valueAt(now)
	if !c.faders[idx].fading {
		currentVisible = c.currentValues[idx]
	}

	c.faders[idx] = faderState{
		fading:      true,
		startValue:  currentVisible,
		targetValue: change.Target,
		curve:       change.Curve,
		behavior:    change.FadeBehavior,
		startMono:   now,
		duration:    time.Duration(change.FadeMs) * time.Millisecond,
	}
}

// SetOverride sets a manual override value applied after fader
// interpolation but before transmission (SPEC_FULL.md §4 item 2).
func (c *UniverseController) SetOverride(channel ChannelId, value ChannelValue) {
	if !channel.InRange() {
		return
	}
	c.mu.Lock()
	cur, exists := c.overrides[channel]
	if !exists || cur != value {
		c.overrides[channel] = value
	}
	c.mu.Unlock()
	c.markDirty()
}

// ClearOverride removes a manual override.
func (c *UniverseController) ClearOverride(channel ChannelId) {
	c.mu.Lock()
	_, existed := c.overrides[channel]
	delete(c.overrides, channel)
	c.mu.Unlock()
	if existed {
		c.markDirty()
	}
}

// ClearAllOverrides removes every manual override.
func (c *UniverseController) ClearAllOverrides() {
	c.mu.Lock()
	hadAny := len(c.overrides) > 0
	c.overrides = make(map[ChannelId]ChannelValue)
	c.mu.Unlock()
	if hadAny {
		c.markDirty()
	}
}

// FadeToBlack brings every channel to 0 instantly, clearing fades and overrides.
func (c *UniverseController) FadeToBlack() {
	c.mu.Lock()
	for i := range c.currentValues {
		c.currentValues[i] = 0
		c.faders[i] = faderState{}
	}
	c.overrides = make(map[ChannelId]ChannelValue)
	c.mu.Unlock()
	c.markDirty()
}

// Subscribe registers a listener invoked after each emitted frame.
func (c *UniverseController) Subscribe(listener Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}

// IsChannelFading reports whether a channel currently has an active fade.
func (c *UniverseController) IsChannelFading(channel ChannelId) bool {
	if !channel.InRange() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faders[channel-1].fading
}

func (c *UniverseController) markDirty() {
	select {
	case c.dirtyCh <- struct{}{}:
	default:
	}
}

// faderLoop advances due fades every FadeStepMs (spec.md §4.1, §9 collapsed
// task topology: one worker owns all 512 channels instead of 512 goroutines).
func (c *UniverseController) faderLoop() {
	ticker := time.NewTicker(time.Duration(c.cfg.FadeStepMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.stepFades()
		}
	}
}

func (c *UniverseController) stepFades() {
	now := time.Now()
	changed := false

	c.mu.Lock()
	for i := range c.faders {
		f := &c.faders[i]
		if !f.fading {
			continue
		}
		value, done := f.valueAt(now)
		if value != c.currentValues[i] {
			c.currentValues[i] = value
			changed = true
		}
		if done {
			f.fading = false
			c.currentValues[i] = f.targetValue
			changed = true
		}
	}
	c.mu.Unlock()

	if changed {
		c.markDirty()
	}
}

// senderLoop coalesces dirty signals into at most one emitted frame per
// cadence window, adapting between an idle keep-alive rate and the active
// cadence rate (SPEC_FULL.md §4 item 1).
func (c *UniverseController) senderLoop() {
	defer close(c.doneCh)

	activeInterval := time.Duration(c.cfg.CadenceMs) * time.Millisecond
	idleInterval := time.Second / time.Duration(c.cfg.IdleRateHz)

	interval := idleInterval
	if !c.cfg.NeedsRefresh {
		interval = activeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	currentInterval := interval

	refreshTimer := time.NewTimer(time.Duration(c.cfg.RefreshMs) * time.Millisecond)
	defer refreshTimer.Stop()
	if !c.cfg.NeedsRefresh {
		if !refreshTimer.Stop() {
			<-refreshTimer.C
		}
	}

	for {
		select {
		case <-c.stopCh:
			return

		case <-c.dirtyCh:
			// Only switch to the active rate here; the next cadence tick
			// emits the frame, so any number of dirty signals in one
			// window produce a single frame.
			c.noteActivity()
			c.maybeResizeTicker(&ticker, &currentInterval, activeInterval)
			c.resetRefresh(refreshTimer)

		case <-refreshTimer.C:
			c.emitFrame(false)
			c.resetRefresh(refreshTimer)

		case <-ticker.C:
			wasHigh := c.isHighRate()
			c.checkIdleDecay(activeInterval, idleInterval)
			if wasHigh || !c.cfg.NeedsRefresh {
				c.emitFrame(false)
			}
			c.maybeResizeTicker(&ticker, &currentInterval, c.currentTargetInterval(activeInterval, idleInterval))

		case <-c.resetTickCh:
			c.maybeResizeTicker(&ticker, &currentInterval, c.currentTargetInterval(activeInterval, idleInterval))
		}

		if c.fatal {
			return
		}
	}
}

func (c *UniverseController) currentTargetInterval(active, idle time.Duration) time.Duration {
	if c.isHighRate() {
		return active
	}
	return idle
}

func (c *UniverseController) noteActivity() {
	c.mu.Lock()
	c.lastChangeTime = time.Now()
	c.isInHighRate = true
	c.mu.Unlock()
}

func (c *UniverseController) isHighRate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isInHighRate
}

func (c *UniverseController) checkIdleDecay(active, idle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isInHighRate && !c.lastChangeTime.IsZero() && time.Since(c.lastChangeTime) > c.cfg.HighRateDuration {
		c.isInHighRate = false
	}
}

func (c *UniverseController) maybeResizeTicker(ticker **time.Ticker, current *time.Duration, want time.Duration) {
	if want == *current {
		return
	}
	old := *ticker
	*ticker = time.NewTicker(want)
	old.Stop()
	*current = want
}

func (c *UniverseController) resetRefresh(t *time.Timer) {
	if !c.cfg.NeedsRefresh {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(time.Duration(c.cfg.RefreshMs) * time.Millisecond)
}

// emitFrame copies current state into a 512-byte buffer, transmits it, and
// delivers the diff against the previously emitted frame to subscribers.
func (c *UniverseController) emitFrame(final bool) {
	c.mu.Lock()
	var buf [Size]ChannelValue
	copy(buf[:], c.currentValues[:])
	for channel, value := range c.overrides {
		buf[channel-1] = value
	}
	c.sequence++
	seq := c.sequence
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	now := time.Now()
	if !c.lastFrameTime.IsZero() {
		expected := time.Duration(c.cfg.CadenceMs) * time.Millisecond
		drift := now.Sub(c.lastFrameTime) - expected
		if drift > time.Duration(c.cfg.DriftThresholdMsOrDefault())*time.Millisecond {
			c.warnDrift(drift)
		}
	}
	c.lastFrameTime = now

	if c.transport != nil {
		packet := artnet.BuildDMXPacket(c.cfg.Address, buf[:], seq)
		if err := c.transport.Send(packet); err != nil {
			c.handleSendError(err)
			if !final {
				return
			}
		} else {
			c.mu.Lock()
			c.consecutiveErrs = 0
			c.mu.Unlock()
		}
	}

	diff := c.computeDiff(buf)
	c.mu.Lock()
	c.lastEmitted = buf
	c.haveEmitted = true
	c.mu.Unlock()

	if len(diff) > 0 {
		for _, listener := range listeners {
			listener(diff)
		}
	}
}

func (c *UniverseController) computeDiff(buf [Size]ChannelValue) ChannelDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	diff := make(ChannelDiff)
	for i := 0; i < Size; i++ {
		if !c.haveEmitted || c.lastEmitted[i] != buf[i] {
			diff[ChannelId(i+1)] = buf[i]
		}
	}
	return diff
}

func (c *UniverseController) handleSendError(err error) {
	c.mu.Lock()
	c.consecutiveErrs++
	count := c.consecutiveErrs
	fatal := count > c.cfg.MaxConsecutiveSendErrs
	c.mu.Unlock()

	if fatal {
		c.mu.Lock()
		c.fatal = true
		c.mu.Unlock()
		log.Printf("universe %s: sender aborting after %d consecutive send failures: %v", c.cfg.Address, count, err)
		select {
		case c.fatalCh <- err:
		default:
		}
		return
	}

	log.Printf("universe %s: transient send error: %v", c.cfg.Address, err)
	time.Sleep(25 * time.Millisecond)
}

func (c *UniverseController) warnDrift(drift time.Duration) {
	if time.Since(c.driftLastWarn) < 5*time.Second {
		return
	}
	c.driftLastWarn = time.Now()
	log.Printf("universe %s: frame emission drifted %v beyond cadence", c.cfg.Address, drift)
}

// DriftThresholdMsOrDefault returns the drift threshold, a fixed 50ms;
// Config has no field that changes it.
func (c Config) DriftThresholdMsOrDefault() int {
	return 50
}
