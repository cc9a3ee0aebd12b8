// Package fx implements FxEngine: the tempo-synchronized effects registry
// that evaluates active FxInstances each clock tick and blends their
// output into channel writes through a single transaction (spec.md §4.4).
package fx

import (
	"fmt"
	"log"
	"sync"

	"github.com/lacylights/dmxcore/internal/clock"
	"github.com/lacylights/dmxcore/internal/fixture"
	"github.com/lacylights/dmxcore/internal/transaction"
	"github.com/lacylights/dmxcore/internal/universe"
)

// Engine evaluates active FxInstances on every MasterClock tick.
type Engine struct {
	mu        sync.Mutex
	instances []*FxInstance // insertion order; evaluation order is this order (spec.md §4.4)
	nextID    int

	registry *fixture.Registry
	txReg    transaction.Registry
	mclock   *clock.MasterClock

	onInvalidParam func(err error)
}

// NewEngine builds an FxEngine bound to a fixture registry (for target
// resolution), a transaction registry (for committing writes), and the
// MasterClock it subscribes to for tick timing.
func NewEngine(registry *fixture.Registry, txReg transaction.Registry, mclock *clock.MasterClock) *Engine {
	return &Engine{
		registry: registry,
		txReg:    txReg,
		mclock:   mclock,
	}
}

// SetInvalidParamHandler installs a callback invoked when Add rejects an
// instance for invalid effect parameters (spec.md §7 EffectParameterInvalid).
func (e *Engine) SetInvalidParamHandler(fn func(err error)) {
	e.mu.Lock()
	e.onInvalidParam = fn
	e.mu.Unlock()
}

// Attach subscribes the engine to the clock so it begins evaluating ticks.
func (e *Engine) Attach() {
	e.mclock.Subscribe(e.onTick)
}

// GetBPM, SetBPM, Tap, Pause, and Resume proxy to the bound MasterClock so
// callers driving the FX engine don't need a separate clock handle
// (spec.md §6 FxEngine API surface).
func (e *Engine) GetBPM() float64      { return e.mclock.BPM() }
func (e *Engine) SetBPM(bpm float64)   { e.mclock.SetBPM(bpm) }
func (e *Engine) Tap() float64         { return e.mclock.Tap() }
func (e *Engine) PauseClock()          { e.mclock.Pause() }
func (e *Engine) ResumeClock()         { e.mclock.Resume() }

// Add registers a new instance and returns its id. An instance with a
// zero BeatDivision or a nil Distribution is rejected as an invalid
// parameter (spec.md §7 EffectParameterInvalid): existing instances are
// unaffected.
func (e *Engine) Add(instance *FxInstance) (string, error) {
	if instance.Timing.BeatDivision <= 0 {
		err := fmt.Errorf("fx instance %s: beatDivision must be > 0", instance.ID)
		e.reportInvalid(err)
		return "", err
	}
	if instance.Distribution == nil {
		err := fmt.Errorf("fx instance %s: distribution strategy required", instance.ID)
		e.reportInvalid(err)
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if instance.ID == "" {
		e.nextID++
		instance.ID = fmt.Sprintf("fx-%d", e.nextID)
	}
	e.instances = append(e.instances, instance)
	return instance.ID, nil
}

func (e *Engine) reportInvalid(err error) {
	e.mu.Lock()
	handler := e.onInvalidParam
	e.mu.Unlock()
	if handler != nil {
		handler(err)
	} else {
		log.Printf("fx: rejected instance: %v", err)
	}
}

// Remove deletes an instance by id. Takes effect at the next tick boundary
// (spec.md §5): an evaluation already in flight may still write once.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, inst := range e.instances {
		if inst.ID == id {
			e.instances = append(e.instances[:i], e.instances[i+1:]...)
			return
		}
	}
}

// Pause suspends evaluation of an instance without removing it.
func (e *Engine) Pause(id string) {
	e.withInstance(id, func(inst *FxInstance) { inst.paused = true })
}

// Resume un-pauses a previously paused instance.
func (e *Engine) Resume(id string) {
	e.withInstance(id, func(inst *FxInstance) { inst.paused = false })
}

func (e *Engine) withInstance(id string, fn func(*FxInstance)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.instances {
		if inst.ID == id {
			fn(inst)
			return
		}
	}
}

// Clear removes every instance.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.instances = nil
	e.mu.Unlock()
}

// List returns a snapshot of currently registered instances, in evaluation
// order.
func (e *Engine) List() []*FxInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*FxInstance, len(e.instances))
	copy(out, e.instances)
	return out
}

// ClearForTarget removes every instance whose target matches the given
// FxTarget (by kind and fixture/group identity).
func (e *Engine) ClearForTarget(target FxTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := e.instances[:0]
	for _, inst := range e.instances {
		if sameTarget(inst.Target, target) {
			continue
		}
		filtered = append(filtered, inst)
	}
	e.instances = filtered
}

func sameTarget(a, b FxTarget) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == SingleFixture {
		return a.FixtureID == b.FixtureID
	}
	return a.GroupName == b.GroupName && a.GroupKind == b.GroupKind
}

// onTick is the MasterClock listener. Each tick opens exactly one
// transaction spanning all affected universes and commits it before
// returning, per spec.md §4.4. Listener invocations happen synchronously
// on the clock's goroutine; if a tick's evaluation overruns the next tick
// period, the clock simply delivers the next tick once this returns — no
// replay of skipped ticks, matching "uses the latest tick, never replays".
func (e *Engine) onTick(tick clock.Tick) {
	e.mu.Lock()
	instances := make([]*FxInstance, len(e.instances))
	copy(instances, e.instances)
	e.mu.Unlock()

	if len(instances) == 0 {
		return
	}

	tx := transaction.Open(e.txReg)
	committed := false
	defer func() {
		if !committed {
			tx.Discard()
		}
	}()

	for _, inst := range instances {
		if inst.paused {
			continue
		}
		e.evaluateInstance(tx, inst, tick)
	}

	if err := tx.Commit(); err != nil {
		log.Printf("fx: tick commit error: %v", err)
		return
	}
	committed = true
}

func (e *Engine) evaluateInstance(tx *transaction.ControllerTransaction, inst *FxInstance, tick clock.Tick) {
	members, err := Resolve(inst.Target, e.registry)
	if err != nil {
		log.Printf("fx: instance %s target resolution error: %v", inst.ID, err)
		return
	}
	if len(members) == 0 {
		// GroupTargetMismatch: skip this tick only; the instance is not removed.
		return
	}

	groupSize := len(members)
	division := inst.EffectiveDivision(groupSize)
	ticksPerDivision := int(division * clock.TicksPerBeat)
	basePhase := tick.PhaseForDivisionAt(ticksPerDivision)

	slots := 1
	if inst.stepTiming && inst.Distribution != nil {
		if s := inst.Distribution.DistinctSlots(groupSize); s > 0 {
			slots = s
		}
	}

	for _, member := range members {
		offset := inst.Distribution.Offset(member.Index, member.GroupSize, member.Position)
		phase := mod1(basePhase + offset + inst.Timing.PhaseOffset)

		// Step timing stretched effectiveDivision so the full cycle spans
		// `slots` steps; a member only "owns" the instant when its own
		// phase falls in this step's slice of that cycle. Outside its
		// slice the member is explicitly driven to its kind's zero value
		// every tick, so a constant-output effect (StaticValue) doesn't
		// latch at its last-written value once its window passes.
		var output EffectOutput
		if slots > 1 {
			scaled := phase * float64(slots)
			idx := int(scaled)
			if idx != 0 {
				output = zeroOutputForKind(member.Kind)
			} else {
				output = inst.Effect(scaled-float64(idx), inst.Params, inst.ID)
			}
		} else {
			output = inst.Effect(phase, inst.Params, inst.ID)
		}

		e.writeOutput(tx, member, output, inst.Blend)
	}
}

// zeroOutputForKind builds the "off" EffectOutput for a member outside its
// step-timing window, shaped to match what writeOutput expects for that
// target kind.
func zeroOutputForKind(kind TargetKind) EffectOutput {
	switch kind {
	case TargetColor:
		return EffectOutput{Kind: OutputColor}
	case TargetPosition:
		return EffectOutput{Kind: OutputPosition}
	default:
		return EffectOutput{Kind: OutputSlider}
	}
}

func mod1(v float64) float64 {
	v -= float64(int(v))
	if v < 0 {
		v += 1
	}
	return v
}

func (e *Engine) writeOutput(tx *transaction.ControllerTransaction, member ResolvedMember, output EffectOutput, blend BlendMode) {
	switch member.Kind {
	case TargetSlider:
		addr, err := e.registry.ResolveSlider(member.FixtureID)
		if err != nil {
			return
		}
		e.blendWrite(tx, addr, output.Slider, blend)

	case TargetColor:
		addrs, err := e.registry.ResolveColor(member.FixtureID)
		if err != nil {
			return
		}
		e.blendWrite(tx, addrs.Red, output.Color.R, blend)
		e.blendWrite(tx, addrs.Green, output.Color.G, blend)
		e.blendWrite(tx, addrs.Blue, output.Color.B, blend)

	case TargetPosition:
		addrs, err := e.registry.ResolvePosition(member.FixtureID)
		if err != nil {
			return
		}
		e.blendWrite(tx, addrs.Pan, output.Position.Pan, blend)
		e.blendWrite(tx, addrs.Tilt, output.Position.Tilt, blend)
	}
}

func (e *Engine) blendWrite(tx *transaction.ControllerTransaction, addr fixture.Address, effectOutput float64, blend BlendMode) {
	base, ok := tx.Read(addr.UniverseKey, addr.Channel)
	if !ok {
		return
	}
	blended := ApplyBlend(blend, float64(base), effectOutput)
	_ = tx.Write(addr.UniverseKey, addr.Channel, universe.ChannelChange{
		Target:       universe.ChannelValue(blended + 0.5), // round half up, matches clampByte elsewhere
		FadeMs:       0,
		FadeBehavior: universe.FadeBehaviorSnap,
	})
}
