package fx

// FxTiming controls how an instance's cycle maps onto the beat grid
// (spec.md §3).
type FxTiming struct {
	BeatDivision float64 // beats per cycle
	PhaseOffset  float64 // additional offset in [0,1) applied to every member
}

// FxInstance is one active effect application (spec.md §3).
type FxInstance struct {
	ID           string
	Effect       Effect
	EffectName   string // for debug/enumeration surfaces; not used for dispatch
	Target       FxTarget
	Timing       FxTiming
	Blend        BlendMode
	Distribution DistributionStrategy
	Params       map[string]float64

	paused     bool
	stepTiming bool
}

// NewInstance builds an FxInstance with the catalog's default stepTiming
// for the named effect unless overridden.
func NewInstance(id string, effect Effect, effectName string, target FxTarget, timing FxTiming, blend BlendMode, distribution DistributionStrategy, params map[string]float64) *FxInstance {
	return &FxInstance{
		ID:           id,
		Effect:       effect,
		EffectName:   effectName,
		Target:       target,
		Timing:       timing,
		Blend:        blend,
		Distribution: distribution,
		Params:       params,
		stepTiming:   DefaultStepTiming(effectName),
	}
}

// WithStepTiming overrides the stepTiming flag and returns the instance for
// chaining at construction time.
func (i *FxInstance) WithStepTiming(v bool) *FxInstance {
	i.stepTiming = v
	return i
}

// Paused reports whether the instance is currently paused.
func (i *FxInstance) Paused() bool { return i.paused }

// EffectiveDivision is timing.beatDivision stretched by the distribution's
// distinct-slot count when step timing is enabled (spec.md §4.4).
func (i *FxInstance) EffectiveDivision(groupSize int) float64 {
	if !i.stepTiming || i.Distribution == nil {
		return i.Timing.BeatDivision
	}
	slots := i.Distribution.DistinctSlots(groupSize)
	if slots <= 0 {
		slots = 1
	}
	return i.Timing.BeatDivision * float64(slots)
}
