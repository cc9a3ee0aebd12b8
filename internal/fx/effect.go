package fx

import (
	"math"
	"math/rand"
	"sort"
)

// OutputKind tags which shape of output an EffectOutput carries, matching
// the FxTarget it's meant to drive (spec.md §3 Effect).
type OutputKind int

const (
	OutputSlider OutputKind = iota
	OutputColor
	OutputPosition
)

// RGB is a colour triple, each channel 0..255.
type RGB struct {
	R, G, B float64
}

// PanTilt is a position pair, each axis 0..255.
type PanTilt struct {
	Pan, Tilt float64
}

// EffectOutput is the tagged result of evaluating an Effect at one phase.
type EffectOutput struct {
	Kind     OutputKind
	Slider   float64
	Color    RGB
	Position PanTilt
}

// Effect is a pure phase function: same phase and params always produce
// the same output, with no state carried between ticks (spec.md §3). The
// instanceID is available for effects (Flicker) whose "pseudo-random
// stream" must be stable per instance rather than per process.
type Effect func(phase float64, params map[string]float64, instanceID string) EffectOutput

// paramOr reads a float parameter with a default.
func paramOr(params map[string]float64, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func slider(v float64) EffectOutput {
	return EffectOutput{Kind: OutputSlider, Slider: clamp255(v)}
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// --- Dimmer slider effects ---------------------------------------------

func SineWave(phase float64, params map[string]float64, _ string) EffectOutput {
	min := paramOr(params, "min", 0)
	max := paramOr(params, "max", 255)
	v := min + (max-min)*(math.Sin(2*math.Pi*phase)+1)/2
	return slider(v)
}

func Pulse(phase float64, params map[string]float64, _ string) EffectOutput {
	duty := paramOr(params, "duty", 0.5)
	max := paramOr(params, "max", 255)
	if phase < duty {
		return slider(max)
	}
	return slider(0)
}

func RampUp(phase float64, params map[string]float64, _ string) EffectOutput {
	max := paramOr(params, "max", 255)
	return slider(phase * max)
}

func RampDown(phase float64, params map[string]float64, _ string) EffectOutput {
	max := paramOr(params, "max", 255)
	return slider((1 - phase) * max)
}

func Triangle(phase float64, params map[string]float64, _ string) EffectOutput {
	max := paramOr(params, "max", 255)
	var t float64
	if phase < 0.5 {
		t = phase * 2
	} else {
		t = (1 - phase) * 2
	}
	return slider(t * max)
}

func Strobe(phase float64, params map[string]float64, _ string) EffectOutput {
	duty := paramOr(params, "duty", 0.1)
	max := paramOr(params, "max", 255)
	if phase < duty {
		return slider(max)
	}
	return slider(0)
}

func Flicker(phase float64, params map[string]float64, instanceID string) EffectOutput {
	max := paramOr(params, "max", 255)
	// Quantize phase into discrete flicker steps so the value is stable
	// for an instant rather than changing every evaluation.
	steps := paramOr(params, "steps", 32)
	bucket := int(phase * steps)
	seed := seedFromID(instanceID) ^ int64(bucket)*2654435761
	src := rand.New(rand.NewSource(seed))
	return slider(src.Float64() * max)
}

func Breathe(phase float64, params map[string]float64, _ string) EffectOutput {
	min := paramOr(params, "min", 0)
	max := paramOr(params, "max", 255)
	// Smoother than SineWave at the extremes: squared sine gives longer
	// dwell near the peak and trough, characteristic of a breathing cue.
	s := math.Sin(math.Pi * phase)
	v := min + (max-min)*s*s
	return slider(v)
}

func StaticValue(_ float64, params map[string]float64, _ string) EffectOutput {
	return slider(paramOr(params, "value", 255))
}

// --- Colour effects ------------------------------------------------------

func colorOut(r, g, b float64) EffectOutput {
	return EffectOutput{Kind: OutputColor, Color: RGB{clamp255(r), clamp255(g), clamp255(b)}}
}

// hsvToRGB converts h in [0,1), s,v in [0,1] to 0..255 RGB.
func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return r * 255, g * 255, b * 255
}

func RainbowCycle(phase float64, params map[string]float64, _ string) EffectOutput {
	sat := paramOr(params, "saturation", 1)
	val := paramOr(params, "value", 1)
	r, g, b := hsvToRGB(phase, sat, val)
	return colorOut(r, g, b)
}

// NewColourCycleEffect steps through a fixed palette, one colour per
// distinct slot of the phase cycle. Effect params are float-only, so the
// palette is captured via closure rather than passed through params.
func NewColourCycleEffect(palette []RGB) Effect {
	return func(phase float64, params map[string]float64, instanceID string) EffectOutput {
		if len(palette) == 0 {
			return colorOut(0, 0, 0)
		}
		idx := int(phase*float64(len(palette))) % len(palette)
		if idx < 0 {
			idx = 0
		}
		c := palette[idx]
		return colorOut(c.R, c.G, c.B)
	}
}

func ColourStrobe(phase float64, params map[string]float64, _ string) EffectOutput {
	duty := paramOr(params, "duty", 0.1)
	r := paramOr(params, "r", 255)
	g := paramOr(params, "g", 255)
	b := paramOr(params, "b", 255)
	if phase < duty {
		return colorOut(r, g, b)
	}
	return colorOut(0, 0, 0)
}

func ColourPulse(phase float64, params map[string]float64, _ string) EffectOutput {
	r := paramOr(params, "r", 255)
	g := paramOr(params, "g", 255)
	b := paramOr(params, "b", 255)
	s := (math.Sin(2*math.Pi*phase) + 1) / 2
	return colorOut(r*s, g*s, b*s)
}

// NewColourFadeEffect fades between two fixed colours over the cycle.
func NewColourFadeEffect(from, to RGB) Effect {
	return func(phase float64, _ map[string]float64, _ string) EffectOutput {
		t := (math.Sin(2*math.Pi*phase-math.Pi/2) + 1) / 2
		return colorOut(
			from.R+(to.R-from.R)*t,
			from.G+(to.G-from.G)*t,
			from.B+(to.B-from.B)*t,
		)
	}
}

// --- Position effects ----------------------------------------------------

func positionOut(pan, tilt float64) EffectOutput {
	return EffectOutput{Kind: OutputPosition, Position: PanTilt{clamp255(pan), clamp255(tilt)}}
}

func Circle(phase float64, params map[string]float64, _ string) EffectOutput {
	centerPan := paramOr(params, "centerPan", 127)
	centerTilt := paramOr(params, "centerTilt", 127)
	radius := paramOr(params, "radius", 100)
	pan := centerPan + radius*math.Cos(2*math.Pi*phase)
	tilt := centerTilt + radius*math.Sin(2*math.Pi*phase)
	return positionOut(pan, tilt)
}

func Figure8(phase float64, params map[string]float64, _ string) EffectOutput {
	centerPan := paramOr(params, "centerPan", 127)
	centerTilt := paramOr(params, "centerTilt", 127)
	radius := paramOr(params, "radius", 100)
	t := 2 * math.Pi * phase
	pan := centerPan + radius*math.Sin(t)
	tilt := centerTilt + radius*math.Sin(t)*math.Cos(t)
	return positionOut(pan, tilt)
}

func Sweep(phase float64, params map[string]float64, _ string) EffectOutput {
	minPan := paramOr(params, "minPan", 0)
	maxPan := paramOr(params, "maxPan", 255)
	tilt := paramOr(params, "tilt", 127)
	t := Triangle(phase, nil, "").Slider / 255
	pan := minPan + (maxPan-minPan)*t
	return positionOut(pan, tilt)
}

func PanSweep(phase float64, params map[string]float64, id string) EffectOutput {
	return Sweep(phase, params, id)
}

func TiltSweep(phase float64, params map[string]float64, _ string) EffectOutput {
	minTilt := paramOr(params, "minTilt", 0)
	maxTilt := paramOr(params, "maxTilt", 255)
	pan := paramOr(params, "pan", 127)
	t := Triangle(phase, nil, "").Slider / 255
	tilt := minTilt + (maxTilt-minTilt)*t
	return positionOut(pan, tilt)
}

func RandomPosition(phase float64, params map[string]float64, instanceID string) EffectOutput {
	steps := paramOr(params, "steps", 8)
	bucket := int(phase * steps)
	seed := seedFromID(instanceID) ^ int64(bucket)*40503
	src := rand.New(rand.NewSource(seed))
	minPan := paramOr(params, "minPan", 0)
	maxPan := paramOr(params, "maxPan", 255)
	minTilt := paramOr(params, "minTilt", 0)
	maxTilt := paramOr(params, "maxTilt", 255)
	pan := minPan + src.Float64()*(maxPan-minPan)
	tilt := minTilt + src.Float64()*(maxTilt-minTilt)
	return positionOut(pan, tilt)
}

// defaultColourCyclePalette and defaultColourFadeFrom/To give the
// registry's COLOUR_CYCLE and COLOUR_FADE entries fixed parameters, since
// Effect params are float-only and can't carry an arbitrary-length palette
// or colour pair through the instance's Params map.
var defaultColourCyclePalette = []RGB{
	{R: 255, G: 0, B: 0},
	{R: 0, G: 255, B: 0},
	{R: 0, G: 0, B: 255},
	{R: 255, G: 255, B: 255},
}

var defaultColourFadeFrom = RGB{R: 255, G: 0, B: 0}
var defaultColourFadeTo = RGB{R: 0, G: 0, B: 255}

// Registry of named effects, resolved by LookupEffect and enumerated by
// EffectNames (spec.md §6 "effect library: enumerated list of effect type
// names").
var namedEffects = map[string]Effect{
	"SINE_WAVE":  SineWave,
	"PULSE":      Pulse,
	"RAMP_UP":    RampUp,
	"RAMP_DOWN":  RampDown,
	"TRIANGLE":   Triangle,
	"STROBE":     Strobe,
	"FLICKER":    Flicker,
	"BREATHE":    Breathe,
	"STATIC":     StaticValue,

	"RAINBOW_CYCLE": RainbowCycle,
	"COLOUR_STROBE": ColourStrobe,
	"COLOUR_PULSE":  ColourPulse,
	"COLOUR_CYCLE":  NewColourCycleEffect(defaultColourCyclePalette),
	"COLOUR_FADE":   NewColourFadeEffect(defaultColourFadeFrom, defaultColourFadeTo),

	"CIRCLE":           Circle,
	"FIGURE_8":         Figure8,
	"SWEEP":            Sweep,
	"PAN_SWEEP":        PanSweep,
	"TILT_SWEEP":       TiltSweep,
	"RANDOM_POSITION":  RandomPosition,
}

// stepTimingDefaults lists the effects that default to step timing
// (spec.md §4.4 effect defaults).
var stepTimingDefaults = map[string]bool{
	"STATIC":    true,
	"PULSE":     true,
	"STROBE":    true,
	"COLOUR_STROBE": true,
}

// LookupEffect resolves a named effect from the built-in catalog.
func LookupEffect(name string) (Effect, bool) {
	e, ok := namedEffects[name]
	return e, ok
}

// DefaultStepTiming reports the spec-mandated stepTiming default for a
// named built-in effect. Names absent from stepTimingDefaults default to
// false, matching "continuous waves default stepTiming=false".
func DefaultStepTiming(name string) bool {
	return stepTimingDefaults[name]
}

// EffectNames lists every built-in effect name, sorted for stable output.
func EffectNames() []string {
	names := make([]string, 0, len(namedEffects))
	for name := range namedEffects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
