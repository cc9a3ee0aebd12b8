package fx

import (
	"testing"

	"github.com/lacylights/dmxcore/internal/clock"
	"github.com/lacylights/dmxcore/internal/fixture"
	"github.com/lacylights/dmxcore/internal/transaction"
	"github.com/lacylights/dmxcore/internal/universe"
)

type fakeController struct {
	values map[universe.ChannelId]universe.ChannelValue
}

func newFakeController(initial map[universe.ChannelId]universe.ChannelValue) *fakeController {
	if initial == nil {
		initial = make(map[universe.ChannelId]universe.ChannelValue)
	}
	return &fakeController{values: initial}
}

func (f *fakeController) CurrentValue(channel universe.ChannelId) universe.ChannelValue {
	return f.values[channel]
}

func (f *fakeController) ScheduleBatch(changes map[universe.ChannelId]universe.ChannelChange) {
	for ch, change := range changes {
		f.values[ch] = change.Target
	}
}

func setup(initial map[universe.ChannelId]universe.ChannelValue) (*fakeController, *fixture.Registry, transaction.Registry) {
	ctrl := newFakeController(initial)
	reg := fixture.NewRegistry()
	txReg := transaction.NewMapRegistry(map[string]transaction.Controller{"0.0": ctrl})
	return ctrl, reg, txReg
}

// Blend composition: base=100, FX A writes 50 Additive, FX B writes 200 Max.
// Expect final = Max(100+50, 200) = 200 (spec.md S5).
func TestApplyBlend_Composition(t *testing.T) {
	base := 100.0
	afterA := ApplyBlend(BlendAdditive, base, 50)
	if afterA != 150 {
		t.Fatalf("after additive = %v, want 150", afterA)
	}
	afterB := ApplyBlend(BlendMax, afterA, 200)
	if afterB != 200 {
		t.Fatalf("after max = %v, want 200", afterB)
	}
}

func TestApplyBlend_MaxMinIdempotentOnEqualValues(t *testing.T) {
	if got := ApplyBlend(BlendMax, 120, 120); got != 120 {
		t.Errorf("Max(120,120) = %v, want 120", got)
	}
	if got := ApplyBlend(BlendMin, 120, 120); got != 120 {
		t.Errorf("Min(120,120) = %v, want 120", got)
	}
}

func TestApplyBlend_ClampsToByteRange(t *testing.T) {
	if got := ApplyBlend(BlendAdditive, 200, 200); got != 255 {
		t.Errorf("Additive(200,200) = %v, want 255", got)
	}
}

func TestEasingIndependent_StaticValueEffect(t *testing.T) {
	out := StaticValue(0.37, map[string]float64{"value": 42}, "")
	if out.Slider != 42 {
		t.Errorf("StaticValue = %v, want 42", out.Slider)
	}
}

func TestSineWave_BoundedRange(t *testing.T) {
	for phase := 0.0; phase < 1.0; phase += 0.05 {
		out := SineWave(phase, nil, "")
		if out.Slider < 0 || out.Slider > 255 {
			t.Fatalf("SineWave(%v) = %v, out of range", phase, out.Slider)
		}
	}
}

func TestDistribution_LinearDistinctSlots(t *testing.T) {
	l := Linear{}
	n := 4
	seen := make(map[float64]bool)
	for i := 0; i < n; i++ {
		seen[l.Offset(i, n, fixture.NormalizedPosition(i, n))] = true
	}
	if len(seen) != l.DistinctSlots(n) {
		t.Errorf("distinct offsets = %d, DistinctSlots() = %d", len(seen), l.DistinctSlots(n))
	}
}

func TestDistribution_UnifiedGivesOneSlot(t *testing.T) {
	u := Unified{}
	if u.DistinctSlots(4) != 1 {
		t.Errorf("Unified.DistinctSlots(4) = %d, want 1", u.DistinctSlots(4))
	}
	for i := 0; i < 4; i++ {
		if off := u.Offset(i, 4, 0); off != 0 {
			t.Errorf("Unified.Offset(%d,...) = %v, want 0", i, off)
		}
	}
}

func TestDistribution_OffsetsWithinUnitInterval(t *testing.T) {
	strategies := []DistributionStrategy{
		Linear{}, Unified{}, CenterOut{}, EdgesIn{}, Reverse{}, Split{}, PingPong{}, Positional{}, RandomStrategy{Seed: 7},
	}
	n := 5
	for _, s := range strategies {
		for i := 0; i < n; i++ {
			off := s.Offset(i, n, fixture.NormalizedPosition(i, n))
			if off < 0 || off > 1 {
				t.Errorf("%s.Offset(%d,%d,...) = %v, out of [0,1]", s.Name(), i, n, off)
			}
		}
	}
}

// S4 — tempo step chase: 4 fixtures, StaticValue(200), BeatDivision=1,
// Linear distribution, stepTiming=true. Over one 4-beat cycle exactly one
// member at a time should show 200, the rest 0.
func TestEngine_TempoStepChase(t *testing.T) {
	ctrl, reg, txReg := setup(nil)
	for i := 0; i < 4; i++ {
		id := string(rune('A' + i))
		reg.AddFixture(&fixture.Fixture{ID: id, Slider: &fixture.SliderChannel{Address: fixture.Address{UniverseKey: "0.0", Channel: universe.ChannelId(i + 1)}}})
	}
	reg.DefineGroup("chase", []string{"A", "B", "C", "D"})

	mclock := clock.New(120)
	engine := NewEngine(reg, txReg, mclock)

	inst := NewInstance("chase-1", StaticValue, "STATIC", NewGroupTarget("chase", TargetSlider),
		FxTiming{BeatDivision: 1}, BlendOverride, Linear{}, map[string]float64{"value": 200})
	inst.WithStepTiming(true)
	if _, err := engine.Add(inst); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// A full cycle spans 4 beats * 24 ticks/beat = 96 ticks. Sample one
	// tick per quarter of the cycle: exactly one member must be lit at
	// each sample, and the member lit on the previous sample must have
	// returned to 0 rather than staying latched at 200.
	ticksPerCycle := int64(4 * clock.TicksPerBeat)
	var lastLit universe.ChannelId
	seen := make(map[universe.ChannelId]bool)

	for step := int64(0); step < 4; step++ {
		tickNumber := step * ticksPerCycle / 4
		engine.onTick(clock.Tick{Number: tickNumber})

		var lit universe.ChannelId
		litCount := 0
		for ch := universe.ChannelId(1); ch <= 4; ch++ {
			switch ctrl.CurrentValue(ch) {
			case 200:
				lit = ch
				litCount++
			case 0:
			default:
				t.Errorf("tick %d: channel %d = %d, want 0 or 200", tickNumber, ch, ctrl.CurrentValue(ch))
			}
		}
		if litCount != 1 {
			t.Fatalf("tick %d: lit member count = %d, want exactly 1", tickNumber, litCount)
		}
		if lastLit != 0 && lit == lastLit {
			t.Errorf("tick %d: member %d still lit from the previous step, want it back at 0", tickNumber, lit)
		}
		seen[lit] = true
		lastLit = lit
	}

	if len(seen) != 4 {
		t.Errorf("distinct members lit across the cycle = %d, want 4", len(seen))
	}
}

func TestLookupEffect_ColourCycleAndFadeAreRegistered(t *testing.T) {
	cycle, ok := LookupEffect("COLOUR_CYCLE")
	if !ok {
		t.Fatal("COLOUR_CYCLE not found in registry")
	}
	out := cycle(0, nil, "")
	if out.Kind != OutputColor {
		t.Errorf("COLOUR_CYCLE output kind = %v, want OutputColor", out.Kind)
	}
	if out.Color.R != 255 || out.Color.G != 0 || out.Color.B != 0 {
		t.Errorf("COLOUR_CYCLE(phase=0) = %+v, want first palette entry red", out.Color)
	}

	fade, ok := LookupEffect("COLOUR_FADE")
	if !ok {
		t.Fatal("COLOUR_FADE not found in registry")
	}
	start := fade(0, nil, "")
	mid := fade(0.5, nil, "")
	if start.Kind != OutputColor || mid.Kind != OutputColor {
		t.Error("COLOUR_FADE output kind must be OutputColor")
	}
	if start.Color == mid.Color {
		t.Errorf("COLOUR_FADE should vary across phase, got %+v at both 0 and 0.5", start.Color)
	}

	names := EffectNames()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["COLOUR_CYCLE"] || !found["COLOUR_FADE"] {
		t.Errorf("EffectNames() = %v, missing COLOUR_CYCLE or COLOUR_FADE", names)
	}
}

func TestEngine_RemoveStopsEvaluation(t *testing.T) {
	_, reg, txReg := setup(nil)
	reg.AddFixture(&fixture.Fixture{ID: "p1", Slider: &fixture.SliderChannel{Address: fixture.Address{UniverseKey: "0.0", Channel: 1}}})

	mclock := clock.New(120)
	engine := NewEngine(reg, txReg, mclock)
	id, _ := engine.Add(NewInstance("", StaticValue, "STATIC", NewSliderTarget("p1"), FxTiming{BeatDivision: 1}, BlendOverride, Linear{}, nil))

	engine.Remove(id)
	if len(engine.List()) != 0 {
		t.Error("expected no instances after Remove")
	}
}

func TestEngine_AddRejectsZeroBeatDivision(t *testing.T) {
	_, reg, txReg := setup(nil)
	mclock := clock.New(120)
	engine := NewEngine(reg, txReg, mclock)

	_, err := engine.Add(NewInstance("bad", StaticValue, "STATIC", NewSliderTarget("missing"), FxTiming{BeatDivision: 0}, BlendOverride, Linear{}, nil))
	if err == nil {
		t.Error("expected error for zero BeatDivision")
	}
}

func TestEngine_PauseSkipsEvaluation(t *testing.T) {
	ctrl, reg, txReg := setup(map[universe.ChannelId]universe.ChannelValue{1: 5})
	reg.AddFixture(&fixture.Fixture{ID: "p1", Slider: &fixture.SliderChannel{Address: fixture.Address{UniverseKey: "0.0", Channel: 1}}})

	mclock := clock.New(120)
	engine := NewEngine(reg, txReg, mclock)
	id, _ := engine.Add(NewInstance("", StaticValue, "STATIC", NewSliderTarget("p1"), FxTiming{BeatDivision: 1}, BlendOverride, Linear{}, map[string]float64{"value": 200}))
	engine.Pause(id)

	engine.onTick(clock.Tick{})

	if got := ctrl.CurrentValue(1); got != 5 {
		t.Errorf("channel 1 = %d, want unchanged at 5 (instance paused)", got)
	}
}

func TestEngine_GroupTargetMismatchSkipsTick(t *testing.T) {
	_, reg, txReg := setup(nil)
	mclock := clock.New(120)
	engine := NewEngine(reg, txReg, mclock)

	id, err := engine.Add(NewInstance("", StaticValue, "STATIC", NewGroupTarget("nonexistent-group", TargetSlider), FxTiming{BeatDivision: 1}, BlendOverride, Linear{}, nil))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Should not panic even though the group resolves to zero members.
	engine.onTick(clock.Tick{})

	if len(engine.List()) != 1 || engine.List()[0].ID != id {
		t.Error("instance should remain registered after a mismatch tick")
	}
}
