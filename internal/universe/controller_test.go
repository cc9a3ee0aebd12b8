package universe

import (
	"sync"
	"testing"
	"time"

	"github.com/lacylights/dmxcore/pkg/artnet"
)

// fakeTransport records every sent packet for assertions and can be made to
// fail on demand to exercise the consecutive-error / fatal path.
type fakeTransport struct {
	mu      sync.Mutex
	packets [][]byte
	failing bool
	closed  bool
}

func (f *fakeTransport) Send(packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errSend
	}
	cp := make([]byte, len(packet))
	copy(cp, packet)
	f.packets = append(f.packets, cp)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.packets)
}

func (f *fakeTransport) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.packets) == 0 {
		return nil
	}
	return f.packets[len(f.packets)-1]
}

func (f *fakeTransport) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

type sendErr struct{}

func (sendErr) Error() string { return "simulated send failure" }

var errSend = sendErr{}

func testConfig() Config {
	return Config{
		Address:                artnet.Address{Subnet: 0, Universe: 0},
		CadenceMs:              5,
		FadeStepMs:             2,
		RefreshMs:              50,
		MaxConsecutiveSendErrs: 3,
		IdleRateHz:             10,
		HighRateDuration:       50 * time.Millisecond,
	}
}

// S1: instant set (FadeMs=0) is visible in CurrentValue immediately, with no
// intermediate interpolation frames required.
func TestScheduleChange_InstantSet(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.ScheduleChange(1, ChannelChange{Target: 200})

	if got := ctrl.CurrentValue(1); got != 200 {
		t.Fatalf("CurrentValue(1) = %d, want 200", got)
	}
	if ctrl.IsChannelFading(1) {
		t.Error("instant set should not leave channel fading")
	}
}

// S2: a linear fade reaches an intermediate value partway through and the
// exact target at/after its duration.
func TestScheduleChange_LinearFadeTiming(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(1, ChannelChange{Target: 100, FadeMs: 100, Curve: EasingLinear})

	time.Sleep(50 * time.Millisecond)
	mid := ctrl.CurrentValue(1)
	if mid <= 0 || mid >= 100 {
		t.Errorf("mid-fade value = %d, want strictly between 0 and 100", mid)
	}

	time.Sleep(100 * time.Millisecond)
	if got := ctrl.CurrentValue(1); got != 100 {
		t.Errorf("CurrentValue after fade completion = %d, want 100", got)
	}
	if ctrl.IsChannelFading(1) {
		t.Error("channel should not be fading after completion")
	}
}

// S3: restarting a fade mid-flight starts the new fade from the channel's
// currently visible value, not from the old fade's original start value.
func TestScheduleChange_FadeRestartUsesCurrentValue(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(1, ChannelChange{Target: 255, FadeMs: 200, Curve: EasingLinear})
	time.Sleep(60 * time.Millisecond)
	interrupted := ctrl.CurrentValue(1)
	if interrupted == 0 {
		t.Fatal("expected partial progress before restarting the fade")
	}

	ctrl.ScheduleChange(1, ChannelChange{Target: 0, FadeMs: 200, Curve: EasingLinear})
	time.Sleep(5 * time.Millisecond)
	afterRestart := ctrl.CurrentValue(1)

	if afterRestart > interrupted {
		t.Errorf("value after restart (%d) should move down from interrupted value (%d), not jump up", afterRestart, interrupted)
	}
}

// FadeBehaviorSnap ignores the requested duration and jumps immediately.
func TestScheduleChange_SnapBehaviorIgnoresDuration(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.ScheduleChange(1, ChannelChange{Target: 50, FadeMs: 5000, FadeBehavior: FadeBehaviorSnap})

	if got := ctrl.CurrentValue(1); got != 50 {
		t.Fatalf("CurrentValue(1) = %d, want 50 (snap should bypass the fade)", got)
	}
}

// FadeBehaviorSnapEnd holds the start value, then jumps at completion.
func TestScheduleChange_SnapEndHoldsUntilComplete(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(1, ChannelChange{Target: 10, FadeBehavior: FadeBehaviorSnap})
	ctrl.ScheduleChange(1, ChannelChange{Target: 200, FadeMs: 40, FadeBehavior: FadeBehaviorSnapEnd})

	time.Sleep(15 * time.Millisecond)
	if got := ctrl.CurrentValue(1); got != 10 {
		t.Errorf("mid-fade SnapEnd value = %d, want 10 (held)", got)
	}

	time.Sleep(60 * time.Millisecond)
	if got := ctrl.CurrentValue(1); got != 200 {
		t.Errorf("post-fade SnapEnd value = %d, want 200", got)
	}
}

// Out-of-range channel ids are rejected without panicking or error.
func TestOutOfRangeChannelIsNoOp(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.ScheduleChange(0, ChannelChange{Target: 5})
	ctrl.ScheduleChange(513, ChannelChange{Target: 5})

	if got := ctrl.CurrentValue(0); got != 0 {
		t.Errorf("CurrentValue(0) = %d, want 0", got)
	}
	if got := ctrl.CurrentValue(513); got != 0 {
		t.Errorf("CurrentValue(513) = %d, want 0", got)
	}
}

// ScheduleBatch applies every change in one critical section.
func TestScheduleBatch_Atomic(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.ScheduleBatch(map[ChannelId]ChannelChange{
		1: {Target: 10},
		2: {Target: 20},
		3: {Target: 30},
	})

	if got := ctrl.CurrentValue(1); got != 10 {
		t.Errorf("channel 1 = %d, want 10", got)
	}
	if got := ctrl.CurrentValue(2); got != 20 {
		t.Errorf("channel 2 = %d, want 20", got)
	}
	if got := ctrl.CurrentValue(3); got != 30 {
		t.Errorf("channel 3 = %d, want 30", got)
	}
}

// Overrides apply after fades, on top of the interpolated value.
func TestOverride_AppliesOverFadedValue(t *testing.T) {
	transport := &fakeTransport{}
	ctrl := NewUniverseController(testConfig(), transport)
	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(5, ChannelChange{Target: 1})
	ctrl.SetOverride(5, 255)

	time.Sleep(30 * time.Millisecond)
	last := transport.last()
	if last == nil {
		t.Fatal("expected at least one emitted frame")
	}
	if got := last[18+5-1]; got != 255 {
		t.Errorf("overridden channel byte = %d, want 255", got)
	}

	ctrl.ClearOverride(5)
	time.Sleep(30 * time.Millisecond)
	last = transport.last()
	if got := last[18+5-1]; got != 1 {
		t.Errorf("channel byte after ClearOverride = %d, want 1", got)
	}
}

// Listener receives only the channels whose emitted byte changed.
func TestSubscribe_DeliversDiffOnly(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), &fakeTransport{})

	var mu sync.Mutex
	var diffs []ChannelDiff
	ctrl.Subscribe(func(diff ChannelDiff) {
		mu.Lock()
		diffs = append(diffs, diff)
		mu.Unlock()
	})

	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(7, ChannelChange{Target: 88})
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, d := range diffs {
		if v, ok := d[7]; ok && v == 88 {
			found = true
		}
	}
	if !found {
		t.Error("expected a diff containing channel 7 = 88")
	}
}

// FadeToBlack zeroes every channel and cancels in-flight fades.
func TestFadeToBlack(t *testing.T) {
	ctrl := NewUniverseController(testConfig(), nil)
	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(1, ChannelChange{Target: 255, FadeMs: 500})
	time.Sleep(5 * time.Millisecond)

	ctrl.FadeToBlack()

	if got := ctrl.CurrentValue(1); got != 0 {
		t.Errorf("CurrentValue(1) after FadeToBlack = %d, want 0", got)
	}
	if ctrl.IsChannelFading(1) {
		t.Error("fade should be cancelled by FadeToBlack")
	}
}

// After more than MaxConsecutiveSendErrs consecutive transport failures,
// the sender reports fatal and stops trying.
func TestSenderLoop_FatalAfterConsecutiveErrors(t *testing.T) {
	transport := &fakeTransport{}
	transport.setFailing(true)

	cfg := testConfig()
	cfg.MaxConsecutiveSendErrs = 2
	ctrl := NewUniverseController(cfg, transport)
	ctrl.Start()
	defer ctrl.Stop()

	ctrl.ScheduleChange(1, ChannelChange{Target: 1})

	select {
	case err := <-ctrl.FatalErrors():
		if err == nil {
			t.Error("expected non-nil fatal error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fatal error after repeated send failures")
	}
}

// Stop emits one final frame reflecting the latest state before closing
// the transport.
func TestStop_EmitsFinalFrame(t *testing.T) {
	transport := &fakeTransport{}
	ctrl := NewUniverseController(testConfig(), transport)
	ctrl.Start()

	ctrl.ScheduleChange(9, ChannelChange{Target: 42})
	time.Sleep(10 * time.Millisecond)

	ctrl.Stop()

	if !transport.closed {
		t.Error("expected transport to be closed on Stop")
	}
	last := transport.last()
	if last == nil {
		t.Fatal("expected a final frame to have been sent")
	}
	if got := last[18+9-1]; got != 42 {
		t.Errorf("final frame channel 9 = %d, want 42", got)
	}
}
