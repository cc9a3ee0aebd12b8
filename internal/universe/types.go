// Package universe owns per-universe DMX channel state: the 512-byte
// frame, the per-channel fade state machine, and the coalescing Art-Net
// broadcaster. See SPEC_FULL.md for the module's place in the pipeline.
package universe

import (
	"time"

	"github.com/lacylights/dmxcore/pkg/artnet"
)

// ChannelId identifies a single DMX channel, 1..512.
type ChannelId int

// MinChannel and MaxChannel bound the valid ChannelId range.
const (
	MinChannel ChannelId = 1
	MaxChannel ChannelId = 512
	Size                 = 512
)

// InRange reports whether id is a valid, addressable channel.
func (id ChannelId) InRange() bool {
	return id >= MinChannel && id <= MaxChannel
}

// ChannelValue is an unsigned 8-bit DMX value.
type ChannelValue = byte

// FadeBehavior tags how a ChannelChange's fade duration is honored.
// SPEC_FULL.md §4 item 4: some channels (gobo index, color macros) must
// never be interpolated even when a fade duration is requested.
type FadeBehavior int

const (
	// FadeBehaviorFade interpolates start->target over the requested duration.
	FadeBehaviorFade FadeBehavior = iota
	// FadeBehaviorSnap jumps to target immediately regardless of duration.
	FadeBehaviorSnap
	// FadeBehaviorSnapEnd holds the start value until the duration elapses,
	// then jumps to target.
	FadeBehaviorSnapEnd
)

// ChannelChange describes a requested write to one channel.
type ChannelChange struct {
	Target       ChannelValue
	FadeMs       uint32
	Curve        EasingCurve
	FadeBehavior FadeBehavior
}

// ChannelDiff maps changed channel ids to their newly emitted value.
type ChannelDiff map[ChannelId]ChannelValue

// Listener is invoked after each emitted frame with the set of channels
// whose emitted byte differs from the previously emitted byte. Listeners
// are invoked synchronously from the sender loop and must not block.
type Listener func(diff ChannelDiff)

// Transport abstracts the wire so tests can substitute a fake sender.
// *artnet.Transport satisfies this interface.
type Transport interface {
	Send(packet []byte) error
	Close() error
}

// Config configures a single UniverseController.
type Config struct {
	Address artnet.Address

	CadenceMs              int // active-rate emission interval, default 25
	FadeStepMs             int // fader re-sample interval, default 10
	RefreshMs              int // idle keep-alive interval when NeedsRefresh, default 1000
	MaxConsecutiveSendErrs int // default 20

	NeedsRefresh bool

	// Adaptive transmission (SPEC_FULL.md §4 item 1).
	IdleRateHz       int
	HighRateDuration time.Duration
}

// withDefaults fills zero-valued fields with the spec's §6 defaults.
func (c Config) withDefaults() Config {
	if c.CadenceMs <= 0 {
		c.CadenceMs = 25
	}
	if c.FadeStepMs <= 0 {
		c.FadeStepMs = 10
	}
	if c.RefreshMs <= 0 {
		c.RefreshMs = 1000
	}
	if c.MaxConsecutiveSendErrs <= 0 {
		c.MaxConsecutiveSendErrs = 20
	}
	if c.IdleRateHz <= 0 {
		c.IdleRateHz = 1
	}
	if c.HighRateDuration <= 0 {
		c.HighRateDuration = 2 * time.Second
	}
	return c
}
