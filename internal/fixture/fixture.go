// Package fixture provides the minimal channel-to-fixture indexing and
// group/distribution addressing math that FxTarget resolution is built on
// (spec.md §2 "group/distribution math for FX targeting"). Fixture channel
// layouts are data, not code (spec.md §9) — this package only knows how to
// turn a fixture id into concrete universe/channel addresses; it carries no
// manufacturer catalog.
package fixture

import (
	"fmt"
	"sort"

	"github.com/lacylights/dmxcore/internal/universe"
)

// Address identifies a single DMX channel within a universe, addressed by
// the universe registry key used throughout internal/transaction.
type Address struct {
	UniverseKey string
	Channel     universe.ChannelId
}

// SliderChannel is a single-channel fixture output (dimmer, gobo, etc).
type SliderChannel struct {
	Address Address
}

// ColorChannels is an RGB triple, each channel independently addressed.
type ColorChannels struct {
	Red, Green, Blue Address
}

// PositionChannels is a pan/tilt pair.
type PositionChannels struct {
	Pan, Tilt Address
}

// Fixture is a minimal addressable unit: an id plus whichever channel
// groups it exposes. A real catalog entry may populate more than one.
type Fixture struct {
	ID       string
	Slider   *SliderChannel
	Color    *ColorChannels
	Position *PositionChannels
}

// Registry indexes fixtures by id and resolves named groups to ordered
// fixture lists. Ordering within a group is stable and is what
// DistributionStrategy's memberIndex refers to.
type Registry struct {
	fixtures map[string]*Fixture
	groups   map[string][]string // group name -> ordered fixture ids
}

// NewRegistry creates an empty fixture/group index.
func NewRegistry() *Registry {
	return &Registry{
		fixtures: make(map[string]*Fixture),
		groups:   make(map[string][]string),
	}
}

// AddFixture registers or replaces a fixture definition.
func (r *Registry) AddFixture(f *Fixture) {
	r.fixtures[f.ID] = f
}

// Fixture looks up a fixture by id.
func (r *Registry) Fixture(id string) (*Fixture, bool) {
	f, ok := r.fixtures[id]
	return f, ok
}

// DefineGroup sets the ordered membership of a named group. Order is
// preserved as given; callers control the "normalizedPosition" axis by
// the order they supply.
func (r *Registry) DefineGroup(name string, fixtureIDs []string) {
	cp := make([]string, len(fixtureIDs))
	copy(cp, fixtureIDs)
	r.groups[name] = cp
}

// GroupMembers returns the ordered fixture ids of a group. Unknown groups
// resolve to an empty, non-nil slice (spec.md §7 GroupTargetMismatch: the
// engine skips evaluation for that tick rather than erroring).
func (r *Registry) GroupMembers(name string) []string {
	members, ok := r.groups[name]
	if !ok {
		return []string{}
	}
	existing := make([]string, 0, len(members))
	for _, id := range members {
		if _, ok := r.fixtures[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing
}

// SortedGroupNames returns group names in lexical order, useful for
// deterministic iteration in debug output.
func (r *Registry) SortedGroupNames() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSlider returns the slider channel address for a fixture, or an
// error if the fixture has no slider output.
func (r *Registry) ResolveSlider(fixtureID string) (Address, error) {
	f, ok := r.fixtures[fixtureID]
	if !ok {
		return Address{}, fmt.Errorf("fixture %q not found", fixtureID)
	}
	if f.Slider == nil {
		return Address{}, fmt.Errorf("fixture %q has no slider channel", fixtureID)
	}
	return f.Slider.Address, nil
}

// ResolveColor returns the RGB channel addresses for a fixture.
func (r *Registry) ResolveColor(fixtureID string) (ColorChannels, error) {
	f, ok := r.fixtures[fixtureID]
	if !ok {
		return ColorChannels{}, fmt.Errorf("fixture %q not found", fixtureID)
	}
	if f.Color == nil {
		return ColorChannels{}, fmt.Errorf("fixture %q has no colour channels", fixtureID)
	}
	return *f.Color, nil
}

// ResolvePosition returns the pan/tilt channel addresses for a fixture.
func (r *Registry) ResolvePosition(fixtureID string) (PositionChannels, error) {
	f, ok := r.fixtures[fixtureID]
	if !ok {
		return PositionChannels{}, fmt.Errorf("fixture %q not found", fixtureID)
	}
	if f.Position == nil {
		return PositionChannels{}, fmt.Errorf("fixture %q has no position channels", fixtureID)
	}
	return *f.Position, nil
}

// NormalizedPosition returns memberIndex's position within a group of the
// given size, mapped to [0,1]. A group of size 1 returns 0.
func NormalizedPosition(memberIndex, groupSize int) float64 {
	if groupSize <= 1 {
		return 0
	}
	return float64(memberIndex) / float64(groupSize-1)
}
