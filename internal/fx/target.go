package fx

import (
	"fmt"

	"github.com/lacylights/dmxcore/internal/fixture"
)

// TargetKind tags which variant of FxTarget a value holds (spec.md §3).
type TargetKind int

const (
	TargetSlider TargetKind = iota
	TargetColor
	TargetPosition
	TargetGroup
)

// FxTarget is a tagged union over a single fixture output or a named group
// of fixtures sharing one output kind.
type FxTarget struct {
	Kind FixtureOrGroup

	// Single-fixture forms.
	FixtureID string

	// Group form: GroupName + the kind of output each member exposes.
	GroupName string
	GroupKind TargetKind
}

// FixtureOrGroup distinguishes a single-fixture target from a group target.
type FixtureOrGroup int

const (
	SingleFixture FixtureOrGroup = iota
	Group
)

// ResolvedMember is one concrete member of an expanded FxTarget, carrying
// its group index for distribution-offset computation.
type ResolvedMember struct {
	Index       int
	GroupSize   int
	Position    float64
	Kind        TargetKind
	FixtureID   string
}

// Resolve expands an FxTarget into its concrete members. A single-fixture
// target resolves to one member at index 0 of group size 1. A group target
// resolves to every live member of the named group, in registration order.
// Per spec.md §7 GroupTargetMismatch, members whose fixture no longer
// exists are simply absent from the result — not an error.
func Resolve(target FxTarget, registry *fixture.Registry) ([]ResolvedMember, error) {
	if target.Kind == SingleFixture {
		if _, ok := registry.Fixture(target.FixtureID); !ok {
			return nil, nil
		}
		return []ResolvedMember{{Index: 0, GroupSize: 1, Position: 0, Kind: kindForSingle(target), FixtureID: target.FixtureID}}, nil
	}

	ids := registry.GroupMembers(target.GroupName)
	n := len(ids)
	members := make([]ResolvedMember, 0, n)
	for i, id := range ids {
		members = append(members, ResolvedMember{
			Index:     i,
			GroupSize: n,
			Position:  fixture.NormalizedPosition(i, n),
			Kind:      target.GroupKind,
			FixtureID: id,
		})
	}
	return members, nil
}

func kindForSingle(target FxTarget) TargetKind {
	// A single-fixture FxTarget is constructed with GroupKind carrying the
	// intended output kind even though it isn't a group; see NewSliderTarget
	// and friends.
	return target.GroupKind
}

// NewSliderTarget targets a single fixture's slider channel.
func NewSliderTarget(fixtureID string) FxTarget {
	return FxTarget{Kind: SingleFixture, FixtureID: fixtureID, GroupKind: TargetSlider}
}

// NewColorTarget targets a single fixture's RGB channels.
func NewColorTarget(fixtureID string) FxTarget {
	return FxTarget{Kind: SingleFixture, FixtureID: fixtureID, GroupKind: TargetColor}
}

// NewPositionTarget targets a single fixture's pan/tilt channels.
func NewPositionTarget(fixtureID string) FxTarget {
	return FxTarget{Kind: SingleFixture, FixtureID: fixtureID, GroupKind: TargetPosition}
}

// NewGroupTarget targets every member of a named group, all sharing kind.
func NewGroupTarget(groupName string, kind TargetKind) FxTarget {
	return FxTarget{Kind: Group, GroupName: groupName, GroupKind: kind}
}

// GroupSize returns the live membership count for a target without
// allocating a full Resolve result. The engine itself sizes groups from
// the Resolve result and does not call this.
func GroupSize(target FxTarget, registry *fixture.Registry) int {
	if target.Kind == SingleFixture {
		return 1
	}
	return len(registry.GroupMembers(target.GroupName))
}

func (k TargetKind) String() string {
	switch k {
	case TargetSlider:
		return "SLIDER"
	case TargetColor:
		return "COLOR"
	case TargetPosition:
		return "POSITION"
	default:
		return fmt.Sprintf("TARGET_KIND(%d)", int(k))
	}
}
