package fixture

import "testing"

func TestRegistry_ResolveSlider(t *testing.T) {
	r := NewRegistry()
	r.AddFixture(&Fixture{ID: "par-1", Slider: &SliderChannel{Address: Address{UniverseKey: "0.0", Channel: 5}}})

	addr, err := r.ResolveSlider("par-1")
	if err != nil {
		t.Fatalf("ResolveSlider() error = %v", err)
	}
	if addr.Channel != 5 {
		t.Errorf("Channel = %d, want 5", addr.Channel)
	}
}

func TestRegistry_ResolveSlider_MissingFixture(t *testing.T) {
	r := NewRegistry()
	if _, err := r.ResolveSlider("nonexistent"); err == nil {
		t.Error("expected error for unknown fixture")
	}
}

func TestRegistry_ResolveSlider_NoSliderChannel(t *testing.T) {
	r := NewRegistry()
	r.AddFixture(&Fixture{ID: "mover-1", Position: &PositionChannels{}})
	if _, err := r.ResolveSlider("mover-1"); err == nil {
		t.Error("expected error for fixture with no slider channel")
	}
}

func TestRegistry_GroupMembers_DropsMissingFixtures(t *testing.T) {
	r := NewRegistry()
	r.AddFixture(&Fixture{ID: "par-1"})
	r.DefineGroup("wash", []string{"par-1", "par-2-does-not-exist"})

	members := r.GroupMembers("wash")
	if len(members) != 1 || members[0] != "par-1" {
		t.Errorf("GroupMembers() = %v, want [par-1]", members)
	}
}

func TestRegistry_GroupMembers_UnknownGroup(t *testing.T) {
	r := NewRegistry()
	members := r.GroupMembers("nonexistent")
	if members == nil {
		t.Error("expected non-nil empty slice for unknown group")
	}
	if len(members) != 0 {
		t.Errorf("expected empty slice, got %v", members)
	}
}

func TestNormalizedPosition(t *testing.T) {
	cases := []struct {
		index, size int
		want        float64
	}{
		{0, 1, 0},
		{0, 4, 0},
		{3, 4, 1},
		{1, 3, 0.5},
	}
	for _, c := range cases {
		if got := NormalizedPosition(c.index, c.size); got != c.want {
			t.Errorf("NormalizedPosition(%d, %d) = %v, want %v", c.index, c.size, got, c.want)
		}
	}
}
