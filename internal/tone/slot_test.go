package tone

import "testing"

func pushAll(s *Slot, labels ...string) (Decision, bool) {
	var d Decision
	var ok bool
	for _, l := range labels {
		d, ok = s.Push(l)
	}
	return d, ok
}

func TestSlot_FixedWindowIdentical(t *testing.T) {
	s := NewSlot(SlotConfig{Window: 5, Policy: VoteFixed, HoldAfterEmit: true})

	for i := 0; i < 4; i++ {
		if _, ok := s.Push("monk_4"); ok {
			t.Fatalf("push %d: unexpected decision before window is full", i)
		}
		if s.State() != StateAccumulating {
			t.Fatalf("push %d: expected accumulating, got %s", i, s.State())
		}
	}

	d, ok := s.Push("monk_4")
	if !ok {
		t.Fatal("expected decision on the fifth label")
	}
	if d.Label != "monk_4" || d.Votes != 5 || d.Total != 5 {
		t.Errorf("unexpected decision %+v", d)
	}
	if s.State() != StateStable {
		t.Errorf("expected stable, got %s", s.State())
	}
}

func TestSlot_FixedWindowMajorityAnyOrder(t *testing.T) {
	orders := [][]string{
		{"monk_3", "monk_3", "monk_3", "monk_6", "monk_7"},
		{"monk_6", "monk_3", "monk_7", "monk_3", "monk_3"},
		{"monk_7", "monk_6", "monk_3", "monk_3", "monk_3"},
	}

	for _, order := range orders {
		s := NewSlot(SlotConfig{Window: 5, Policy: VoteFixed})
		d, ok := pushAll(s, order...)
		if !ok {
			t.Fatalf("order %v: expected decision", order)
		}
		if d.Label != "monk_3" {
			t.Errorf("order %v: expected monk_3, got %s", order, d.Label)
		}
	}
}

func TestSlot_FixedWindowTieBreak(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		// monk_2 reaches two votes first.
		{[]string{"monk_1", "monk_2", "monk_2", "monk_1"}, "monk_2"},
		{[]string{"monk_1", "monk_2", "monk_1", "monk_2"}, "monk_1"},
		{[]string{"a", "b", "c", "d"}, "a"},
	}

	for _, tt := range tests {
		s := NewSlot(SlotConfig{Window: len(tt.labels), Policy: VoteFixed})
		d, ok := pushAll(s, tt.labels...)
		if !ok {
			t.Fatalf("%v: expected decision", tt.labels)
		}
		if d.Label != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.labels, tt.want, d.Label)
		}
	}
}

func TestSlot_FixedWindowHold(t *testing.T) {
	s := NewSlot(SlotConfig{Window: 3, Policy: VoteFixed, HoldAfterEmit: true})
	if _, ok := pushAll(s, "monk_7", "monk_7", "monk_7"); !ok {
		t.Fatal("expected decision")
	}

	for i := 0; i < 5; i++ {
		if _, ok := s.Push("monk_1"); ok {
			t.Fatal("held slot should ignore labels until reset")
		}
	}
	if got := s.Labels(); len(got) != 3 {
		t.Errorf("held slot should keep its window, got %v", got)
	}
}

func TestSlot_FixedWindowRestart(t *testing.T) {
	s := NewSlot(SlotConfig{Window: 3, Policy: VoteFixed, HoldAfterEmit: false})

	d, ok := pushAll(s, "monk_2", "monk_2", "monk_5")
	if !ok || d.Label != "monk_2" {
		t.Fatalf("expected monk_2 decision, got %+v ok=%v", d, ok)
	}
	if s.State() != StateEmpty {
		t.Errorf("expected slot to restart empty, got %s", s.State())
	}

	d, ok = pushAll(s, "monk_5", "monk_5", "monk_2")
	if !ok || d.Label != "monk_5" {
		t.Errorf("expected monk_5 decision from fresh window, got %+v ok=%v", d, ok)
	}
}

func TestSlot_Sliding(t *testing.T) {
	s := NewSlot(SlotConfig{Window: 3, Policy: VoteSliding})

	d, ok := pushAll(s, "monk_3", "monk_3", "monk_4")
	if !ok || d.Label != "monk_3" {
		t.Fatalf("expected monk_3, got %+v ok=%v", d, ok)
	}

	// window becomes [monk_3 monk_4 monk_4]
	d, ok = s.Push("monk_4")
	if !ok || d.Label != "monk_4" {
		t.Errorf("expected monk_4 after eviction, got %+v ok=%v", d, ok)
	}
	if got := s.Labels(); len(got) != 3 || got[0] != "monk_3" {
		t.Errorf("expected oldest label evicted, got %v", got)
	}
}

func TestSlot_SlidingEmitsEveryPush(t *testing.T) {
	s := NewSlot(SlotConfig{Window: 5, Policy: VoteSliding})

	d, ok := s.Push("monk_9")
	if !ok || d.Label != "monk_9" {
		t.Fatalf("expected immediate guess, got %+v ok=%v", d, ok)
	}
	if s.State() != StateStable {
		t.Errorf("expected stable once non-empty, got %s", s.State())
	}
}

func TestSlot_EmittedLabelAppearedInWindow(t *testing.T) {
	labels := []string{"monk_1", "monk_10", "monk_5", "monk_5", "monk_10", "monk_1", "monk_3"}

	s := NewSlot(SlotConfig{Window: 4, Policy: VoteSliding})
	for _, l := range labels {
		d, _ := s.Push(l)
		inWindow := false
		for _, w := range s.Labels() {
			if w == d.Label {
				inWindow = true
			}
		}
		if !inWindow {
			t.Fatalf("decision %s not in window %v", d.Label, s.Labels())
		}
	}
}

func TestSlot_Reset(t *testing.T) {
	t.Run("empty slot is a no-op", func(t *testing.T) {
		s := NewSlot(DefaultSlotConfig())
		s.Reset()
		if s.State() != StateEmpty {
			t.Errorf("expected empty, got %s", s.State())
		}
		if len(s.Labels()) != 0 {
			t.Error("expected no labels")
		}
	})

	t.Run("stable slot needs a fresh window", func(t *testing.T) {
		s := NewSlot(SlotConfig{Window: 3, Policy: VoteFixed, HoldAfterEmit: true})
		pushAll(s, "monk_7", "monk_7", "monk_7")
		if s.State() != StateStable {
			t.Fatalf("expected stable, got %s", s.State())
		}

		s.Reset()
		if s.State() != StateEmpty {
			t.Fatalf("expected empty after reset, got %s", s.State())
		}
		if _, ok := s.Last(); ok {
			t.Error("expected last decision cleared")
		}

		if _, ok := pushAll(s, "monk_2", "monk_2"); ok {
			t.Error("decision before a full window after reset")
		}
		d, ok := s.Push("monk_2")
		if !ok || d.Label != "monk_2" {
			t.Errorf("expected monk_2 after fresh window, got %+v ok=%v", d, ok)
		}
	})
}

func TestSlotConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SlotConfig
		wantErr bool
	}{
		{"default", DefaultSlotConfig(), false},
		{"sliding", SlotConfig{Window: 3, Policy: VoteSliding}, false},
		{"zero window", SlotConfig{Window: 0, Policy: VoteFixed}, true},
		{"unknown policy", SlotConfig{Window: 3, Policy: "median"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracker_IndependentSlots(t *testing.T) {
	tr := NewTracker(SlotConfig{Window: 2, Policy: VoteFixed, HoldAfterEmit: true})

	tr.Push("0", "monk_1")
	tr.Push("1", "monk_8")
	d0, ok0 := tr.Push("0", "monk_1")
	d1, ok1 := tr.Push("1", "monk_8")

	if !ok0 || d0.Label != "monk_1" {
		t.Errorf("slot 0: expected monk_1, got %+v", d0)
	}
	if !ok1 || d1.Label != "monk_8" {
		t.Errorf("slot 1: expected monk_8, got %+v", d1)
	}

	tr.ResetSlot("0")
	if tr.State("0") != StateEmpty {
		t.Errorf("slot 0: expected empty after reset, got %s", tr.State("0"))
	}
	if tr.State("1") != StateStable {
		t.Errorf("slot 1: expected stable, got %s", tr.State("1"))
	}

	tr.Reset()
	for _, snap := range tr.Snapshot() {
		if snap.State != "empty" {
			t.Errorf("slot %s: expected empty after Reset, got %s", snap.Key, snap.State)
		}
	}

	if tr.State("missing") != StateEmpty {
		t.Error("unknown slot should report empty")
	}
}
