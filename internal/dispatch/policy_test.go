package dispatch

import (
	"testing"

	"github.com/chroma/tonelight/internal/tone"
)

func TestDefaultCommands(t *testing.T) {
	tests := map[string]string{
		"monk_1":  "Bucket1",
		"monk_2":  "Bucket1",
		"monk_3":  "Bucket2",
		"monk_6":  "Bucket3",
		"monk_7":  "Bucket4",
		"monk_9":  "Bucket5",
		"monk_10": "Bucket5",
	}

	cmds := DefaultCommands()
	if len(cmds) != 10 {
		t.Fatalf("expected 10 labels, got %d", len(cmds))
	}
	for label, want := range tests {
		if got := cmds[label]; got != want {
			t.Errorf("%s: expected %s, got %s", label, want, got)
		}
	}
}

func TestPolicy_FireOnce(t *testing.T) {
	p, err := NewPolicy(DefaultPolicyConfig(), nil)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	cmd, ok := p.Decide("0", "monk_7")
	if !ok || cmd != "Bucket4" {
		t.Fatalf("expected Bucket4, got %q ok=%v", cmd, ok)
	}

	if _, ok := p.Decide("0", "monk_2"); ok {
		t.Error("fire-once slot should ignore later labels")
	}
	if _, ok := p.Decide("1", "monk_2"); !ok {
		t.Error("other slots should fire independently")
	}

	p.Reset("0")
	cmd, ok = p.Decide("0", "monk_2")
	if !ok || cmd != "Bucket1" {
		t.Errorf("expected Bucket1 after reset, got %q ok=%v", cmd, ok)
	}

	p.ResetAll()
	if _, ok := p.Last("1"); ok {
		t.Error("ResetAll should clear every slot")
	}
}

func TestPolicy_Retract(t *testing.T) {
	p, err := NewPolicy(DefaultPolicyConfig(), nil)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	cmd, ok := p.Decide("0", "monk_7")
	if !ok {
		t.Fatal("expected first decision to fire")
	}

	p.Retract("0", "Bucket5")
	if _, ok := p.Decide("0", "monk_7"); ok {
		t.Error("retracting a different command must keep the slot fired")
	}

	p.Retract("0", cmd)
	if _, ok := p.Last("0"); ok {
		t.Error("expected retracted slot to have no last command")
	}
	if got, ok := p.Decide("0", "monk_7"); !ok || got != "Bucket4" {
		t.Errorf("expected Bucket4 after retract, got %q ok=%v", got, ok)
	}
}

func TestPolicy_Continuous(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.Mode = ModeContinuous
	p, err := NewPolicy(cfg, nil)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	steps := []struct {
		label string
		want  string
		fire  bool
	}{
		{"monk_1", "Bucket1", true},
		{"monk_2", "", false}, // same bucket
		{"monk_5", "Bucket3", true},
		{"monk_5", "", false},
		{"monk_1", "Bucket1", true},
	}

	for i, s := range steps {
		cmd, ok := p.Decide("0", s.label)
		if ok != s.fire || cmd != s.want {
			t.Errorf("step %d (%s): got %q ok=%v, want %q ok=%v", i, s.label, cmd, ok, s.want, s.fire)
		}
	}
}

func TestPolicy_Fallback(t *testing.T) {
	p, _ := NewPolicy(DefaultPolicyConfig(), nil)
	cmd, ok := p.Decide("0", "monk_99")
	if !ok || cmd != DefaultFallbackCommand {
		t.Errorf("expected fallback %s, got %q ok=%v", DefaultFallbackCommand, cmd, ok)
	}

	cfg := DefaultPolicyConfig()
	cfg.DefaultCommand = ""
	strict, _ := NewPolicy(cfg, nil)
	if _, ok := strict.Decide("0", "monk_99"); ok {
		t.Error("unknown label without fallback should not dispatch")
	}
	if _, ok := strict.Decide("0", "monk_4"); !ok {
		t.Error("unmapped label must not consume the fire-once slot")
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PolicyConfig
		wantErr bool
	}{
		{"default", DefaultPolicyConfig(), false},
		{"continuous", PolicyConfig{Mode: ModeContinuous}, false},
		{"unknown mode", PolicyConfig{Mode: "sometimes"}, true},
		{"empty command", PolicyConfig{Mode: ModeFireOnce, Commands: map[string]string{"monk_1": ""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolicy_CommandsSorted(t *testing.T) {
	p, _ := NewPolicy(DefaultPolicyConfig(), nil)
	m := p.Commands()
	if len(m) != 10 {
		t.Fatalf("expected 10 mappings, got %d", len(m))
	}
	for i := 1; i < len(m); i++ {
		if m[i-1].Label > m[i].Label {
			t.Fatalf("mappings not sorted: %v", m)
		}
	}
}

// A steady monk_7 stream through a fixed window and a fire-once policy
// yields exactly one Bucket4 command.
func TestPolicy_WithFixedSlotDispatchesOnce(t *testing.T) {
	slot := tone.NewSlot(tone.SlotConfig{Window: 7, Policy: tone.VoteFixed, HoldAfterEmit: true})
	p, _ := NewPolicy(DefaultPolicyConfig(), nil)

	var sent []string
	for i := 0; i < 20; i++ {
		d, ok := slot.Push("monk_7")
		if !ok {
			continue
		}
		if cmd, fire := p.Decide("0", d.Label); fire {
			sent = append(sent, cmd)
		}
	}

	if len(sent) != 1 || sent[0] != "Bucket4" {
		t.Fatalf("expected exactly one Bucket4, got %v", sent)
	}

	slot.Reset()
	p.Reset("0")
	for i := 0; i < 7; i++ {
		if d, ok := slot.Push("monk_7"); ok {
			if cmd, fire := p.Decide("0", d.Label); fire {
				sent = append(sent, cmd)
			}
		}
	}
	if len(sent) != 2 {
		t.Errorf("expected a second command after reset, got %v", sent)
	}
}
