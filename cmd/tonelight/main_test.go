package main

import (
	"testing"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/tone"
)

func TestParseSample(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    tone.ColorSample
		wantErr bool
	}{
		{"valid", []string{"198", "134", "66"}, tone.ColorSample{R: 198, G: 134, B: 66}, false},
		{"bounds", []string{"0", "255", "0"}, tone.ColorSample{R: 0, G: 255, B: 0}, false},
		{"too large", []string{"256", "0", "0"}, tone.ColorSample{}, true},
		{"negative", []string{"0", "-1", "0"}, tone.ColorSample{}, true},
		{"not a number", []string{"0", "0", "blue"}, tone.ColorSample{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSample(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSample() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSample() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBrowserAddr(t *testing.T) {
	tests := map[string]string{
		":8080":          "localhost:8080",
		"0.0.0.0:9000":   "localhost:9000",
		"127.0.0.1:8080": "127.0.0.1:8080",
	}
	for in, want := range tests {
		if got := browserAddr(in); got != want {
			t.Errorf("browserAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFrameTime(t *testing.T) {
	if got := frameTime(31, 30); got != "1s" {
		t.Errorf("frameTime(31, 30) = %q, want 1s", got)
	}
	if got := frameTime(1, 25); got != "0s" {
		t.Errorf("frameTime(1, 25) = %q, want 0s", got)
	}
	if got := frameTime(10, 0); got != "-" {
		t.Errorf("frameTime with unknown fps = %q, want -", got)
	}
}

func TestStatusData(t *testing.T) {
	m := statusData(app.Status{Running: true, SlotMode: app.SlotPositional, Frames: 12})

	if m["running"] != true {
		t.Errorf("expected running true, got %v", m["running"])
	}
	if m["slot_mode"] != app.SlotPositional {
		t.Errorf("expected slot_mode positional, got %v", m["slot_mode"])
	}
	// numbers decode as float64
	if m["frames"] != float64(12) {
		t.Errorf("expected 12 frames, got %v", m["frames"])
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "palette", "classify", "send", "history", "replay"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
