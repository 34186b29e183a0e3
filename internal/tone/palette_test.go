package tone

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const monkCSV = `Monk_Tone,R,G,B
monk_1,246,237,228
monk_1,243,231,219
monk_2,243,231,219
monk_5,160,126,86
monk_5,150,110,80
`

func TestReadPalette_MultiSample(t *testing.T) {
	p, report, err := ReadPalette(strings.NewReader(monkCSV), DefaultPaletteOptions())
	if err != nil {
		t.Fatalf("ReadPalette() error = %v", err)
	}

	if report.Loaded != 5 || report.Skipped != 0 || report.Rows != 5 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Labels != 3 {
		t.Errorf("expected 3 labels, got %d", report.Labels)
	}

	labels := p.Labels()
	want := []string{"monk_1", "monk_2", "monk_5"}
	if len(labels) != len(want) {
		t.Fatalf("expected labels %v, got %v", want, labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d: expected %s, got %s", i, want[i], labels[i])
		}
	}

	if got := len(p.Samples("monk_5")); got != 2 {
		t.Errorf("expected 2 samples for monk_5, got %d", got)
	}
	if p.Shape() != ShapeMultiSample {
		t.Errorf("expected multi-sample shape, got %s", p.Shape())
	}
	if p.Len() != 5 {
		t.Errorf("expected 5 reference samples, got %d", p.Len())
	}
}

func TestReadPalette_Centroid(t *testing.T) {
	opts := DefaultPaletteOptions()
	opts.Shape = ShapeCentroid

	p, _, err := ReadPalette(strings.NewReader(monkCSV), opts)
	if err != nil {
		t.Fatalf("ReadPalette() error = %v", err)
	}

	samples := p.Samples("monk_5")
	if len(samples) != 1 {
		t.Fatalf("expected one centroid, got %d", len(samples))
	}
	want := ColorSample{R: 155, G: 118, B: 83}
	if samples[0] != want {
		t.Errorf("expected centroid %v, got %v", want, samples[0])
	}

	// (246+243)/2 = 244.5 rounds up
	if got := p.Samples("monk_1")[0].R; got != 245 {
		t.Errorf("expected rounded R 245, got %d", got)
	}
}

func TestReadPalette_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		line    int
	}{
		{
			name:  "header arity",
			input: "Monk_Tone,R,G\nmonk_1,1,2\n",
			line:  1,
		},
		{
			name:  "non-integer channel",
			input: "Monk_Tone,R,G,B\nmonk_1,1,x,3\n",
			line:  2,
		},
		{
			name:  "out of range channel",
			input: "Monk_Tone,R,G,B\nmonk_1,1,2,3\nmonk_2,256,0,0\n",
			line:  3,
		},
		{
			name:  "negative channel",
			input: "Monk_Tone,R,G,B\nmonk_1,-1,2,3\n",
			line:  2,
		},
		{
			name:  "row arity",
			input: "Monk_Tone,R,G,B\nmonk_1,1,2,3,4\n",
			line:  2,
		},
		{
			name:    "header only",
			input:   "Monk_Tone,R,G,B\n",
			wantErr: ErrEmptyPalette,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: ErrEmptyPalette,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadPalette(strings.NewReader(tt.input), DefaultPaletteOptions())
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}

			var dfe *DataFormatError
			if !errors.As(err, &dfe) {
				t.Fatalf("expected DataFormatError, got %T: %v", err, err)
			}
			if dfe.Line != tt.line {
				t.Errorf("expected line %d, got %d", tt.line, dfe.Line)
			}
		})
	}
}

func TestReadPalette_LenientSkipsRows(t *testing.T) {
	input := "Monk_Tone,R,G,B\nmonk_1,1,2,3\nmonk_2,abc,0,0\nmonk_3,7,8,9\nmonk_4,300,0,0\n"

	opts := DefaultPaletteOptions()
	opts.Strict = false

	p, report, err := ReadPalette(strings.NewReader(input), opts)
	if err != nil {
		t.Fatalf("ReadPalette() error = %v", err)
	}
	if report.Skipped != 2 {
		t.Errorf("expected 2 skipped rows, got %d", report.Skipped)
	}
	if report.Loaded != 2 {
		t.Errorf("expected 2 loaded rows, got %d", report.Loaded)
	}
	if p.Has("monk_2") || p.Has("monk_4") {
		t.Error("malformed rows should not produce labels")
	}
}

func TestReadPalette_LenientAllMalformed(t *testing.T) {
	opts := DefaultPaletteOptions()
	opts.Strict = false

	_, report, err := ReadPalette(strings.NewReader("Monk_Tone,R,G,B\nmonk_1,a,b,c\n"), opts)
	if !errors.Is(err, ErrEmptyPalette) {
		t.Errorf("expected ErrEmptyPalette, got %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", report.Skipped)
	}
}

func TestLoadPalette_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monk.csv")
	if err := os.WriteFile(path, []byte(monkCSV), 0644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}

	p, _, err := LoadPalette(path, DefaultPaletteOptions())
	if err != nil {
		t.Fatalf("LoadPalette() error = %v", err)
	}
	if !p.Has("monk_2") {
		t.Error("expected monk_2 in palette")
	}

	_, _, err = LoadPalette(filepath.Join(t.TempDir(), "missing.csv"), DefaultPaletteOptions())
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewPalette_Empty(t *testing.T) {
	if _, err := NewPalette(nil); !errors.Is(err, ErrEmptyPalette) {
		t.Errorf("expected ErrEmptyPalette, got %v", err)
	}
}

func TestPalette_PointsRoundTrip(t *testing.T) {
	p, _, err := ReadPalette(strings.NewReader(monkCSV), DefaultPaletteOptions())
	if err != nil {
		t.Fatalf("ReadPalette() error = %v", err)
	}

	points := p.Points()
	if len(points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(points))
	}
	if points[0].Label != "monk_1" || points[4].Label != "monk_5" {
		t.Errorf("points out of load order: %v", points)
	}
}
