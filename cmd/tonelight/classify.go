package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/tone"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <R> <G> <B>",
	Short: "Classify one color against the reference palette",
	Example: `  tonelight classify 198 134 66
  tonelight classify --palette monk.csv 250 230 210`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sample, err := parseSample(args)
		if err != nil {
			return err
		}

		classifier, err := newClassifier()
		if err != nil {
			return err
		}
		ev, err := classifier.Classify(sample)
		if err != nil {
			return err
		}

		fmt.Printf("Label:    %s\n", ev.Label)
		fmt.Printf("Distance: %.2f\n", ev.Distance)

		policy, err := dispatch.NewPolicy(cfg.PolicyConfig(), logger)
		if err != nil {
			return err
		}
		if command, ok := policy.Command(ev.Label); ok {
			fmt.Printf("Command:  %s\n", command)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func parseSample(args []string) (tone.ColorSample, error) {
	var ch [3]uint8
	for i, name := range []string{"R", "G", "B"} {
		v, err := strconv.Atoi(args[i])
		if err != nil || v < 0 || v > 255 {
			return tone.ColorSample{}, fmt.Errorf("%s must be an integer in 0..255, got %q", name, args[i])
		}
		ch[i] = uint8(v)
	}
	return tone.ColorSample{R: ch[0], G: ch[1], B: ch[2]}, nil
}
