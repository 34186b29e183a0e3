package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/capture"
)

var (
	replayDispatch bool
	replayStride   int
)

var replayCmd = &cobra.Command{
	Use:   "replay <video>",
	Short: "Run the pipeline over a recorded video",
	Long: `Replay feeds every frame of a video file through detection,
classification and stabilization as fast as it can be decoded and prints
the finalized tones with their position in the video.

Commands are only sent to the sinks with --dispatch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return err
		}
		if replayStride < 1 {
			replayStride = 1
		}

		total, fps := probeVideo(path)

		ac := appConfig{
			camera:     capture.NewCamera(capture.Source(path)),
			noDispatch: !replayDispatch,
		}
		if replayDispatch {
			conn, err := connectBroker()
			if err != nil {
				return err
			}
			if conn != nil {
				defer conn.Close()
			}
			if ac.sinks, err = buildSinks(conn); err != nil {
				return err
			}
		}

		a, err := buildApp(ac)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := ac.camera.Open(); err != nil {
			return err
		}
		defer ac.camera.Close()

		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Replaying "+path),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)

		type finalized struct {
			frame int
			res   app.FaceResult
		}
		var decisions []finalized

		ctx := cmd.Context()
		frameNo := 0
		for {
			if ctx.Err() != nil {
				break
			}

			frame, err := ac.camera.ReadFrame()
			if errors.Is(err, capture.ErrExhausted) {
				break
			}
			if err != nil {
				return err
			}
			frameNo++

			if (frameNo-1)%replayStride == 0 {
				results, err := a.ProcessFrame(frame)
				if err != nil {
					logger.Warn("frame failed", "frame", frameNo, "error", err)
				}
				for _, res := range results {
					if res.Decision != nil {
						decisions = append(decisions, finalized{frame: frameNo, res: res})
					}
				}
			}
			frame.Close()
			bar.Add(1)
		}
		bar.Finish()
		fmt.Fprintln(os.Stderr)

		if len(decisions) == 0 {
			fmt.Println("No tone was finalized.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FRAME\tTIME\tSLOT\tLABEL\tVOTES\tCOMMAND")
		fmt.Fprintln(w, "-----\t----\t----\t-----\t-----\t-------")
		for _, d := range decisions {
			command := d.res.Command
			if command == "" {
				command = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%s\n",
				d.frame, frameTime(d.frame, fps), d.res.Slot, d.res.Decision.Label,
				d.res.Decision.Votes, d.res.Decision.Total, command)
		}
		w.Flush()
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayDispatch, "dispatch", false, "send finalized commands to the configured sinks")
	replayCmd.Flags().IntVar(&replayStride, "stride", 1, "process every Nth frame")
	rootCmd.AddCommand(replayCmd)
}

// probeVideo returns the frame count (-1 when unknown) and frame rate.
func probeVideo(path string) (int, float64) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return -1, 0
	}
	defer vc.Close()

	total := int(vc.Get(gocv.VideoCaptureFrameCount))
	if total <= 0 {
		total = -1
	}
	return total, vc.Get(gocv.VideoCaptureFPS)
}

func frameTime(frame int, fps float64) string {
	if fps <= 0 {
		return "-"
	}
	d := time.Duration(float64(frame-1) / fps * float64(time.Second))
	return d.Round(10 * time.Millisecond).String()
}
