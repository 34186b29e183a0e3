package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/dispatch"
	"github.com/chroma/tonelight/internal/store"
)

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send a command to every configured sink",
	Long: `Send delivers one command (a bucket such as "Bucket3" or "reset")
to every configured sink and waits for the results. Deliveries are
recorded in the dispatch history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connectBroker()
		if err != nil {
			return err
		}
		if conn != nil {
			defer conn.Close()
		}

		sinks, err := buildSinks(conn)
		if err != nil {
			return err
		}
		if len(sinks) == 0 {
			return errors.New("no dispatch sinks configured")
		}

		opts := cfg.DispatchOptions()
		opts.Logger = logger
		d := dispatch.NewDispatcher(opts, sinks...)
		defer d.Close()

		results, sendErr := d.Deliver(cmd.Context(), dispatch.NewJob(app.ManualSlot, "", args[0]))
		recordResults(results)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SINK\tSTATUS\tATTEMPTS\tDURATION\tERROR")
		fmt.Fprintln(w, "----\t------\t--------\t--------\t-----")
		for _, r := range results {
			status, msg := store.StatusOK, ""
			if r.Err != nil {
				status, msg = store.StatusFailed, r.Err.Error()
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.Sink, status, r.Attempts, r.Duration.Round(time.Millisecond), msg)
		}
		w.Flush()

		return sendErr
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

// recordResults stores delivery results in the dispatch history.
func recordResults(results []dispatch.Result) {
	for _, r := range results {
		rec := &store.DispatchRecord{
			JobID:      r.Job.ID,
			Slot:       r.Job.Slot,
			Label:      r.Job.Label,
			Command:    r.Job.Command,
			Sink:       r.Sink,
			Attempts:   r.Attempts,
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		if err := db.Dispatches().Create(rec); err != nil {
			logger.Warn("failed to record dispatch", "error", err)
		}
	}
}
