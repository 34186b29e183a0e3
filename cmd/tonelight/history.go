package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chroma/tonelight/internal/store"
)

var (
	historyLimit int
	historyPrune time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent dispatches",
	Example: `  tonelight history --limit 50
  tonelight history --prune 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := db.Dispatches()

		if historyPrune > 0 {
			n, err := repo.Prune(time.Now().Add(-historyPrune))
			if err != nil {
				return fmt.Errorf("failed to prune history: %w", err)
			}
			fmt.Printf("Pruned %d dispatches older than %s\n", n, historyPrune)
			return nil
		}

		records, err := repo.List(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No dispatches recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tSLOT\tLABEL\tCOMMAND\tSINK\tSTATUS\tATTEMPTS\tERROR")
		fmt.Fprintln(w, "----\t----\t-----\t-------\t----\t------\t--------\t-----")
		for _, r := range records {
			label := r.Label
			if label == "" {
				label = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.Slot, label, r.Command, r.Sink, r.Status, r.Attempts, r.Error)
		}
		w.Flush()

		total, err := repo.Count("")
		if err != nil {
			return err
		}
		failed, err := repo.Count(store.StatusFailed)
		if err != nil {
			return err
		}
		fmt.Printf("\nShowing %d of %d dispatches (%d failed)\n", len(records), total, failed)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of dispatches to show (0 for all)")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete dispatches older than this age instead of listing")
	rootCmd.AddCommand(historyCmd)
}
