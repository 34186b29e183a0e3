package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chroma/tonelight/internal/store"
	"github.com/chroma/tonelight/internal/tone"
)

var importLenient bool

var paletteCmd = &cobra.Command{
	Use:   "palette",
	Short: "Manage the reference palette",
}

var paletteImportCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import reference samples from a CSV file",
	Long: `Import replaces the stored reference palette with the rows of a CSV
file. The first row is a header, every following row is label,R,G,B.

By default the first malformed row aborts the import. With --lenient
malformed rows are skipped and counted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		points, report, err := tone.ParseReferences(f, !importLenient, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		p, err := tone.NewPalette(points)
		if err != nil {
			return err
		}
		report.Labels = len(p.Labels())

		source, err := filepath.Abs(path)
		if err != nil {
			source = path
		}
		imp, err := db.References().Replace(source, points, report)
		if err != nil {
			return fmt.Errorf("failed to store palette: %w", err)
		}

		fmt.Printf("Imported %d samples for %d labels from %s\n", imp.Loaded, imp.Labels, filepath.Base(path))
		if imp.Skipped > 0 {
			fmt.Printf("Skipped %d malformed rows\n", imp.Skipped)
		}
		return nil
	},
}

var paletteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active reference palette",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPalette()
		if err != nil {
			return err
		}

		if cfg.Palette.Path != "" {
			fmt.Printf("Source: %s\n", cfg.Palette.Path)
		} else if imp, err := db.References().LastImport(); err == nil {
			fmt.Printf("Source: %s (imported %s)\n", imp.Source, imp.CreatedAt.Format("2006-01-02 15:04"))
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		fmt.Printf("Shape:  %s\n\n", p.Shape())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "LABEL\tSAMPLES\tFIRST (R,G,B)")
		fmt.Fprintln(w, "-----\t-------\t-------------")
		for _, label := range p.Labels() {
			samples := p.Samples(label)
			first := samples[0]
			fmt.Fprintf(w, "%s\t%d\t%d,%d,%d\n", label, len(samples), first.R, first.G, first.B)
		}
		w.Flush()

		fmt.Printf("\nTotal: %d labels, %d samples\n", len(p.Labels()), p.Len())
		return nil
	},
}

func init() {
	paletteImportCmd.Flags().BoolVar(&importLenient, "lenient", false, "skip malformed rows instead of aborting")
	paletteCmd.AddCommand(paletteImportCmd)
	paletteCmd.AddCommand(paletteShowCmd)
	rootCmd.AddCommand(paletteCmd)
}
