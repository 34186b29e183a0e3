package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chroma/tonelight/internal/config"
	"github.com/chroma/tonelight/internal/store"
)

// Version is the application version.
const Version = "0.3.0"

var (
	// cfg is the loaded configuration shared by subcommands.
	cfg *config.Config
	// db is the store shared by subcommands.
	db *store.Store
	// logger is the process logger.
	logger *slog.Logger

	configPath  string
	dbPath      string
	palettePath string
	debug       bool
	logFormat   string
)

var rootCmd = &cobra.Command{
	Use:   "tonelight",
	Short: "Skin tone classification and lighting control",
	Long: `Tonelight samples the forehead band of detected faces, classifies the
color against a reference palette of Monk skin tones, stabilizes the label
over several frames and sends the matching preset to WLED controllers,
an MQTT topic or external hooks.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd)

		logger = newLogger(cfg.LogFormat, cfg.Debug)
		slog.SetDefault(logger)

		path := cfg.DatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		logger.Debug("store opened", "path", path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if db != nil {
			db.Close()
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&dbPath, "db", "", "SQLite database path (default: <data_dir>/tonelight.db)")
	flags.StringVar(&palettePath, "palette", "", "reference palette CSV (default: the imported palette)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = dbPath
	}
	if flags.Changed("palette") {
		cfg.Palette.Path = palettePath
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
}

func newLogger(format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
