package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timebox/internal/config"
	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/gateway"
	"github.com/fakeyudi/timebox/internal/logging"
	"github.com/fakeyudi/timebox/internal/store"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the process logger, rebuilt for every invocation.
var logger = logging.Discard()

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:          "timebox",
	Short:        "Run named countdown timers by category and keep a history of completions",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		l, closer, err := logging.New(logging.Options{
			Level:  cfg.LogLevel,
			File:   cfg.LogFile,
			Stderr: cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		logger, logCloser = l, closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser == nil {
			return nil
		}
		err := logCloser.Close()
		logCloser = nil
		return err
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// dataDir resolves data_dir, falling back to the XDG data directory.
func dataDir() (string, error) {
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return gateway.DefaultDataDir()
}

// workspace is everything a command needs to read and change timers.
type workspace struct {
	dir     string
	gw      gateway.Gateway
	timers  *store.TimerStore
	history *store.HistoryLog
}

func openWorkspace(ctx context.Context) (*workspace, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	gw, err := gateway.Open(ctx, cfg.Backend, dir)
	if err != nil {
		return nil, err
	}
	return &workspace{
		dir:     dir,
		gw:      gw,
		timers:  store.Open(ctx, gw, logger),
		history: store.OpenHistory(ctx, gw, logger),
	}, nil
}

func (w *workspace) Close() error {
	return w.gw.Close()
}

// exporter builds the history exporter. Empty overrides fall back to config.
func (w *workspace) exporter(format, outDir string) (*export.Exporter, error) {
	if format == "" {
		format = cfg.ExportFormat
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if outDir == "" {
		outDir = cfg.ExportDir
	}
	if outDir == "" {
		outDir = filepath.Join(w.dir, "exports")
	}
	return &export.Exporter{
		Dir:    outDir,
		Format: f,
		Sink:   export.NewSink(cfg.ShareCommand, cfg.ShareDir),
	}, nil
}

// watchPaths lists the blob files an engine should watch for writes from
// other timebox processes. Only the file backend has files to watch.
func (w *workspace) watchPaths() []string {
	if !cfg.Watch() {
		return nil
	}
	wa, ok := w.gw.(gateway.Watchable)
	if !ok {
		return nil
	}
	return []string{wa.Path(gateway.KeyTimers), wa.Path(gateway.KeyHistory)}
}
