package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/fakeyudi/timebox/internal/engine"
	"github.com/fakeyudi/timebox/internal/logging"
	"github.com/fakeyudi/timebox/internal/platform"
	"github.com/fakeyudi/timebox/internal/tui"
)

var runHeadless bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tick running timers; opens the dashboard when attached to a terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := dataDir()
		if err != nil {
			return fmt.Errorf("resolving data directory: %w", err)
		}
		guard, err := platform.AcquireSingleInstance(dir)
		if err != nil {
			return err
		}
		defer guard.Release()

		dashboard := !runHeadless && term.IsTerminal(os.Stdout.Fd())
		if dashboard {
			// The dashboard owns the terminal, so logs go to a file.
			path := cfg.LogFile
			if path == "" {
				path = filepath.Join(dir, "timebox.log")
			}
			l, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: path})
			if err != nil {
				return err
			}
			defer closer.Close()
			logger = l
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ws, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		exp, err := ws.exporter("", "")
		if err != nil {
			return multierr.Append(err, ws.Close())
		}

		eng := engine.New(ws.timers, ws.history, exp, engine.Options{
			TickInterval:    cfg.TickInterval,
			CheckpointEvery: cfg.CheckpointEvery,
			WatchPaths:      ws.watchPaths(),
			Logger:          logger,
		})
		events := eng.Subscribe(64)

		var (
			wg     conc.WaitGroup
			runErr error
		)
		wg.Go(func() { runErr = eng.Run(ctx) })

		var uiErr error
		if dashboard {
			uiErr = tui.Run(ctx, eng, events)
			eng.Unsubscribe(events)
			if ctx.Err() != nil {
				// killed by a signal, not a dashboard failure
				uiErr = nil
			}
		} else {
			cmd.Printf("timebox running (session %s); ctrl+c to stop\n", eng.SessionID()[:8])
			printEvents(cmd.OutOrStdout(), events)
		}

		closeErr := eng.Close()
		wg.Wait()
		if err := ws.Close(); err != nil {
			logger.Warn("closing data directory", "err", err)
		}
		switch {
		case uiErr != nil:
			return uiErr
		case runErr != nil:
			return runErr
		default:
			return closeErr
		}
	},
}

// printEvents writes one line per notification until the engine closes the
// channel.
func printEvents(w io.Writer, events <-chan engine.Event) {
	for ev := range events {
		at := ev.At.Local().Format("15:04:05")
		switch ev.Type {
		case engine.EventHalfway:
			fmt.Fprintf(w, "%s  halfway    %s (%s left)\n", at, ev.Timer.Name, formatSeconds(ev.Timer.Remaining))
		case engine.EventCompleted:
			fmt.Fprintf(w, "%s  completed  %s (%s)\n", at, ev.Entry.Name, ev.Entry.Category)
		case engine.EventPersistFailed:
			fmt.Fprintf(w, "%s  not saved  %v\n", at, ev.Err)
		case engine.EventReloaded:
			fmt.Fprintf(w, "%s  reloaded   %d timer(s)\n", at, len(ev.Timers))
		}
	}
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "print notifications instead of opening the dashboard")
	rootCmd.AddCommand(runCmd)
}
