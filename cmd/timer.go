package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timebox/internal/store"
	"github.com/fakeyudi/timebox/internal/timer"
)

// timerAction builds a command that changes one timer addressed by id or name.
func timerAction(use, short, verb string, fn func(ctx context.Context, s *store.TimerStore, t timer.Timer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			t, err := ws.timers.Find(args[0])
			if err != nil {
				return err
			}
			if err := fn(cmd.Context(), ws.timers, t); err != nil {
				return err
			}
			cmd.Printf("%s %s\n", verb, t.Name)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(
		timerAction("start", "Start a paused timer", "Started",
			func(ctx context.Context, s *store.TimerStore, t timer.Timer) error {
				return s.Start(ctx, t.ID)
			}),
		timerAction("pause", "Pause a running timer", "Paused",
			func(ctx context.Context, s *store.TimerStore, t timer.Timer) error {
				return s.Pause(ctx, t.ID)
			}),
		timerAction("reset", "Reset a timer to its full duration", "Reset",
			func(ctx context.Context, s *store.TimerStore, t timer.Timer) error {
				return s.Reset(ctx, t.ID)
			}),
		timerAction("remove", "Delete a timer", "Removed",
			func(ctx context.Context, s *store.TimerStore, t timer.Timer) error {
				_, err := s.Remove(ctx, t.ID)
				return err
			}),
	)
}

// formatSeconds renders seconds as m:ss, or h:mm:ss from an hour up.
func formatSeconds(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
