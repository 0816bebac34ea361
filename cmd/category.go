package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timebox/internal/store"
	"github.com/fakeyudi/timebox/internal/timer"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Start, pause or reset every timer in a category",
}

func batchAction(use, short, verb string, fn func(*store.TimerStore, context.Context, timer.Category) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <category>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := timer.ParseCategory(args[0])
			if err != nil {
				return err
			}

			ws, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.Close()

			n, err := fn(ws.timers, cmd.Context(), category)
			if err != nil {
				return err
			}
			cmd.Printf("%s %d %s timer(s)\n", verb, n, category)
			return nil
		},
	}
}

func init() {
	categoryCmd.AddCommand(
		batchAction("start", "Start every paused timer in the category", "Started", (*store.TimerStore).StartAll),
		batchAction("pause", "Pause every running timer in the category", "Paused", (*store.TimerStore).PauseAll),
		batchAction("reset", "Reset every timer in the category", "Reset", (*store.TimerStore).ResetAll),
	)
	rootCmd.AddCommand(categoryCmd)
}
