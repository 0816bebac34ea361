package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/timebox/internal/timer"
)

var addCategory string

var addCmd = &cobra.Command{
	Use:   "add <name> <duration>",
	Short: "Add a paused timer (duration in seconds, or like 90s or 25m)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		secs, err := timer.ParseDuration(args[1])
		if err != nil {
			return err
		}
		category, err := timer.ParseCategory(addCategory)
		if err != nil {
			return err
		}

		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		t, err := ws.timers.Add(cmd.Context(), args[0], secs, category)
		if err != nil {
			return err
		}
		cmd.Printf("Added %s (id %d, %s, %s)\n", t.Name, t.ID, formatSeconds(t.Duration), t.Category)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addCategory, "category", "c", string(timer.Workout), "timer category (Workout, Study, Break)")
	rootCmd.AddCommand(addCmd)
}
