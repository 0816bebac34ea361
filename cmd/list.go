package cmd

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/timebox/internal/timer"
)

var listCategory string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List timers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter timer.Category
		if listCategory != "" {
			c, err := timer.ParseCategory(listCategory)
			if err != nil {
				return err
			}
			filter = c
		}

		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		var rows [][]string
		for _, t := range ws.timers.Snapshot() {
			if filter != "" && t.Category != filter {
				continue
			}
			half := ""
			if t.HalfwayTriggered {
				half = "yes"
			}
			rows = append(rows, []string{
				strconv.FormatInt(t.ID, 10),
				t.Name,
				string(t.Category),
				t.Status.String(),
				formatSeconds(t.Remaining) + " / " + formatSeconds(t.Duration),
				half,
			})
		}
		if len(rows) == 0 {
			cmd.Println("no timers")
			return nil
		}

		tbl := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ID", "NAME", "CATEGORY", "STATUS", "REMAINING", "HALFWAY").
			Rows(rows...)
		cmd.Println(tbl.String())
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "only list timers in this category")
	rootCmd.AddCommand(listCmd)
}
