package cmd

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/timer"
)

var (
	historyCategory string
	clearYes        bool
	exportFormat    string
	exportOut       string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed timers, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		entries := ws.history.Entries()
		if historyCategory != "" {
			c, err := timer.ParseCategory(historyCategory)
			if err != nil {
				return err
			}
			entries = ws.history.ByCategory(c)
		}
		if len(entries) == 0 {
			cmd.Println("no completed timers")
			return nil
		}
		for _, e := range entries {
			when := e.CompletedAt
			if t, ok := e.CompletedTime(); ok {
				when = t.Local().Format("2006-01-02 15:04:05")
			}
			cmd.Printf("%s  %-7s  %s\n", when, e.Category, e.Name)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the completion history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		n := ws.history.Len()
		if n == 0 {
			cmd.Println("history is already empty")
			return nil
		}
		if !clearYes {
			cmd.Printf("Clear %d history entries? [y/N] ", n)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				cmd.Println("cancelled")
				return nil
			}
		}
		if err := ws.history.Clear(cmd.Context()); err != nil {
			return err
		}
		cmd.Printf("Cleared %d entries\n", n)
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the history to a file and share it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		exp, err := ws.exporter(exportFormat, exportOut)
		if err != nil {
			return err
		}
		res, err := ws.history.Export(cmd.Context(), exp)
		switch {
		case tberrors.Is(err, tberrors.CodeNothingToExport):
			cmd.Println("nothing to export yet")
			return nil
		case tberrors.Is(err, tberrors.CodeSharingUnavailable):
			cmd.Printf("Exported to %s (sharing is not available; set share_command or share_dir)\n", res.Path)
			return nil
		case err != nil:
			return err
		}
		cmd.Printf("Exported to %s and shared\n", res.Path)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyCategory, "category", "c", "", "only show this category")
	historyClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	historyExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "json or yaml (default from export_format)")
	historyExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory (default from export_dir)")

	historyCmd.AddCommand(historyClearCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
