package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqly/packages/output"
)

var (
	historyLimitFlag  int
	historyStatsFlag  bool
	historyClearFlag  bool
	historyOutputFlag string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently sent requests",
	Long: `List history entries newest first, or summarize their latency.

Examples:
  reqly history
  reqly history --limit 50
  reqly history --stats
  reqly history --stats -o json
  reqly history --clear`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of entries to show (0 = all)")
	historyCmd.Flags().BoolVar(&historyStatsFlag, "stats", false, "Print latency percentiles instead of entries")
	historyCmd.Flags().BoolVar(&historyClearFlag, "clear", false, "Delete all history entries")
	historyCmd.Flags().StringVarP(&historyOutputFlag, "output", "o", "console", "Output format: console, json")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cfg.HistoryPath)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	defer store.Close()

	ctx := cmd.Context()
	reporter := output.NewHistoryReporter(
		output.HistoryWithWriter(cmd.OutOrStdout()),
		output.HistoryWithNoColor(cfg.GetNoColor()),
		output.HistoryWithVerbose(cfg.GetVerbose()),
	)
	jsonOutput := historyOutputFlag == "json"

	switch {
	case historyClearFlag:
		if err := store.ClearHistory(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	case historyStatsFlag:
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return reporter.JSONStats(stats)
		}
		reporter.Stats(stats)
		return nil
	default:
		entries, err := store.History(ctx, historyLimitFlag)
		if err != nil {
			return err
		}
		if jsonOutput {
			return reporter.JSONEntries(entries)
		}
		reporter.Entries(entries)
		return nil
	}
}
