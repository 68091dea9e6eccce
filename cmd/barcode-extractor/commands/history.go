package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spherical/barcode-extractor/cmd/barcode-extractor/ui"
	"github.com/spherical/barcode-extractor/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent extraction runs",
	Long:  "List the most recent batch and upload runs recorded in the run history database.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "barcode-extractor version %s\n", version)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	u := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), noColor, verbose)
	if !cfg.History.Enabled {
		u.Warning("Run history is disabled in the configuration.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := history.Open(ctx, cfg.History.SQLitePath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()

	return listRuns(ctx, store, historyLimit, u)
}

func listRuns(ctx context.Context, store *history.Store, limit int, u *ui.UI) error {
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		u.Info("No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Mode,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			ui.FormatDuration(r.Duration()),
			fmt.Sprintf("%d", r.Files),
			fmt.Sprintf("%d", r.Records),
			fmt.Sprintf("%d", r.Failures),
			r.OutputFile,
		})
	}
	u.Table([]string{"Run", "Mode", "Status", "Started", "Duration", "Files", "Rows", "Failures", "Output"}, rows)
	return nil
}
