package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/tokenwatch/internal/infra/redis"
	"github.com/vietddude/tokenwatch/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what raw.transfers currently holds",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := postgres.NewDB(ctx, appCfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	st, err := postgres.NewTransferRepo(db).Stats(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ROWS\tWHALES\tMIN BLOCK\tMAX BLOCK\tVOLUME")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s %s\n",
		st.Rows, st.Whales, st.MinBlock, st.MaxBlock, st.TotalVolume.String(), appCfg.Token.Symbol)

	if appCfg.Redis.URL != "" {
		if err := printLastRun(cmd, w); err != nil {
			slog.Warn("Failed to read last run", "error", err)
		}
	}
	return w.Flush()
}

func printLastRun(cmd *cobra.Command, w *tabwriter.Writer) error {
	rc, err := redisclient.NewClient(appCfg.Redis)
	if err != nil {
		return err
	}
	defer rc.Close()

	run, ok, err := rc.LastRun(cmd.Context(), appCfg.Explorer.Contract)
	if err != nil || !ok {
		return err
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "LAST RUN\tFINISHED\tLOWEST BLOCK\tINSERTED\tSTOP")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
		run.RunID, run.FinishedAt.Format(time.RFC3339), run.LowestBlock, run.Inserted, run.StopReason)
	return nil
}
