package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/tokenwatch/internal/control"
)

var crawlOpts struct {
	startBlock  uint64
	maxPages    int
	noLimit     bool
	offset      int
	save        bool
	sinceLatest bool
	metricsAddr string
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl token transfers from newest down to a start block",
	Long: `Crawl token transfers from the explorer, newest first, down to --start-block.

Without --save each transfer is printed to stdout as a JSON line.
With --save transfers are normalized and stored in raw.transfers.`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	f := crawlCmd.Flags()
	f.Uint64Var(&crawlOpts.startBlock, "start-block", 0, "lowest block to crawl down to")
	f.IntVar(&crawlOpts.maxPages, "max-pages", 0, "request budget (default from config)")
	f.BoolVar(&crawlOpts.noLimit, "no-limit", false, "ignore any request budget")
	f.IntVar(&crawlOpts.offset, "offset", 0, "page size override")
	f.BoolVar(&crawlOpts.save, "save", false, "store transfers in Postgres instead of printing")
	f.BoolVar(&crawlOpts.sinceLatest, "since-latest", false, "start from the highest stored block")
	f.StringVar(&crawlOpts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	crawlCmd.MarkFlagsMutuallyExclusive("max-pages", "no-limit")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsAddr := crawlOpts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = appCfg.Server.MetricsAddr
	}

	report, err := control.NewCrawl(appCfg).Run(ctx, control.Options{
		StartBlock:  crawlOpts.startBlock,
		MaxPages:    crawlOpts.maxPages,
		NoLimit:     crawlOpts.noLimit,
		PageSize:    crawlOpts.offset,
		Save:        crawlOpts.save,
		SinceLatest: crawlOpts.sinceLatest,
		MetricsAddr: metricsAddr,
		Out:         os.Stdout,
	})
	if err != nil {
		slog.Error("Crawl failed", "run_id", report.RunID, "stop_reason", report.Crawl.Reason, "error", err)
		return err
	}

	if crawlOpts.save {
		slog.Info("Saved transfers",
			"inserted", report.Ingest.Inserted,
			"normalized", report.Ingest.Normalized,
			"malformed", report.Ingest.Malformed,
		)
		return nil
	}
	_, _ = fmt.Fprintf(os.Stderr, "Total transfers: %d\n", report.Printed)
	return nil
}
