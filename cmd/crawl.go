package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-crawler/internal/crawl"
	"github.com/sells-group/shelf-crawler/internal/model"
)

// ErrFailureThreshold is returned when a crawl finishes with more failed
// fetches and ingests than crawl.max_failure_rate allows.
var ErrFailureThreshold = eris.New("crawl: failure rate above threshold")

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl retailers and ingest their products",
	Long:  "Crawls the named retailers (all registered retailers by default), extracting, normalizing and storing every product found.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("crawl"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if timeout := cfg.Crawl.Timeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		retailers, _ := cmd.Flags().GetStringSlice("retailer")
		if len(retailers) == 0 {
			retailers = cfg.Crawl.Retailers
		}
		maxPages := cfg.Crawl.MaxPages
		if cmd.Flags().Changed("max-pages") {
			maxPages, _ = cmd.Flags().GetInt("max-pages")
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		reg, err := initRegistry(cfg)
		if err != nil {
			return err
		}
		// Unknown retailers are a configuration error; fail before opening
		// the store or fetching anything.
		selected, err := reg.Select(retailers)
		if err != nil {
			return err
		}
		names := make([]string, len(selected))
		for i, rs := range selected {
			names[i] = rs.Name()
		}

		var (
			sink     crawl.Sink
			recorder runRecorder
		)
		if dryRun {
			sink = newLogSink(zap.L())
		} else {
			st, err := initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			sink, recorder = st, st
		}

		eng := crawl.NewEngine(newFetcher(cfg.Crawl), reg, sink, crawl.Options{
			MaxConcurrency: cfg.Crawl.MaxConcurrency,
			MaxPages:       maxPages,
			ExcludePaths:   cfg.Crawl.ExcludePaths,
		})
		_, err = runCrawl(ctx, eng, recorder, names, cfg.Crawl.MaxFailureRate)
		return err
	},
}

// runRecorder persists crawl run summaries. store.Store satisfies it.
type runRecorder interface {
	RecordRun(ctx context.Context, run model.CrawlRun) error
}

// runCrawl runs the engine over retailers and records the run when recorder
// is non-nil. It returns ErrFailureThreshold when the run degraded.
func runCrawl(ctx context.Context, eng *crawl.Engine, recorder runRecorder, retailers []string, maxFailureRate float64) (model.CrawlRun, error) {
	run := model.CrawlRun{
		ID:        uuid.NewString(),
		Retailers: retailers,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("component", "crawl"), zap.String("run_id", run.ID))
	record := func() {
		if recorder == nil {
			return
		}
		// Recorded even when the crawl was cancelled.
		if err := recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("failed to record run", zap.Error(err))
		}
	}
	record()

	stats, runErr := eng.Run(ctx, retailers)
	run.FinishedAt = time.Now().UTC()
	run.ListingPages = stats.ListingPages
	run.DetailPages = stats.DetailPages
	run.Records = stats.Records
	run.Ingested = stats.Ingested
	run.FetchErrors = stats.FetchErrors
	run.IngestErrors = stats.IngestErrors
	run.PricesSkipped = stats.PricesSkipped

	rate := stats.FailureRate()
	var err error
	switch {
	case runErr != nil:
		run.Status = model.RunStatusCancelled
		err = eris.Wrap(runErr, "crawl: run interrupted")
	case rate > maxFailureRate:
		run.Status = model.RunStatusDegraded
		err = eris.Wrapf(ErrFailureThreshold, "crawl: failure rate %.2f exceeds %.2f", rate, maxFailureRate)
	default:
		run.Status = model.RunStatusComplete
	}
	record()

	log.Info("crawl run finished",
		zap.String("status", string(run.Status)),
		zap.Float64("failure_rate", rate),
		zap.Duration("duration", run.Duration()),
	)
	return run, err
}

func init() {
	crawlCmd.Flags().StringSlice("retailer", nil, "retailer to crawl (repeatable; default from config or all)")
	crawlCmd.Flags().Int("max-pages", 0, "cap on pages scheduled per run (default from config; 0 = unlimited)")
	crawlCmd.Flags().Bool("dry-run", false, "log extracted records instead of storing them")
	rootCmd.AddCommand(crawlCmd)
}
