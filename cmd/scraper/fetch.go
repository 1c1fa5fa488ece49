package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-asin/api/handler"
	"github.com/aluiziolira/go-scrape-asin/models"
	"github.com/aluiziolira/go-scrape-asin/pipeline"
)

func newFetchCmd(flags *globalFlags) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "fetch ASIN...",
		Short: "Look up products and print one JSON envelope per line",
		Long: `Looks up each ASIN and writes the same envelope the HTTP service returns,
one JSON document per line, in argument order. A code given twice is fetched once.
Exits with status 1 if any lookup failed.`,
		Example: `  scraper fetch B08N5WRWNW
  scraper fetch B08N5WRWNW B0DYGBSM4D --parallel 2 > products.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := pipeline.New(cfg, pipeline.WithLogger(logger))
			return runFetch(ctx, p, args, parallel, cmd.OutOrStdout(), logger, time.Now)
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "Number of lookups in flight")
	return cmd
}

// batcher is the part of the pipeline fetch uses.
type batcher interface {
	Batch(ctx context.Context, raws []string, workers int) []pipeline.BatchResult
}

func runFetch(ctx context.Context, p batcher, codes []string, parallel int, out io.Writer, logger *slog.Logger, now func() time.Time) error {
	start := time.Now()
	results := p.Batch(ctx, codes, parallel)

	responses := make([]models.ProductResponse, 0, len(results))
	failed := 0
	for _, r := range results {
		_, resp := handler.ProductResponse(r.Outcome, r.Err, now())
		if !resp.Success {
			failed++
		}
		responses = append(responses, resp)
	}

	writer := pipeline.NewJSONWriter(out)
	if err := writer.Write(responses...); err != nil {
		return err
	}

	logger.Info("fetch complete",
		slog.Int("requested", len(codes)),
		slog.Int("written", writer.Count()),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)
	if failed > 0 {
		return errLookupFailed
	}
	return nil
}
