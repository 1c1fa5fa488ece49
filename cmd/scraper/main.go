package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-asin/api/handler"
	"github.com/aluiziolira/go-scrape-asin/config"
)

// errLookupFailed makes the process exit 1 without printing anything beyond
// what the command already wrote.
var errLookupFailed = errors.New("one or more lookups failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errLookupFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	verbose bool
	baseURL string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "scraper",
		Short:         "Amazon product lookups by ASIN",
		Long:          "Fetches Amazon product pages by ASIN and returns structured product records, over HTTP or from the command line.",
		Version:       handler.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "Storefront base URL (overrides SCRAPER_BASE_URL)")

	root.AddCommand(newServeCmd(flags), newFetchCmd(flags))
	return root
}

// loadConfig builds the configuration from defaults, environment and the
// global flags, and installs the process logger.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if flags.verbose {
		cfg.Verbose = true
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}

	logger, level := newLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	return cfg, logger, nil
}

func newLogger(w io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
