package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl seed-url...",
		Short: "Crawl page-based sources into the page cache",
		Long: `Crawls listing pages starting from the seed URLs, following
posting and pagination links, and appends every fetched page to the
crawl cache for the boardlist parser to consume. A detected IP or
traffic block aborts the crawl with a non-zero exit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args)
		},
	}
	return cmd
}

func runCrawl(cmd *cobra.Command, seeds []string) error {
	cfg, logger := services.cfg, services.logger

	fetcher := crawler.NewCollyFetcher(crawler.FetcherConfig{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
	})
	c := crawler.New(crawler.Config{
		Workers:        cfg.Crawl.Workers,
		FetchAttempts:  cfg.Crawl.FetchAttempts,
		QueueDepth:     cfg.Crawl.QueueDepth,
		RatePerSecond:  cfg.Crawl.RatePerSecond,
		PollInterval:   time.Duration(cfg.Crawl.PollSeconds) * time.Second,
		QuiescentPolls: cfg.Crawl.QuiescentPolls,
		CachePath:      cfg.Crawl.CachePath,
	}, fetcher, &crawler.ListingDiscoverer{Logger: logger}, logger)

	pages, err := c.Run(cmd.Context(), seeds)
	if err != nil {
		if errors.Is(err, crawler.ErrBlocked) {
			// Continuing to crawl would deepen the block.
			logger.Error("remote site blocked this crawler, stopping", zap.Error(err))
			os.Exit(2)
		}
		return fmt.Errorf("crawl: %w", err)
	}

	logger.Info("crawl finished",
		zap.Int("pages", len(pages)),
		zap.String("cache", cfg.Crawl.CachePath))
	return nil
}
