package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/config"
	"github.com/allforgood/datahub/internal/feed"
	"github.com/allforgood/datahub/internal/geocode"
	"github.com/allforgood/datahub/internal/linkcheck"
	"github.com/allforgood/datahub/internal/pipeline"
	"github.com/allforgood/datahub/internal/providers"
)

func newPipelineCmd() *cobra.Command {
	var (
		outDir      string
		skipGeocode bool
		skipLinks   bool
	)
	cmd := &cobra.Command{
		Use:   "pipeline [source...]",
		Short: "Ingest configured sources into canonical feed documents",
		Long: `Runs the full ingestion pipeline for the named sources (all
configured sources when none are named): parse, normalize, geocode,
link-check, and write one canonical feed document per source.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), args, outDir, skipGeocode, skipLinks)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for canonical feed documents")
	cmd.Flags().BoolVar(&skipGeocode, "skip-geocode", false, "skip location geocoding")
	cmd.Flags().BoolVar(&skipLinks, "skip-links", false, "skip detail link validation")
	return cmd
}

// fileIndexer hands finished documents to the downstream index by
// writing them where the indexing collaborator picks them up.
type fileIndexer struct {
	dir  string
	name string
}

func (fi *fileIndexer) Index(_ context.Context, f *feed.CanonicalFeed) error {
	raw, err := f.Marshal()
	if err != nil {
		return err
	}
	path := filepath.Join(fi.dir, fi.name+".xml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write canonical feed: %w", err)
	}
	return nil
}

func runPipeline(ctx context.Context, names []string, outDir string, skipGeocode, skipLinks bool) error {
	cfg, logger := services.cfg, services.logger

	if len(names) == 0 {
		for name := range cfg.Sources {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no sources configured")
	}

	var geocoder *geocode.Geocoder
	if !skipGeocode {
		cache, err := geocode.OpenCache(cfg.Geocode.CachePath)
		if err != nil {
			return err
		}
		defer cache.Close()
		client := geocode.NewClient(geocode.ClientConfig{
			BaseURL:    cfg.Geocode.BaseURL,
			ClientID:   cfg.Geocode.ClientID,
			PrivateKey: cfg.Geocode.PrivateKey,
			Region:     cfg.Geocode.Region,
			Attempts:   cfg.Geocode.Attempts,
			RetryDelay: cfg.Geocode.RetryDelay(),
		}, nil, logger)
		geocoder = geocode.NewGeocoder(cache, client, logger)
	}

	var checker *linkcheck.Checker
	if !skipLinks {
		var err error
		checker, err = linkcheck.Open(linkcheck.Config{
			Dir:     cfg.LinkCheck.Dir,
			Timeout: cfg.LinkCheck.Timeout(),
		}, logger)
		if err != nil {
			return err
		}
		defer checker.Close()
	}

	for _, name := range names {
		src, ok := cfg.Sources[name]
		if !ok {
			return fmt.Errorf("source %q is not configured", name)
		}
		if err := runSource(ctx, name, src, outDir, geocoder, checker); err != nil {
			return err
		}
	}
	return nil
}

func runSource(ctx context.Context, name string, src config.SourceConfig, outDir string,
	geocoder *geocode.Geocoder, checker *linkcheck.Checker) error {
	cfg, logger := services.cfg, services.logger

	raw, err := loadInput(ctx, src.Input)
	if err != nil {
		return fmt.Errorf("source %s: %w", name, err)
	}

	opts := providers.Options{
		Info: feed.FeedInfo{
			ProviderID:   src.ProviderID,
			ProviderName: src.ProviderName,
			FeedID:       src.FeedID,
			ProviderURL:  src.ProviderURL,
		},
		Logger: logger,
		Now:    time.Now,
	}
	if src.Kind == "boardlist" && cfg.Crawl.MetroTablePath != "" {
		table, err := os.ReadFile(cfg.Crawl.MetroTablePath)
		if err != nil {
			return fmt.Errorf("source %s: metro table: %w", name, err)
		}
		opts.MetroLatLngs, err = providers.LoadMetroLatLngs(table)
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
	}
	parser, err := providers.New(src.Kind, opts)
	if err != nil {
		return fmt.Errorf("source %s: %w", name, err)
	}

	run := &pipeline.Pipeline{
		Parser:     parser,
		Geocoder:   geocoder,
		Checker:    checker,
		Indexer:    &fileIndexer{dir: outDir, name: name},
		Logger:     logger,
		MaxRecords: src.MaxRecords,
		Progress:   true,
	}
	report, err := run.Run(ctx, raw)
	if err != nil {
		return fmt.Errorf("source %s: %w", name, err)
	}
	logger.Info("source ingested",
		zap.String("source", name),
		zap.Int("organizations", report.Organizations),
		zap.Int("opportunities", report.Opportunities),
		zap.Int("skipped", report.Skipped))
	return nil
}

// loadInput reads a source payload from a local path or an http(s)
// URL.
func loadInput(ctx context.Context, input string) ([]byte, error) {
	if input == "" {
		return nil, fmt.Errorf("no input configured")
	}
	if len(input) > 4 && input[:4] == "http" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", input, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", input, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	raw, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	return raw, nil
}
