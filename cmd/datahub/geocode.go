package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/allforgood/datahub/internal/geocode"
)

func newGeocodeCmd() *cobra.Command {
	var (
		noCache bool
		reverse bool
	)
	cmd := &cobra.Command{
		Use:   "geocode query...",
		Short: "Resolve addresses through the geocode cache",
		Long: `Geocodes each query, consulting the durable cache before the
external service. With --reverse the arguments are lat,lng pairs
resolved to locale descriptions instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := services.cfg, services.logger

			client := geocode.NewClient(geocode.ClientConfig{
				BaseURL:    cfg.Geocode.BaseURL,
				ClientID:   cfg.Geocode.ClientID,
				PrivateKey: cfg.Geocode.PrivateKey,
				Region:     cfg.Geocode.Region,
				Attempts:   cfg.Geocode.Attempts,
				RetryDelay: cfg.Geocode.RetryDelay(),
			}, nil, logger)

			if reverse {
				rg := geocode.NewReverseGeocoder(client, cfg.Geocode.ReverseCacheDir, logger)
				for i := 0; i+1 < len(args); i += 2 {
					lat, errLat := strconv.ParseFloat(args[i], 64)
					lng, errLng := strconv.ParseFloat(args[i+1], 64)
					if errLat != nil || errLng != nil {
						return fmt.Errorf("bad coordinate pair %q %q", args[i], args[i+1])
					}
					res, err := rg.Reverse(cmd.Context(), lat, lng)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Status, res.Formatted)
				}
				return nil
			}

			cache, err := geocode.OpenCache(cfg.Geocode.CachePath)
			if err != nil {
				return err
			}
			defer cache.Close()
			geocoder := geocode.NewGeocoder(cache, client, logger)

			for _, query := range args {
				res, err := geocoder.Geocode(cmd.Context(), query, !noCache)
				if err != nil {
					return err
				}
				if res == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "no match\t%s\n", query)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s,%s\taccuracy=%d\n",
					res.Address, res.Latitude, res.Longitude, res.Accuracy)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the cache lookup (answers are still written back)")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "reverse geocode lat lng pairs")
	return cmd
}
