package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allforgood/datahub/internal/linkcheck"
)

func newCheckLinkCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "checklink url...",
		Short: "Validate links against the link cache",
		Long: `Checks each URL, consulting the on-disk link cache first and
probing with a HEAD request only when the cached answer is stale or
--force is set. Prints one outcome per URL.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := linkcheck.Open(linkcheck.Config{
				Dir:     services.cfg.LinkCheck.Dir,
				Timeout: services.cfg.LinkCheck.Timeout(),
			}, services.logger)
			if err != nil {
				return err
			}
			defer checker.Close()

			for _, url := range args {
				url = strings.TrimSpace(url)
				if url == "" {
					continue
				}
				if !strings.HasPrefix(url, "http") {
					url = "http://" + url
				}
				outcome := checker.Check(cmd.Context(), url, force)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", outcome, url)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-check even inside the trust window")
	return cmd
}
