package main

import (
	"github.com/raine/resale-pricer/internal/ebay"
	"github.com/spf13/cobra"
)

func (c *cli) newCompsCmd() *cobra.Command {
	var opts ebay.SearchOptions

	cmd := &cobra.Command{
		Use:   "comps QUERY",
		Short: "Search eBay for comparable listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.Ebay.CheckCredentials(); err != nil {
				return err
			}
			comps, err := env.Ebay.SearchComps(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return c.printJSON(comps)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", ebay.DefaultLimit, "number of listings to fetch (1-50)")
	return cmd
}
