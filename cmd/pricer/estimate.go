package main

import (
	"github.com/raine/resale-pricer/internal/pipeline"
	"github.com/spf13/cobra"
)

func (c *cli) newEstimateCmd() *cobra.Command {
	var (
		req       pipeline.Request
		showState bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Suggest a price for the item in the photos",
		Example: `  pricer estimate --image https://example.com/lamp.jpg --title "desk lamp"
  pricer estimate --image https://example.com/1.jpg --image https://example.com/2.jpg --state`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			if showState {
				st, err := env.Pipeline.RunState(cmd.Context(), req)
				if err != nil {
					return err
				}
				return c.printJSON(st)
			}

			rec, err := env.Pipeline.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.printJSON(rec)
		},
	}

	cmd.Flags().StringArrayVar(&req.ImageURLs, "image", nil, "image URL (repeatable, up to 6)")
	cmd.Flags().StringVar(&req.TitleHint, "title", "", "short description of the item")
	cmd.Flags().StringArrayVar(&req.CategoryHints, "category", nil, "category hint (repeatable)")
	cmd.Flags().BoolVar(&showState, "state", false, "print every stage's output instead of just the recommendation")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
