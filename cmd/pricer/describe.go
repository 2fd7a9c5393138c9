package main

import (
	"github.com/raine/resale-pricer/internal/llm"
	"github.com/spf13/cobra"
)

func (c *cli) newDescribeCmd() *cobra.Command {
	var (
		req      llm.DescribeRequest
		provider string
	)

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Write a listing title and description for the item in the photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			writer, err := env.Providers.Get(provider)
			if err != nil {
				return err
			}
			if err := writer.CheckCredentials(); err != nil {
				return err
			}
			if req.MaxTokens == 0 {
				req.MaxTokens = c.cfg.AIMaxTokens
			}

			listing, err := writer.DescribeListing(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.printJSON(listing)
		},
	}

	cmd.Flags().StringArrayVar(&req.ImageURLs, "image", nil, "image URL (repeatable, up to 6)")
	cmd.Flags().StringArrayVar(&req.CategoryHints, "category", nil, "category hint (repeatable)")
	cmd.Flags().IntVar(&req.MaxTokens, "max-tokens", 0, "completion budget, 64-800 (default AI_MAX_TOKENS)")
	cmd.Flags().StringVar(&provider, "provider", "", "anthropic, openai or gemini (default AI_PROVIDER)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
