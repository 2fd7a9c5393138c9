// Command pricer runs the pricing pipeline from the command line and prints
// JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/raine/resale-pricer/internal/app"
	"github.com/raine/resale-pricer/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type cli struct {
	cfg     *config.Config
	verbose bool
	out     io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "pricer",
		Short:         "Suggest resale prices from item photos",
		Long:          "Recognizes an item from photos with a vision model, looks up comparable eBay listings and suggests a price.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFile()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg

			level := zerolog.WarnLevel
			if c.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(
		c.newEstimateCmd(),
		c.newCompsCmd(),
		c.newDescribeCmd(),
	)
	return root
}

func (c *cli) build(ctx context.Context) (*app.Env, error) {
	return app.Build(ctx, c.cfg)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	root := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
