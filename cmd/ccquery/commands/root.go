// Package commands implements the ccquery command line interface.
package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ClusterCockpit/cc-frontend/internal/client"
	"github.com/ClusterCockpit/cc-frontend/internal/constants"
	"github.com/spf13/cobra"
)

type CLI struct {
	client  *client.Client
	rootCmd *cobra.Command
}

func New(c *client.Client) *CLI {
	rootCmd := &cobra.Command{
		Use:           "ccquery",
		Short:         "Query a ClusterCockpit backend through the caching client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       constants.VERSION,
	}

	rootCmd.PersistentFlags().Bool("stats", false, "Print cache statistics to stderr when done")

	cli := &CLI{
		client:  c,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(cli.newQueryCmd())
	rootCmd.AddCommand(cli.newMutateCmd())
	rootCmd.AddCommand(cli.newInitCmd())
	rootCmd.AddCommand(cli.newMetricsCmd())

	return cli
}

func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects stdout and stderr of every command. Used for testing.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

func (c *CLI) printStats(cmd *cobra.Command) error {
	stats, _ := cmd.Flags().GetBool("stats")
	if !stats {
		return nil
	}
	return writeJSON(cmd.ErrOrStderr(), c.client.CacheStats())
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
