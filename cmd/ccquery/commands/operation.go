package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (c *CLI) newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <document|@file>",
		Short: "Run a GraphQL query",
		Long: "Run a GraphQL query. With --repeat the query is issued concurrently, " +
			"so the repetitions share one request to the backend.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOperation(cmd, domain.KindQuery, args[0])
		},
	}
	addOperationFlags(cmd)
	return cmd
}

func (c *CLI) newMutateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mutate <document|@file>",
		Short: "Run a GraphQL mutation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOperation(cmd, domain.KindMutation, args[0])
		},
	}
	addOperationFlags(cmd)
	return cmd
}

func addOperationFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("var", nil, "Variable as name=value. Values are parsed as JSON, falling back to a string.")
	cmd.Flags().Int("repeat", 1, "Number of concurrent executions")
}

func (c *CLI) runOperation(cmd *cobra.Command, kind domain.OperationKind, source string) error {
	document, err := readDocument(source)
	if err != nil {
		return err
	}

	rawVariables, _ := cmd.Flags().GetStringArray("var")
	variables, err := parseVariables(rawVariables)
	if err != nil {
		return err
	}

	repeat, _ := cmd.Flags().GetInt("repeat")
	if repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1 (got %d)", repeat)
	}

	op := domain.Operation{Kind: kind, Document: document, Variables: variables}

	results := make([]domain.Result, repeat)
	g, ctx := errgroup.WithContext(cmd.Context())
	for i := range repeat {
		g.Go(func() error {
			result, err := c.client.Execute(ctx, op)
			if err != nil {
				return fmt.Errorf("failed to execute %s: %w", kind, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	result := results[0]
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if err := c.printStats(cmd); err != nil {
		return err
	}

	if result.HasData() {
		return nil
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("%s failed: %w", kind, err)
	}
	return fmt.Errorf("%s failed: %w", kind, domain.ErrNoData)
}

// readDocument returns source, or the contents of the file it names when it
// starts with @
func readDocument(source string) (string, error) {
	path, isFile := strings.CutPrefix(source, "@")
	if !isFile {
		return source, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}
