package commands

import (
	"fmt"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/spf13/cobra"
)

type sessionOutput struct {
	Clusters []domain.Cluster `json:"clusters"`
	Tags     []domain.Tag     `json:"tags"`
}

func (c *CLI) newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Load the session data (clusters and tags) and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := c.client.Session()
			if err := session.Init(cmd.Context()); err != nil {
				return err
			}

			clusters, err := session.Clusters()
			if err != nil {
				return err
			}

			var tags []domain.Tag
			if cmd.Flags().Changed("tags") {
				term, _ := cmd.Flags().GetString("tags")
				tags, err = session.SearchTags(term)
			} else {
				tags, err = session.Tags()
			}
			if err != nil {
				return fmt.Errorf("failed to get tags: %w", err)
			}

			if err := writeJSON(cmd.OutOrStdout(), sessionOutput{Clusters: clusters, Tags: tags}); err != nil {
				return err
			}
			return c.printStats(cmd)
		},
	}
	cmd.Flags().String("tags", "", "Only print tags matching a type:name search term")
	return cmd
}
