package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProjectsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List every project the store has seen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := setupEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			projects, err := e.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, projects)
			}
			w := cmd.OutOrStdout()
			for _, p := range projects {
				fmt.Fprintf(w, "%-30s %6d chunks  %s -> %s\n",
					p.Slug, p.ChunkCount, p.FirstSeen.Format("2006-01-02"), p.LastSeen.Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
