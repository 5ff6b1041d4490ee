package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/causantic/causantic"
)

func newSessionsCmd() *cobra.Command {
	var (
		daysBack   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sessions <project>",
		Short: "List sessions within a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setupEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sessions, err := e.ListSessions(cmd.Context(), args[0], causantic.SessionListOptions{DaysBack: daysBack})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, sessions)
			}
			w := cmd.OutOrStdout()
			for _, s := range sessions {
				fmt.Fprintf(w, "%-36s %6d chunks  %s -> %s\n",
					s.SessionID, s.ChunkCount, s.FirstSeen.Format("2006-01-02 15:04"), s.LastSeen.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&daysBack, "days-back", 0, "Only sessions active in the last N days")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
