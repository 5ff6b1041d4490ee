package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/causantic/causantic"
)

func newReconstructCmd() *cobra.Command {
	var (
		sessionID        string
		project          string
		daysBack         int
		previousSession  bool
		currentSessionID string
		maxTokens        int
		keepNewest       bool
		jsonOutput       bool
	)

	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Rebuild a chronological replay of a session or time window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := setupEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := e.Reconstruct(cmd.Context(), causantic.ReconstructOptions{
				SessionID:        sessionID,
				DaysBack:         daysBack,
				PreviousSession:  previousSession,
				CurrentSessionID: currentSessionID,
				Project:          project,
				MaxTokens:        maxTokens,
				KeepNewest:       keepNewest,
			})
			if err != nil {
				return err
			}
			return printReconstructResult(cmd, result, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Reconstruct exactly one session by id")
	cmd.Flags().StringVar(&project, "project", "", "Restrict to one project slug")
	cmd.Flags().IntVar(&daysBack, "days-back", 0, "Reconstruct chunks from the last N days")
	cmd.Flags().BoolVar(&previousSession, "previous-session", false, "Reconstruct the session before --current-session")
	cmd.Flags().StringVar(&currentSessionID, "current-session", "", "Anchor session for --previous-session")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget (0 uses the configured default)")
	cmd.Flags().BoolVar(&keepNewest, "keep-newest", true, "When truncating, keep the newest chunks rather than the oldest")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	return cmd
}

func printReconstructResult(cmd *cobra.Command, result causantic.ReconstructResult, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(cmd, result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d chunk(s) across %d session(s), %d tokens, truncated=%v\n",
		len(result.Chunks), len(result.Sessions), result.TotalTokens, result.Truncated)
	if !result.TimeRangeStart.IsZero() {
		fmt.Fprintf(w, "range: %s to %s\n", result.TimeRangeStart.Format(time.RFC3339), result.TimeRangeEnd.Format(time.RFC3339))
	}
	for _, c := range result.Chunks {
		fmt.Fprintf(w, "[%s] %s: %s\n", c.SessionID, c.ID, c.Content)
	}
	return nil
}
