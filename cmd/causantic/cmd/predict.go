package cmd

import (
	"github.com/spf13/cobra"

	"github.com/causantic/causantic"
)

func newPredictCmd() *cobra.Command {
	var (
		project    string
		maxTokens  int
		mmrLambda  float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "predict <discussion>",
		Short: "Anticipate what's needed next for an unfinished exchange",
		Long: `predict treats the text of the current, still-open exchange as the
query and always cluster-expands its seeds, trading half the usual token
budget for breadth over precision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setupEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			common := causantic.CommonQueryOptions{
				ProjectFilter: project,
				MaxTokens:     maxTokens,
			}
			if cmd.Flags().Changed("mmr-lambda") {
				common.MMRLambda = &mmrLambda
			}

			resp, err := e.Predict(cmd.Context(), args[0], causantic.PredictOptions{
				CommonQueryOptions: common,
			})
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Restrict to one project slug")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget before halving (0 uses the configured default)")
	cmd.Flags().Float64Var(&mmrLambda, "mmr-lambda", 0, "MMR relevance/novelty tradeoff in [0,1]; 0 is pure novelty (unset uses the configured default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the response as JSON")
	return cmd
}
