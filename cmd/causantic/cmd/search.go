package cmd

import (
	"github.com/spf13/cobra"

	"github.com/causantic/causantic"
)

func newSearchCmd() *cobra.Command {
	var (
		project    string
		maxTokens  int
		rng        string
		chainWalk  bool
		mmrLambda  float64
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Lexical-biased retrieval, weighting keyword matches over vector similarity",
		Args:  cobra.ExactArgs(1),
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

			resp, err := e.Search(cmd.Context(), args[0], causantic.SearchOptions{
				Range:              rng,
				ChainWalk:          chainWalk,
				CommonQueryOptions: common,
			})
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Restrict to one project slug")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget (0 uses the configured default)")
	cmd.Flags().StringVar(&rng, "range", "short", `Chain walk range: "short" or "long"`)
	cmd.Flags().BoolVar(&chainWalk, "chain-walk", false, "Follow causal edges from the top seed")
	cmd.Flags().Float64Var(&mmrLambda, "mmr-lambda", 0, "MMR relevance/novelty tradeoff in [0,1]; 0 is pure novelty (unset uses the configured default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the response as JSON")
	return cmd
}
