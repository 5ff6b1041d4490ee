package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/causantic/causantic/internal/archive"
)

func newImportCmd() *cobra.Command {
	var (
		password   string
		replace    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "import <archive-file>",
		Short: "Apply an archive bundle produced by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := setupEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}

			mode := archive.ModeMerge
			if replace {
				mode = archive.ModeReplace
			}

			report, err := e.Import(cmd.Context(), data, archive.ImportOptions{Password: password, Mode: mode})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, report)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "imported %d chunks, %d edges, %d clusters, %d vectors (version %s)\n",
				report.ChunksImported, report.EdgesImported, report.ClustersImported, report.VectorsImported, report.Version)
			for _, warning := range report.Warnings {
				fmt.Fprintf(w, "warning: %s\n", warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Decrypt the bundle with this password")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace sessions present in the bundle instead of merging")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the import report as JSON")
	return cmd
}
