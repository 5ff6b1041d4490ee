package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/causantic/causantic/internal/archive"
)

func newExportCmd() *cobra.Command {
	var (
		project            string
		output             string
		password           string
		redactFilePaths    bool
		redactCodeBlocks   bool
		omitVectors        bool
		disableCompression bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stores to a portable, optionally encrypted archive bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := setupEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := e.Export(cmd.Context(), archive.ExportOptions{
				Project:            project,
				RedactFilePaths:    redactFilePaths,
				RedactCodeBlocks:   redactCodeBlocks,
				OmitVectors:        omitVectors,
				DisableCompression: disableCompression,
				Password:           password,
			})
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Restrict the export to one project slug")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (defaults to stdout)")
	cmd.Flags().StringVar(&password, "password", "", "Encrypt the bundle with this password")
	cmd.Flags().BoolVar(&redactFilePaths, "redact-paths", false, "Replace file-path-shaped substrings in chunk content")
	cmd.Flags().BoolVar(&redactCodeBlocks, "redact-code", false, "Replace fenced code blocks in chunk content")
	cmd.Flags().BoolVar(&omitVectors, "omit-vectors", false, "Drop the vectors section from the bundle")
	cmd.Flags().BoolVar(&disableCompression, "no-compress", false, "Write plain JSON instead of gzip")
	return cmd
}
