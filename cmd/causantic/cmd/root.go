// Package cmd provides the CLI commands for causantic.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/causantic/causantic"
	"github.com/causantic/causantic/internal/causanticerr"
	"github.com/causantic/causantic/internal/config"
	"github.com/causantic/causantic/internal/logging"
	"github.com/causantic/causantic/pkg/version"
)

var debugMode bool

// NewRootCmd creates the root command for the causantic CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "causantic",
		Short:   "Local-first long-term conversational memory for coding assistants",
		Version: version.Version,
		Long: `causantic is a local-first retrieval engine that remembers a coding
assistant's past sessions: it segments transcripts into chunks, links them
in a causal graph, clusters them by embedding, and answers recall/search/
predict/reconstruct queries that fuse vector, lexical, graph and cluster
evidence into a token-bounded context payload.`,
	}
	cmd.SetVersionTemplate("causantic version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.causantic/logs/")

	cmd.AddCommand(newRecallCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPredictCmd())
	cmd.AddCommand(newReconstructCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExitCode maps an error returned by Execute to the process exit code
// described by the error handling design: 2 for invalid input, 3 for
// invalid configuration/store unavailability, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return causanticerr.ExitCode(causanticerr.KindOf(err))
}

// setupEngine loads configuration from the current directory and debug
// logging if requested, and opens an Engine. The returned cleanup function
// closes both the Engine and the log file and must be deferred.
func setupEngine(cmd *cobra.Command) (engine *causantic.Engine, cleanup func(), err error) {
	var loggingCleanup func()
	if debugMode {
		logger, lc, logErr := logging.Setup(logging.DebugConfig())
		if logErr != nil {
			return nil, nil, fmt.Errorf("failed to setup debug logging: %w", logErr)
		}
		loggingCleanup = lc
		slog.SetDefault(logger)
	}

	cfg, err := config.Load(".")
	if err != nil {
		if loggingCleanup != nil {
			loggingCleanup()
		}
		return nil, nil, causanticerr.InvalidInput("failed to load configuration", err)
	}

	e, err := causantic.New(cfg)
	if err != nil {
		if loggingCleanup != nil {
			loggingCleanup()
		}
		return nil, nil, err
	}

	return e, func() {
		e.Close()
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}, nil
}
