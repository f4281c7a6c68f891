package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	manifestPath string
	verbose      bool
	jsonOutput   bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	setupBootstrapLogging()

	rootCmd := newRootCommand(version, commit, buildDate)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		return err
	}
	return nil
}

// setupBootstrapLogging configures the process-level logger used before the
// manifest is loaded. Commands swap in the manifest-configured logger once
// they have one.
func setupBootstrapLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rigup",
		Short: "rigup - Idempotent development environment provisioning",
		Long: `rigup provisions a local development machine from a declarative manifest:
system packages, the asdf version manager, pinned language runtimes, the
hex/phoenix toolchain and shell profile wiring.

Every step checks live state before acting, so an aborted run can simply be
re-run: completed work is detected and skipped, remaining work resumes.

Features:
  - YAML manifests with Starlark overlays and CUE schema validation
  - Strictly ordered execution with abort-on-first-failure
  - OPA policy gate over the plan before anything runs
  - SQLite run journal for auditing past runs`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file path (empty uses the built-in default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newUpCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
