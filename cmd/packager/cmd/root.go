package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/lambda-packager/internal/config"
	"github.com/oshokin/lambda-packager/internal/domain/phase"
	"github.com/oshokin/lambda-packager/internal/logger"
	"github.com/oshokin/lambda-packager/internal/service/packager"
	"github.com/oshokin/lambda-packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// workspace overrides the workspace root.
	workspace string
	// logLevel is the minimum level of log messages.
	logLevel string
	// stackPolicy selects the stack policy variant of the parameter document.
	stackPolicy string
	// runTests enables the test suite during build.
	runTests bool
	// enforceOrder rejects phases that skip ahead of the last completed one.
	enforceOrder bool

	// rootCmd represents the base command for running one build phase.
	rootCmd = &cobra.Command{
		Use:   "packager {" + strings.Join(phase.Names(), "|") + "}",
		Short: "Package a Python cloud function and stage it in object storage",
		Long: `Runs one phase of the build pipeline in the workspace:

  install    install the build tools
  prebuild   create a fresh virtual environment and install the requirements
  build      check the sources, optionally run the tests, and write the archive
  postbuild  upload the archive, write the parameter document, and upload it with the template

Upload settings come from S3_BUCKET, S3_KEY and LAMBDA_ROLE_ARN.
The workspace defaults to CODEBUILD_SRC_DIR, then the current directory.`,
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         phase.Names(),
		PersistentPreRunE: applyLogLevel,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid at this point; failures below are not usage errors.
			cmd.SilenceUsage = true

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				Phase:       args[0],
				ConfigPath:  configPath,
				Workspace:   workspace,
				StackPolicy: stackPolicy,
			}

			if cmd.Flags().Changed("run-tests") {
				options.RunTests = &runTests
			}

			if cmd.Flags().Changed("enforce-order") {
				options.EnforceOrder = &enforceOrder
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(configInitCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyLogLevel sets the global logger level from the --log-level flag.
func applyLogLevel(_ *cobra.Command, _ []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", logLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" in the workspace when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace root (default $"+config.EnvWorkspace+" or the current directory)")
	rootCmd.Flags().StringVar(&stackPolicy, "stack-policy", "",
		"stack policy of the parameter document: "+config.StackPolicyAllowAll+" or "+config.StackPolicyUpdateOnly)
	rootCmd.Flags().BoolVar(&runTests, "run-tests", false, "run the test command during build")
	rootCmd.Flags().BoolVar(&enforceOrder, "enforce-order", false, "reject phases that skip ahead of the last completed one")
}
