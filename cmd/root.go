// Package cmd implements the survey-engine command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/survey-engine/pkg/config"
)

// options are the global flags shared by every subcommand.
type options struct {
	configPath string
	debug      bool
	userID     string

	version string
	cfg     *config.Config
	logger  *zap.Logger
}

// RootCommand creates the survey-engine root command.
func RootCommand(version string) *cobra.Command {
	opts := &options{version: version}

	rootCmd := &cobra.Command{
		Use:           "survey-engine",
		Short:         "Compensation survey ingestion, mapping and cloud sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&opts.userID, "user", "", "User id owning the data (defaults to auth.dev_user_id)")

	configCmd := configCommand(opts)

	rootCmd.AddCommand(
		serveCommand(opts),
		importCommand(opts),
		exportCommand(opts),
		migrateCommand(opts),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config init must work without a readable configuration.
		if cmd.Parent() == configCmd {
			return nil
		}
		return opts.initialize()
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if opts.logger != nil {
			_ = opts.logger.Sync()
		}
	}

	return rootCmd
}

// initialize loads configuration and builds the logger.
func (o *options) initialize() error {
	cfg, err := config.LoadFrom(o.configPath, o.version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	o.cfg = cfg
	if o.userID == "" {
		o.userID = cfg.Auth.DevUserID
	}

	logger, err := newLogger(cfg.Env, o.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	o.logger = logger
	return nil
}

func newLogger(env string, debug bool) (*zap.Logger, error) {
	var zc zap.Config
	if env == "local" || env == "dev" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

// requireUser returns the user id the CLI acts for.
func (o *options) requireUser() (string, error) {
	if o.userID == "" {
		return "", fmt.Errorf("no user: pass --user or set auth.dev_user_id")
	}
	return o.userID, nil
}
