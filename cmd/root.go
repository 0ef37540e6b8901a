// Package cmd holds the dynips command line.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/marksidell/dynips/internal/config"
	"github.com/marksidell/dynips/internal/constants"
	"github.com/marksidell/dynips/internal/logging"
)

// app is the state shared by every subcommand once the root has run.
type app struct {
	configPath string
	profile    string
	region     string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           constants.AppName,
		Short:         "Dynamic DNS hosts and the security groups that trust them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/dynips/config.yaml)")
	flags.StringVarP(&a.profile, "profile", "p", "", "AWS profile to use")
	flags.StringVarP(&a.region, "region", "r", "", "AWS region to use")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: json or text")

	cmd.AddCommand(newExpireCmd(a))
	cmd.AddCommand(newReconcileCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newHostsCmd(a))
	cmd.AddCommand(newUserCmd(a))

	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	slog.SetDefault(log)

	a.cfg = cfg
	a.log = log
	return nil
}
