package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"instalytics/internal/config"
	"instalytics/internal/logger"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFile string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "instalytics",
		Short:         "Instagram profile analytics",
		Long:          `Scrapes public Instagram profiles through Apify and reports engagement metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default is $CONFIG_PATH or ./"+config.DefaultPath+")")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newServeCommand(opts),
		newAnalyzeCommand(opts),
		newHistoryCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// load reads the configuration and builds the logger.
func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(config.Path(o.configFile))
	if err != nil {
		return nil, nil, err
	}
	if o.debug {
		cfg.Logging.Level = "debug"
		cfg.Service.Debug = true
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "instalytics version %s\n", version)
		},
	}
}
