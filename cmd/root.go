// Package cmd implements the igfetch command-line interface.
package cmd

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lvcoi/igfetch/internal/config"
	"github.com/lvcoi/igfetch/internal/logger"
)

// version is set at build time with -ldflags "-X github.com/lvcoi/igfetch/cmd.version=...".
var version = "dev"

var (
	cfgFile  string
	logLevel string
	debugLog bool
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "igfetch",
		Short:         "Fetch Instagram post, reel, IGTV and story media through yt-dlp",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./igfetch.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&debugLog, "debug", false, "human-readable development logging")

	root.AddCommand(newRunCommand())
	root.AddCommand(newConvertCookiesCommand())
	root.AddCommand(newFormatsCommand())
	root.AddCommand(newDatasetCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "igfetch version %s\n", buildVersion())
		},
	})
	return root
}

// Execute runs the root command.
func Execute() error {
	// A missing .env is normal.
	_ = godotenv.Load()
	return NewRootCommand().ExecuteContext(context.Background())
}

func buildVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// loadConfig resolves configuration and the logger for a command.
func loadConfig() (*config.Config, logger.Logger, error) {
	v := viper.New()
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	if debugLog {
		v.Set("log.development", true)
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
