package main

import (
	"fmt"

	"github.com/preetsinghmakkar/SkillSwap/internal/config"
	"github.com/preetsinghmakkar/SkillSwap/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "skillswap",
		Short:         "SkillSwap session and signaling service",
		Long:          "skillswap runs the session lifecycle API and the call signaling coordinator, applies database migrations, and can join a call as a headless participant.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human readable console logs")
	flags.String("database-driver", "sqlite", "postgres or sqlite")
	flags.String("database-dsn", "", "database connection string")
	bindFlags(v, rootCmd, map[string]string{
		"LOG_LEVEL":       "log-level",
		"LOG_PRETTY":      "log-pretty",
		"DATABASE_DRIVER": "database-driver",
		"DATABASE_DSN":    "database-dsn",
	})

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(v),
		newMigrateCmd(v),
		newCallCmd(v),
	)
	return rootCmd
}

// bindFlags lets flags override environment keys. Persistent flags are
// looked up on cmd first, then on its own flag set.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			f = cmd.Flags().Lookup(name)
		}
		if f == nil {
			panic(fmt.Sprintf("flag %q not defined", name))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

// loadConfig reads the configuration and sets up logging for a command.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
