package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/presence/internal/config"
	"github.com/okian/presence/pkg/logger"
)

// cli carries state shared by every subcommand once the root has run.
type cli struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "presence",
		Short: "Face recognition attendance",
		Long: `presence watches a camera, recognises enrolled people and marks them
present in an attendance ledger at most once per day.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
			_ = logger.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (defaults to $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newRunCmd(c),
		newEnrollCmd(c),
		newEnrollDirCmd(c),
		newReportCmd(c),
		newMigrateCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	// The .env file is optional.
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	path := c.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	c.cfg = cfg

	return logger.Init(
		logger.WithFormat(cfg.LogFormat),
		logger.WithLevel(cfg.LogLevel),
		logger.WithFileDir(cfg.LogDir),
		logger.WithOutput(cmd.ErrOrStderr()),
	)
}
